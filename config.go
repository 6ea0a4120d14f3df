package survey

import (
	"time"
)

// Config consolidates settings for the form versioning service
type Config struct {
	Database    DatabaseConfig    `json:"database"`
	Transaction TransactionConfig `json:"transaction"`
	Draft       DraftConfig       `json:"draft"`
	Cache       CacheConfig       `json:"cache"`
	Events      EventsConfig      `json:"events"`
	Export      ExportConfig      `json:"export"`
	Auth        AuthConfig        `json:"auth"`
	Server      ServerConfig      `json:"server"`
	Logging     LoggingConfig     `json:"logging"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"sslMode"`
	MaxConnections  int           `json:"maxConnections"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout"`
	UseIAMAuth      bool          `json:"useIamAuth"`
	Region          string        `json:"region"`
	TableNames      TableNames    `json:"tableNames"`
}

// TableNames names the tables backing each store
type TableNames struct {
	Forms       string `json:"forms"`
	Versions    string `json:"versions"`
	Drafts      string `json:"drafts"`
	Submissions string `json:"submissions"`
}

// TransactionConfig contains publish transaction settings
type TransactionConfig struct {
	Timeout          time.Duration `json:"timeout"`
	MaxRetryAttempts int           `json:"maxRetryAttempts"`
	RetryDelay       time.Duration `json:"retryDelay"`
}

// DraftConfig contains draft editing settings
type DraftConfig struct {
	AutosaveInterval time.Duration `json:"autosaveInterval"`
}

// CacheConfig configures the Redis snapshot cache
type CacheConfig struct {
	Enabled  bool          `json:"enabled"`
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"ttl"`
	Prefix   string        `json:"prefix"`
}

// EventsConfig configures the Kafka domain event producer
type EventsConfig struct {
	Enabled  bool     `json:"enabled"`
	Brokers  []string `json:"brokers"`
	Topic    string   `json:"topic"`
	ClientID string   `json:"clientId"`
}

// ExportConfig configures CSV export uploads
type ExportConfig struct {
	Bucket          string        `json:"bucket"`
	Prefix          string        `json:"prefix"`
	Region          string        `json:"region"`
	Endpoint        string        `json:"endpoint"`
	AccessKeyID     string        `json:"accessKeyId"`
	SecretAccessKey string        `json:"secretAccessKey"`
	UsePathStyle    bool          `json:"usePathStyle"`
	BreakerFailures int           `json:"breakerFailures"`
	BreakerWindow   time.Duration `json:"breakerWindow"`
	BreakerOpenFor  time.Duration `json:"breakerOpenFor"`
}

// AuthConfig configures how the actor identity is obtained
type AuthConfig struct {
	JWTSecret   string `json:"-"`
	ActorHeader string `json:"actorHeader"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            string        `json:"port"`
	ReadTimeout     time.Duration `json:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Mode  string `json:"mode"` // "prod" or "dev"
	Level string `json:"level"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "survey",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
			TableNames:      DefaultTableNames(),
		},
		Transaction: TransactionConfig{
			Timeout:          30 * time.Second,
			MaxRetryAttempts: 3,
			RetryDelay:       50 * time.Millisecond,
		},
		Draft: DraftConfig{
			AutosaveInterval: 30 * time.Second,
		},
		Cache: CacheConfig{
			Addr:   "localhost:6379",
			TTL:    24 * time.Hour,
			Prefix: "survey:version",
		},
		Events: EventsConfig{
			Topic:    "survey.events",
			ClientID: "survey-service",
		},
		Export: ExportConfig{
			Prefix:          "exports",
			Region:          "us-east-1",
			BreakerFailures: 5,
			BreakerWindow:   time.Minute,
			BreakerOpenFor:  30 * time.Second,
		},
		Auth: AuthConfig{
			ActorHeader: "X-Actor-ID",
		},
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Mode:  "prod",
			Level: "info",
		},
	}
}

// DefaultTableNames returns the table names created by the bundled migrations
func DefaultTableNames() TableNames {
	return TableNames{
		Forms:       "forms",
		Versions:    "form_versions",
		Drafts:      "form_drafts",
		Submissions: "submissions",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}
	if c.Database.UseIAMAuth && c.Database.Region == "" {
		return &ConfigError{Field: "database.region", Message: "is required when useIamAuth is enabled"}
	}

	tn := c.Database.TableNames
	if tn.Forms == "" || tn.Versions == "" || tn.Drafts == "" || tn.Submissions == "" {
		return &ConfigError{Field: "database.tableNames", Message: "all table names must be set"}
	}

	if c.Transaction.MaxRetryAttempts < 1 {
		return &ConfigError{Field: "transaction.maxRetryAttempts", Message: "must be at least 1"}
	}
	if c.Transaction.RetryDelay < 0 {
		return &ConfigError{Field: "transaction.retryDelay", Message: "must not be negative"}
	}

	if c.Draft.AutosaveInterval <= 0 {
		return &ConfigError{Field: "draft.autosaveInterval", Message: "must be greater than 0"}
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return &ConfigError{Field: "cache.addr", Message: "is required when the cache is enabled"}
	}

	if c.Events.Enabled {
		if len(c.Events.Brokers) == 0 {
			return &ConfigError{Field: "events.brokers", Message: "at least one broker is required when events are enabled"}
		}
		if c.Events.Topic == "" {
			return &ConfigError{Field: "events.topic", Message: "is required when events are enabled"}
		}
	}

	if c.Export.AccessKeyID != "" && c.Export.SecretAccessKey == "" {
		return &ConfigError{Field: "export.secretAccessKey", Message: "accessKeyId provided without secretAccessKey"}
	}
	if c.Export.SecretAccessKey != "" && c.Export.AccessKeyID == "" {
		return &ConfigError{Field: "export.accessKeyId", Message: "secretAccessKey provided without accessKeyId"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
