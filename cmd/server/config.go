package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lychee-technology/survey"
	"go.uber.org/zap"
)

// loadEnvFiles loads .env plus any comma-separated files in SURVEY_ENV_FILES.
// Missing files are skipped.
func loadEnvFiles() {
	files := []string{".env"}
	if extra := os.Getenv("SURVEY_ENV_FILES"); extra != "" {
		files = append(files, strings.Split(extra, ",")...)
	}
	for _, file := range files {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			zap.S().Warnw("failed to load env file", "file", file, "error", err)
		}
	}
}

// loadConfig fills the service config from the environment on top of the defaults.
func loadConfig() *survey.Config {
	config := survey.DefaultConfig()

	config.Database = survey.DatabaseConfig{
		Host:            getEnv("DB_HOST", config.Database.Host),
		Port:            getEnvInt("DB_PORT", config.Database.Port),
		Database:        getEnv("DB_NAME", config.Database.Database),
		Username:        getEnv("DB_USER", config.Database.Username),
		Password:        getEnv("DB_PASSWORD", ""),
		SSLMode:         getEnv("DB_SSL_MODE", config.Database.SSLMode),
		MaxConnections:  getEnvInt("DB_MAX_CONNECTIONS", config.Database.MaxConnections),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", config.Database.MaxIdleConns),
		ConnMaxLifetime: getEnvSeconds("DB_CONN_MAX_LIFETIME_SECONDS", config.Database.ConnMaxLifetime),
		ConnMaxIdleTime: getEnvSeconds("DB_CONN_MAX_IDLE_TIME_SECONDS", config.Database.ConnMaxIdleTime),
		Timeout:         getEnvSeconds("DB_TIMEOUT_SECONDS", config.Database.Timeout),
		UseIAMAuth:      getEnvBool("DB_USE_IAM", false),
		Region:          getEnv("DB_REGION", getEnv("AWS_REGION", "")),
		TableNames: survey.TableNames{
			Forms:       getEnv("FORMS_TABLE", config.Database.TableNames.Forms),
			Versions:    getEnv("FORM_VERSIONS_TABLE", config.Database.TableNames.Versions),
			Drafts:      getEnv("FORM_DRAFTS_TABLE", config.Database.TableNames.Drafts),
			Submissions: getEnv("SUBMISSIONS_TABLE", config.Database.TableNames.Submissions),
		},
	}

	config.Transaction.Timeout = getEnvSeconds("TX_TIMEOUT_SECONDS", config.Transaction.Timeout)
	config.Transaction.MaxRetryAttempts = getEnvInt("TX_MAX_RETRY_ATTEMPTS", config.Transaction.MaxRetryAttempts)
	config.Transaction.RetryDelay = time.Duration(getEnvInt("TX_RETRY_DELAY_MS", int(config.Transaction.RetryDelay/time.Millisecond))) * time.Millisecond
	config.Draft.AutosaveInterval = getEnvSeconds("DRAFT_AUTOSAVE_INTERVAL_SECONDS", config.Draft.AutosaveInterval)

	config.Cache.Enabled = getEnvBool("REDIS_ENABLED", false)
	config.Cache.Addr = getEnv("REDIS_ADDR", config.Cache.Addr)
	config.Cache.Password = getEnv("REDIS_PASSWORD", "")
	config.Cache.DB = getEnvInt("REDIS_DB", 0)
	config.Cache.TTL = getEnvSeconds("REDIS_TTL_SECONDS", config.Cache.TTL)
	config.Cache.Prefix = getEnv("REDIS_PREFIX", config.Cache.Prefix)

	config.Events.Enabled = getEnvBool("KAFKA_ENABLED", false)
	config.Events.Brokers = splitList(getEnv("KAFKA_BROKERS", ""))
	config.Events.Topic = getEnv("KAFKA_TOPIC", config.Events.Topic)
	config.Events.ClientID = getEnv("KAFKA_CLIENT_ID", config.Events.ClientID)

	config.Export.Bucket = getEnv("EXPORT_BUCKET", "")
	config.Export.Prefix = getEnv("EXPORT_PREFIX", config.Export.Prefix)
	config.Export.Region = getEnv("EXPORT_REGION", getEnv("AWS_REGION", config.Export.Region))
	config.Export.Endpoint = getEnv("EXPORT_ENDPOINT", "")
	config.Export.AccessKeyID = getEnv("EXPORT_ACCESS_KEY_ID", "")
	config.Export.SecretAccessKey = getEnv("EXPORT_SECRET_ACCESS_KEY", "")
	config.Export.UsePathStyle = getEnvBool("EXPORT_USE_PATH_STYLE", config.Export.Endpoint != "")

	config.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	config.Auth.ActorHeader = getEnv("ACTOR_HEADER", config.Auth.ActorHeader)

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Server.ShutdownTimeout = getEnvSeconds("SHUTDOWN_TIMEOUT_SECONDS", config.Server.ShutdownTimeout)

	config.Logging.Mode = getEnv("LOG_MODE", config.Logging.Mode)
	config.Logging.Level = getEnv("LOG_LEVEL", config.Logging.Level)
	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	return time.Duration(getEnvInt(key, int(defaultValue/time.Second))) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
