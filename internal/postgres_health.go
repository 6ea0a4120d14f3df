package internal

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/survey"
)

// ValidatePostgresConfig performs basic sanity checks on Postgres-related settings.
func ValidatePostgresConfig(cfg survey.DatabaseConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("database.port must be a valid TCP port")
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("database.maxConnections must be greater than 0")
	}
	if cfg.UseIAMAuth && cfg.Region == "" {
		return fmt.Errorf("database.region is required for IAM authentication")
	}
	return nil
}

// PostgresDSN renders cfg as a postgres:// URL. password overrides cfg.Password
// (IAM tokens are generated per connection attempt).
func PostgresDSN(cfg survey.DatabaseConfig, password string) string {
	if password == "" {
		password = cfg.Password
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	if cfg.Timeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(cfg.Timeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type pinger interface {
	Ping(ctx context.Context) error
}

// PingPool checks an existing pool for the health endpoint.
func PingPool(ctx context.Context, pool pinger, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

type preflightPool interface {
	pinger
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresPreflight validates cfg, opens a short-lived pool and returns the
// server version. Tools run it before touching the schema so a bad host or
// credential fails fast with a readable error.
func PostgresPreflight(ctx context.Context, cfg survey.DatabaseConfig, timeout time.Duration) (string, error) {
	if err := ValidatePostgresConfig(cfg); err != nil {
		return "", err
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, PostgresDSN(cfg, ""))
	if err != nil {
		return "", fmt.Errorf("open postgres pool: %w", err)
	}
	defer pool.Close()
	return serverVersion(ctx, pool)
}

func serverVersion(ctx context.Context, pool preflightPool) (string, error) {
	if err := pool.Ping(ctx); err != nil {
		return "", fmt.Errorf("postgres unreachable: %w", err)
	}
	var version string
	if err := pool.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", fmt.Errorf("read server version: %w", err)
	}
	return version, nil
}
