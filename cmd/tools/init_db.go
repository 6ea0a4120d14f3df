package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/lychee-technology/survey"
	"github.com/lychee-technology/survey/internal"
	"github.com/lychee-technology/survey/internal/migrations"
	"go.uber.org/zap"
)

type dbOptions struct {
	host     string
	port     int
	database string
	user     string
	password string
	sslMode  string
	timeout  time.Duration
}

func (o dbOptions) databaseConfig() survey.DatabaseConfig {
	cfg := survey.DefaultConfig().Database
	cfg.Host = o.host
	cfg.Port = o.port
	cfg.Database = o.database
	cfg.Username = o.user
	cfg.Password = o.password
	cfg.SSLMode = o.sslMode
	cfg.Timeout = o.timeout
	return cfg
}

func registerDBFlags(flags *flag.FlagSet, opts *dbOptions) {
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "survey"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.DurationVar(&opts.timeout, "db-timeout", 10*time.Second, "connect timeout")
}

type initDBOptions struct {
	db   dbOptions
	down bool
}

func parseInitDBFlags(args []string) (*initDBOptions, error) {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: survey-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := &initDBOptions{}
	registerDBFlags(flags, &opts.db)
	flags.BoolVar(&opts.down, "down", false, "roll back every migration instead of applying them")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func runInitDB(args []string) error {
	opts, err := parseInitDBFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := opts.db.databaseConfig()
	version, err := internal.PostgresPreflight(context.Background(), cfg, opts.db.timeout)
	if err != nil {
		return err
	}
	zap.S().Infow("connected to postgres", "host", cfg.Host, "database", cfg.Database, "serverVersion", version)

	db, err := migrations.Open(internal.PostgresDSN(cfg, ""))
	if err != nil {
		return err
	}
	defer db.Close()

	if opts.down {
		if err := migrations.Down(db); err != nil {
			return err
		}
		zap.S().Infow("schema rolled back", "database", cfg.Database)
		return nil
	}
	if err := migrations.Up(db); err != nil {
		return err
	}
	fmt.Println("Database initialized successfully.")
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
