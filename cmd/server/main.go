package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lychee-technology/survey"
	"github.com/lychee-technology/survey/factory"
	"github.com/lychee-technology/survey/internal"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func newLogger(cfg survey.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Mode == "dev" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func main() {
	loadEnvFiles()
	config := loadConfig()

	logger, err := newLogger(config.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if err := config.Validate(); err != nil {
		sugar.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := createDatabasePool(ctx, config.Database)
	if err != nil {
		sugar.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	if err := internal.ExportEndpointHealthCheck(ctx, config.Export, 0); err != nil {
		sugar.Warnw("export endpoint check failed", "endpoint", config.Export.Endpoint, "error", err)
	}

	metrics := internal.NewPrometheusEmitter(prometheus.DefaultRegisterer)
	metrics.Register()

	stack, err := factory.NewStackWithConfig(ctx, config, pool)
	if err != nil {
		sugar.Fatalf("failed to initialize form manager: %v", err)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			sugar.Warnw("failed to close service dependencies", "error", err)
		}
	}()

	health := func(ctx context.Context) error {
		return internal.PingPool(ctx, pool, 0)
	}
	server := NewServer(stack.Manager, stack.Exporter, config.Auth, health)
	if config.Auth.JWTSecret == "" {
		sugar.Warnw("JWT_SECRET not set; trusting actor header", "header", config.Auth.ActorHeader)
	}

	if err := server.Start(ctx, config.Server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugar.Fatalf("server error: %v", err)
	}
}
