package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/survey"
	"github.com/lychee-technology/survey/internal"
	"go.uber.org/zap"
)

// createDatabasePool creates a PostgreSQL connection pool. With IAM auth enabled a
// fresh DSQL token is generated for every new connection.
func createDatabasePool(ctx context.Context, config survey.DatabaseConfig) (*pgxpool.Pool, error) {
	if err := internal.ValidatePostgresConfig(config); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(internal.PostgresDSN(config, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.MinConns = int32(config.MaxIdleConns)
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = config.Timeout

	if config.UseIAMAuth {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		endpoint := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
		poolConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
			token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
			if err != nil {
				return fmt.Errorf("generate IAM auth token: %w", err)
			}
			cc.Password = token
			return nil
		}
		zap.S().Infow("using IAM auth tokens for Postgres connections", "endpoint", endpoint)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := internal.PingPool(ctx, pool, 5*time.Second); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
