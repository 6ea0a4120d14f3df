package factory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/survey"
	"github.com/lychee-technology/survey/internal"
	"go.uber.org/zap"
)

type queryPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// tableCollector is swapped in tests.
var tableCollector = collectTablesFromPool

func collectTablesFromPool(pool queryPool) ([]string, error) {
	rows, err := pool.Query(context.Background(), `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE';`)
	if err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tables, nil
}

func verifyTables(config *survey.Config, pool *pgxpool.Pool) error {
	tables, err := tableCollector(pool)
	if err != nil {
		return err
	}
	names := config.Database.TableNames
	var missing []string
	for _, required := range []string{names.Forms, names.Versions, names.Drafts, names.Submissions} {
		// schema-qualified names are not listed under public; trust the caller
		if strings.Contains(required, ".") {
			continue
		}
		if !slices.Contains(tables, required) {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tables are missing in the database: %s (run `tools init-db`)", strings.Join(missing, ", "))
	}
	return nil
}

// NewFormManagerWithConfig creates a FormManager backed by the given pool. The
// schema must already exist.
//
// Usage:
//
//	config := survey.DefaultConfig()
//	manager, err := factory.NewFormManagerWithConfig(config, pool)
//	if err != nil {
//	    // handle error
//	}
func NewFormManagerWithConfig(config *survey.Config, pool *pgxpool.Pool) (survey.FormManager, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	if config == nil {
		config = survey.DefaultConfig()
	}
	if err := verifyTables(config, pool); err != nil {
		return nil, err
	}
	return internal.NewPostgresFormManager(pool, config, internal.ManagerOptions{})
}

// Stack is the full service wiring: the manager plus the optional snapshot cache,
// event producer and exporter built from config.
type Stack struct {
	Manager  survey.FormManager
	Exporter survey.Exporter

	closers []func() error
}

// Close releases the broker and cache connections.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewStackWithConfig builds the manager and its collaborators. Kafka, Redis and S3
// are used only when their config sections enable them.
func NewStackWithConfig(ctx context.Context, config *survey.Config, pool *pgxpool.Pool) (*Stack, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	if config == nil {
		config = survey.DefaultConfig()
	}
	if err := verifyTables(config, pool); err != nil {
		return nil, err
	}

	stack := &Stack{}
	opts := internal.ManagerOptions{}

	if config.Events.Enabled {
		producer, err := internal.NewKafkaEventPublisher(config.Events)
		if err != nil {
			return nil, err
		}
		opts.Events = producer
		stack.closers = append(stack.closers, producer.Close)
	}

	if config.Cache.Enabled {
		cache, client, err := internal.NewRedisSnapshotCache(ctx, config.Cache)
		if err != nil {
			// versions are always readable from Postgres
			zap.S().Warnw("snapshot cache disabled", "error", err)
		} else {
			opts.SnapshotCache = cache
			stack.closers = append(stack.closers, client.Close)
		}
	}

	manager, err := internal.NewPostgresFormManager(pool, config, opts)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	stack.Manager = manager

	var uploader *internal.S3Uploader
	if config.Export.Bucket != "" {
		uploader, err = internal.NewS3Uploader(ctx, config.Export)
		if err != nil {
			_ = stack.Close()
			return nil, err
		}
	}
	stack.Exporter = internal.NewCSVExporter(manager, uploader)
	return stack, nil
}
