package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/lychee-technology/survey"
	"go.uber.org/zap"
)

// formManager composes the stores into the full versioning core. Multi-step
// writes get the configured transaction timeout.
type formManager struct {
	survey.FormRegistry
	survey.VersionStore
	survey.DraftStore
	survey.SubmissionBinder

	publisher survey.Publisher
	reverter  survey.Reverter
	txTimeout time.Duration
}

// ManagerOptions carries the optional collaborators of the Postgres stack.
type ManagerOptions struct {
	Events        EventPublisher
	SnapshotCache SnapshotCache
}

func NewFormManager(
	registry survey.FormRegistry,
	versions survey.VersionStore,
	drafts survey.DraftStore,
	publisher survey.Publisher,
	reverter survey.Reverter,
	binder survey.SubmissionBinder,
	txTimeout time.Duration,
) survey.FormManager {
	return &formManager{
		FormRegistry:     registry,
		VersionStore:     versions,
		DraftStore:       drafts,
		SubmissionBinder: binder,
		publisher:        publisher,
		reverter:         reverter,
		txTimeout:        txTimeout,
	}
}

// NewPostgresFormManager wires every store against one pool.
func NewPostgresFormManager(pool dbPool, config *survey.Config, opts ManagerOptions) (survey.FormManager, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	if config == nil {
		config = survey.DefaultConfig()
	}
	validator, err := NewWorkingCopyValidator()
	if err != nil {
		return nil, err
	}
	events := opts.Events
	if events == nil {
		events = NoopEventPublisher{}
	}

	tables := NewStorageTables(config.Database.TableNames)
	var versions survey.VersionStore = NewPostgresVersionStore(pool, tables, config.Transaction)
	if opts.SnapshotCache != nil {
		versions = NewCachedVersionStore(versions, opts.SnapshotCache)
	}

	zap.S().Infow("form manager initialized",
		"forms", tables.Forms,
		"versions", tables.Versions,
		"drafts", tables.Drafts,
		"submissions", tables.Submissions,
		"snapshotCache", opts.SnapshotCache != nil,
	)
	return NewFormManager(
		NewPostgresFormRepository(pool, tables, validator),
		versions,
		NewPostgresDraftStore(pool, tables, validator),
		NewPostgresPublisher(pool, tables, validator, config.Transaction, events),
		NewPostgresReverter(pool, tables, events),
		NewPostgresSubmissionBinder(pool, tables, events),
		config.Transaction.Timeout,
	), nil
}

func (m *formManager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.txTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.txTimeout)
}

func (m *formManager) Publish(ctx context.Context, req *survey.PublishRequest) (*survey.PublishResult, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.publisher.Publish(ctx, req)
}

func (m *formManager) CreateDraftFromVersion(ctx context.Context, req *survey.RevertRequest) (*survey.Draft, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.reverter.CreateDraftFromVersion(ctx, req)
}
