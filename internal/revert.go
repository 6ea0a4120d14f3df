package internal

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/survey"
	"go.uber.org/zap"
)

// PostgresReverter turns a historical version back into an editable draft.
// History is never rewritten: the next publish still allocates
// current_version + 1.
type PostgresReverter struct {
	pool    dbPool
	tables  StorageTables
	events  EventPublisher
	nowFunc func() time.Time
}

func NewPostgresReverter(pool dbPool, tables StorageTables, events EventPublisher) *PostgresReverter {
	if events == nil {
		events = NoopEventPublisher{}
	}
	return &PostgresReverter{pool: pool, tables: tables, events: events, nowFunc: time.Now}
}

func (r *PostgresReverter) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	r.nowFunc = now
}

// CreateDraftFromVersion replaces the form's draft with a deep copy of the target
// version's snapshot, marked as a revert. Reverting to the current version is allowed.
func (r *PostgresReverter) CreateDraftFromVersion(ctx context.Context, req *survey.RevertRequest) (draft *survey.Draft, err error) {
	started := time.Now()
	defer func() { observe(ctx, "revert", started, err) }()

	if req == nil {
		return nil, survey.NewValidationError("request", "request is required")
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return nil, survey.NewUnauthenticatedError("reverting requires a known actor")
	}

	err = withTx(ctx, r.pool, func(tx pgx.Tx) error {
		target, err := getVersion(ctx, tx, r.tables, req.FormID, req.TargetVersion)
		if err != nil {
			return err
		}
		version := target.Version
		d, err := upsertDraft(ctx, tx, r.tables, draftWrite{
			formID:          req.FormID,
			workingCopy:     target.WorkingCopy(),
			actorID:         req.ActorID,
			now:             r.nowFunc().UTC(),
			revert:          true,
			revertToVersion: &version,
			revertNotes:     req.Notes,
		})
		if err != nil {
			return err
		}
		draft = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.S().Infow("draft created from version", "formId", req.FormID, "targetVersion", req.TargetVersion, "actor", req.ActorID)
	emitEvent(ctx, r.events, Event{
		Type:          EventDraftReverted,
		FormID:        req.FormID,
		TargetVersion: req.TargetVersion,
		Actor:         req.ActorID,
		Notes:         req.Notes,
		OccurredAt:    draft.UpdatedAt,
	})
	return draft, nil
}
