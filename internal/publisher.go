package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/survey"
	"go.uber.org/zap"
)

// PostgresPublisher promotes a form's working copy to a new immutable version.
// Every step of a publish runs in one transaction; a lost version race re-runs
// the whole attempt against freshly read state.
type PostgresPublisher struct {
	pool      dbPool
	tables    StorageTables
	validator *WorkingCopyValidator
	retry     retryPolicy
	events    EventPublisher
	nowFunc   func() time.Time
}

func NewPostgresPublisher(pool dbPool, tables StorageTables, validator *WorkingCopyValidator, txCfg survey.TransactionConfig, events EventPublisher) *PostgresPublisher {
	if events == nil {
		events = NoopEventPublisher{}
	}
	return &PostgresPublisher{
		pool:      pool,
		tables:    tables,
		validator: validator,
		retry:     newRetryPolicy(txCfg),
		events:    events,
		nowFunc:   time.Now,
	}
}

func (p *PostgresPublisher) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	p.nowFunc = now
}

// Publish takes its content from the form's draft if one exists, else from
// req.Inline, else from the live form. The draft is consumed by the publish.
func (p *PostgresPublisher) Publish(ctx context.Context, req *survey.PublishRequest) (result *survey.PublishResult, err error) {
	started := time.Now()
	defer func() { observe(ctx, "publish", started, err) }()

	if req == nil {
		return nil, survey.NewValidationError("request", "request is required")
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return nil, survey.NewUnauthenticatedError("publishing requires a known actor")
	}

	var inline *survey.WorkingCopy
	if req.Inline != nil {
		prepared := req.Inline.Clone()
		if p.validator != nil {
			if prepared, err = p.validator.Prepare(prepared); err != nil {
				return nil, err
			}
		}
		inline = &prepared
	}

	err = p.retry.run(ctx, "publish", func(attempt int) error {
		return withTx(ctx, p.pool, func(tx pgx.Tx) error {
			res, err := p.publishOnce(ctx, tx, req, inline)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		var se *survey.SurveyError
		if !errors.As(err, &se) {
			err = survey.NewCommitFailedError("publish", err)
		}
		zap.S().Warnw("publish failed", "formId", req.FormID, "actor", req.ActorID, "error", err)
		return nil, err
	}

	zap.S().Infow("form published",
		"formId", req.FormID,
		"version", result.Version.Version,
		"fields", len(result.Version.Fields),
		"isReverted", result.Version.IsReverted,
		"publishedBy", req.ActorID,
	)
	emitEvent(ctx, p.events, Event{
		Type:       EventFormPublished,
		FormID:     req.FormID,
		Version:    result.Version.Version,
		IsReverted: result.Version.IsReverted,
		Actor:      req.ActorID,
		OccurredAt: result.Version.PublishedAt,
	})
	return result, nil
}

func (p *PostgresPublisher) publishOnce(ctx context.Context, tx pgx.Tx, req *survey.PublishRequest, inline *survey.WorkingCopy) (*survey.PublishResult, error) {
	form, err := lockForm(ctx, tx, p.tables, req.FormID)
	if err != nil {
		return nil, err
	}
	draft, err := lockDraft(ctx, tx, p.tables, req.FormID)
	if err != nil {
		return nil, err
	}

	var (
		wc       survey.WorkingCopy
		revertTo *int
	)
	switch {
	case draft != nil:
		wc = draft.WorkingCopy.Clone()
		if draft.IsRevert {
			revertTo = draft.RevertToVersion
		}
	case inline != nil:
		wc = inline.Clone()
	default:
		wc = form.WorkingCopy()
	}

	slug := form.Slug
	if s := strings.TrimSpace(req.Slug); s != "" {
		slug = s
	}
	if err := ValidateForPublish(wc, slug); err != nil {
		return nil, err
	}

	firstSeen, err := loadFirstSeen(ctx, tx, p.tables, req.FormID)
	if err != nil {
		return nil, err
	}

	newVersion := form.CurrentVersion + 1
	now := p.nowFunc().UTC()
	fields := survey.StampVersionAdded(wc.Fields, firstSeen, newVersion)

	summary := strings.TrimSpace(req.ChangeSummary)
	if summary == "" {
		summary = defaultChangeSummary(newVersion, revertTo)
	}

	fieldsJSON, err := marshalJSON("fields", fields)
	if err != nil {
		return nil, err
	}
	consentJSON, err := marshalJSON("consent", wc.Consent)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`UPDATE %s SET slug = NULLIF($2, ''), title = $3, description = $4, fields = $5, consent = $6,
			status = $7, is_active = TRUE, current_version = $8, updated_at = $9
		WHERE id = $1 AND current_version = $10
		RETURNING %s`,
		p.tables.Forms, formColumns,
	)
	updated, err := scanForm(tx.QueryRow(ctx, query,
		req.FormID, slug, wc.Title, wc.Description, fieldsJSON, consentJSON,
		string(survey.FormStatusPublished), newVersion, now, form.CurrentVersion,
	))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, versionConflict(req.FormID, newVersion)
		case isUniqueViolation(err):
			return nil, survey.NewConflictError(survey.ErrCodeSlugConflict, "slug is already taken").WithDetail("slug", slug)
		}
		return nil, fmt.Errorf("update form: %w", err)
	}

	version := &survey.FormVersion{
		FormID:        req.FormID,
		Version:       newVersion,
		Title:         wc.Title,
		Description:   wc.Description,
		Fields:        fields,
		Consent:       wc.Consent,
		ChangeSummary: summary,
		PublishedAt:   now,
		PublishedBy:   req.ActorID,
		IsReverted:    revertTo != nil,
	}
	if err := insertVersion(ctx, tx, p.tables, version); err != nil {
		return nil, err
	}

	if draft != nil {
		if err := consumeDraft(ctx, tx, p.tables, draft, newVersion); err != nil {
			return nil, err
		}
	}

	return &survey.PublishResult{Form: updated, Version: version}, nil
}
