package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/survey"
	"go.uber.org/zap"
)

const (
	submissionColumns      = `id, form_id, qr_code_id, answers, form_version, submitted_at, consent, utm`
	defaultSubmissionLimit = 100
	maxSubmissionLimit     = 1000
)

// PostgresSubmissionBinder stores submissions stamped with the form version that
// was current when the row was inserted.
type PostgresSubmissionBinder struct {
	pool    dbPool
	tables  StorageTables
	events  EventPublisher
	nowFunc func() time.Time
}

func NewPostgresSubmissionBinder(pool dbPool, tables StorageTables, events EventPublisher) *PostgresSubmissionBinder {
	if events == nil {
		events = NoopEventPublisher{}
	}
	return &PostgresSubmissionBinder{pool: pool, tables: tables, events: events, nowFunc: time.Now}
}

func (b *PostgresSubmissionBinder) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	b.nowFunc = now
}

// BindSubmission inserts the answers. The version is read from the form row by the
// insert statement itself, so a concurrent publish is either fully before or fully
// after this submission. Unpublished forms bind to version 1.
func (b *PostgresSubmissionBinder) BindSubmission(ctx context.Context, req *survey.BindRequest) (sub *survey.Submission, err error) {
	started := time.Now()
	defer func() { observe(ctx, "bind_submission", started, err) }()

	if req == nil {
		return nil, survey.NewValidationError("request", "request is required")
	}
	answers := req.Answers
	if answers == nil {
		answers = survey.Answers{}
	}
	answersJSON, err := marshalJSON("answers", answers)
	if err != nil {
		return nil, err
	}
	consentJSON, err := nullableJSON("consent", req.Consent, req.Consent == nil)
	if err != nil {
		return nil, err
	}
	utmJSON, err := nullableJSON("utm", req.UTM, len(req.UTM) == 0)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s)
		SELECT $1, f.id, $3, $4, COALESCE(NULLIF(f.current_version, 0), 1), $5, $6, $7
		FROM %s f WHERE f.id = $2
		RETURNING %s`,
		b.tables.Submissions, submissionColumns, b.tables.Forms, submissionColumns,
	)
	sub, err = scanSubmission(b.pool.QueryRow(ctx, query,
		uuid.Must(uuid.NewV7()),
		req.FormID,
		req.QRCodeID,
		answersJSON,
		b.nowFunc().UTC(),
		consentJSON,
		utmJSON,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, survey.NewNotFoundError(survey.ErrCodeFormNotFound, "form not found").WithDetail("formId", req.FormID.String())
		}
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	zap.S().Debugw("submission bound", "formId", sub.FormID, "submissionId", sub.ID, "formVersion", sub.FormVersion)
	emitEvent(ctx, b.events, Event{
		Type:         EventSubmissionBound,
		FormID:       sub.FormID,
		Version:      sub.FormVersion,
		SubmissionID: sub.ID.String(),
		OccurredAt:   sub.SubmittedAt,
	})
	return sub, nil
}

func (b *PostgresSubmissionBinder) GetSubmission(ctx context.Context, submissionID uuid.UUID) (*survey.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, submissionColumns, b.tables.Submissions)
	sub, err := scanSubmission(b.pool.QueryRow(ctx, query, submissionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, survey.NewNotFoundError(survey.ErrCodeSubmissionNotFound, "submission not found").
				WithDetail("submissionId", submissionID.String())
		}
		return nil, fmt.Errorf("select submission: %w", err)
	}
	return sub, nil
}

// ListSubmissions returns the form's submissions, newest first.
func (b *PostgresSubmissionBinder) ListSubmissions(ctx context.Context, formID uuid.UUID, limit, offset int) ([]*survey.Submission, error) {
	limit, offset = normalizeLimit(limit, offset, defaultSubmissionLimit, maxSubmissionLimit)
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE form_id = $1 ORDER BY submitted_at DESC, id DESC LIMIT $2 OFFSET $3`,
		submissionColumns, b.tables.Submissions,
	)
	return b.querySubmissions(ctx, query, formID, limit, offset)
}

// ListSubmissionsAfter is keyset paging over the same order as ListSubmissions.
// Rows inserted while a caller walks the pages sort ahead of the cursor, so a
// walk never repeats or skips a row.
func (b *PostgresSubmissionBinder) ListSubmissionsAfter(ctx context.Context, formID uuid.UUID, after *survey.SubmissionCursor, limit int) ([]*survey.Submission, error) {
	limit, _ = normalizeLimit(limit, 0, defaultSubmissionLimit, maxSubmissionLimit)
	if after == nil {
		query := fmt.Sprintf(
			`SELECT %s FROM %s WHERE form_id = $1 ORDER BY submitted_at DESC, id DESC LIMIT $2`,
			submissionColumns, b.tables.Submissions,
		)
		return b.querySubmissions(ctx, query, formID, limit)
	}
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE form_id = $1 AND (submitted_at, id) < ($2, $3) ORDER BY submitted_at DESC, id DESC LIMIT $4`,
		submissionColumns, b.tables.Submissions,
	)
	return b.querySubmissions(ctx, query, formID, after.SubmittedAt, after.ID, limit)
}

func (b *PostgresSubmissionBinder) querySubmissions(ctx context.Context, query string, args ...any) ([]*survey.Submission, error) {
	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	subs := make([]*survey.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, nil
}

// nullableJSON encodes v, or returns nil so the column is stored as SQL NULL.
func nullableJSON(field string, v any, isNull bool) ([]byte, error) {
	if isNull {
		return nil, nil
	}
	return marshalJSON(field, v)
}

func scanSubmission(row pgx.Row) (*survey.Submission, error) {
	var (
		s           survey.Submission
		answersJSON []byte
		consentJSON []byte
		utmJSON     []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.FormID,
		&s.QRCodeID,
		&answersJSON,
		&s.FormVersion,
		&s.SubmittedAt,
		&consentJSON,
		&utmJSON,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("answers", answersJSON, &s.Answers); err != nil {
		return nil, err
	}
	if s.Answers == nil {
		s.Answers = survey.Answers{}
	}
	if err := unmarshalJSON("consent", consentJSON, &s.Consent); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("utm", utmJSON, &s.UTM); err != nil {
		return nil, err
	}
	return &s, nil
}
