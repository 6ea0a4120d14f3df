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

const formColumns = `id, code, COALESCE(slug, ''), title, description, fields, consent, status, current_version, is_active, created_at, updated_at`

// PostgresFormRepository manages the live form rows.
type PostgresFormRepository struct {
	pool      dbPool
	tables    StorageTables
	validator *WorkingCopyValidator
	nowFunc   func() time.Time
}

func NewPostgresFormRepository(pool dbPool, tables StorageTables, validator *WorkingCopyValidator) *PostgresFormRepository {
	return &PostgresFormRepository{
		pool:      pool,
		tables:    tables,
		validator: validator,
		nowFunc:   time.Now,
	}
}

func (r *PostgresFormRepository) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	r.nowFunc = now
}

func (r *PostgresFormRepository) now() time.Time {
	return r.nowFunc().UTC()
}

func (r *PostgresFormRepository) CreateForm(ctx context.Context, req *survey.NewForm) (*survey.Form, error) {
	if req == nil {
		return nil, survey.NewValidationError("form", "request is required")
	}

	content := survey.WorkingCopy{
		Title:       req.Title,
		Description: req.Description,
		Fields:      req.Fields,
		Consent:     req.Consent,
	}
	if r.validator != nil {
		prepared, err := r.validator.Prepare(content)
		if err != nil {
			return nil, err
		}
		content = prepared
	}

	fieldsJSON, err := marshalJSON("fields", content.Fields)
	if err != nil {
		return nil, err
	}
	consentJSON, err := marshalJSON("consent", content.Consent)
	if err != nil {
		return nil, err
	}

	now := r.now()
	form := &survey.Form{
		ID:          uuid.Must(uuid.NewV7()),
		Slug:        req.Slug,
		Title:       content.Title,
		Description: content.Description,
		Fields:      content.Fields,
		Consent:     content.Consent,
		Status:      survey.FormStatusDraft,
		IsActive:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, slug, title, description, fields, consent, status, current_version, is_active, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, 0, false, $8, $8)
		RETURNING code`,
		r.tables.Forms,
	)
	err = r.pool.QueryRow(ctx, query,
		form.ID, form.Slug, form.Title, form.Description, fieldsJSON, consentJSON, string(form.Status), now,
	).Scan(&form.Code)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, survey.NewConflictError(survey.ErrCodeSlugConflict, fmt.Sprintf("slug %q is already in use", req.Slug))
		}
		return nil, fmt.Errorf("insert form: %w", err)
	}

	zap.S().Infow("form created", "formId", form.ID, "code", form.Code, "slug", form.Slug)
	return form, nil
}

func (r *PostgresFormRepository) GetForm(ctx context.Context, formID uuid.UUID) (*survey.Form, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, formColumns, r.tables.Forms)
	return r.getOne(ctx, query, formID)
}

func (r *PostgresFormRepository) GetFormBySlug(ctx context.Context, slug string) (*survey.Form, error) {
	if slug == "" {
		return nil, survey.NewValidationError("slug", "slug is required")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE slug = $1`, formColumns, r.tables.Forms)
	return r.getOne(ctx, query, slug)
}

func (r *PostgresFormRepository) getOne(ctx context.Context, query string, arg any) (*survey.Form, error) {
	form, err := scanForm(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, survey.NewNotFoundError(survey.ErrCodeFormNotFound, "form not found").WithDetail("key", arg)
		}
		return nil, fmt.Errorf("select form: %w", err)
	}
	return form, nil
}

func (r *PostgresFormRepository) ListForms(ctx context.Context, q survey.ListFormsQuery) ([]*survey.Form, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, survey.NewValidationError("status", fmt.Sprintf("unknown status %q", q.Status))
	}
	limit, offset := normalizeLimit(q.Limit, q.Offset, 50, 200)

	query := fmt.Sprintf(
		`SELECT %s FROM %s
		WHERE ($1 = '' OR title ILIKE '%%' || $1 || '%%' OR slug ILIKE '%%' || $1 || '%%')
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, code DESC
		LIMIT $3 OFFSET $4`,
		formColumns, r.tables.Forms,
	)
	rows, err := r.pool.Query(ctx, query, q.Search, string(q.Status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	forms := make([]*survey.Form, 0)
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		forms = append(forms, form)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forms: %w", err)
	}
	return forms, nil
}

// SetActive toggles visibility without touching status or version.
func (r *PostgresFormRepository) SetActive(ctx context.Context, formID uuid.UUID, active bool) (*survey.Form, error) {
	query := fmt.Sprintf(
		`UPDATE %s SET is_active = $2, updated_at = $3 WHERE id = $1 RETURNING %s`,
		r.tables.Forms, formColumns,
	)
	form, err := scanForm(r.pool.QueryRow(ctx, query, formID, active, r.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, survey.NewNotFoundError(survey.ErrCodeFormNotFound, "form not found")
		}
		return nil, fmt.Errorf("update form visibility: %w", err)
	}
	return form, nil
}

// ArchiveForm hides the form. A later publish moves it back to published.
func (r *PostgresFormRepository) ArchiveForm(ctx context.Context, formID uuid.UUID) (*survey.Form, error) {
	query := fmt.Sprintf(
		`UPDATE %s SET status = $2, is_active = false, updated_at = $3 WHERE id = $1 RETURNING %s`,
		r.tables.Forms, formColumns,
	)
	form, err := scanForm(r.pool.QueryRow(ctx, query, formID, string(survey.FormStatusArchived), r.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, survey.NewNotFoundError(survey.ErrCodeFormNotFound, "form not found")
		}
		return nil, fmt.Errorf("archive form: %w", err)
	}
	zap.S().Infow("form archived", "formId", formID)
	return form, nil
}

// lockForm reads the form row inside tx and holds a row lock until commit.
func lockForm(ctx context.Context, tx pgx.Tx, tables StorageTables, formID uuid.UUID) (*survey.Form, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, formColumns, tables.Forms)
	form, err := scanForm(tx.QueryRow(ctx, query, formID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, survey.NewNotFoundError(survey.ErrCodeFormNotFound, "form not found").WithDetail("formId", formID.String())
		}
		return nil, fmt.Errorf("lock form: %w", err)
	}
	return form, nil
}

func scanForm(row pgx.Row) (*survey.Form, error) {
	var (
		form        survey.Form
		status      string
		fieldsJSON  []byte
		consentJSON []byte
	)
	if err := row.Scan(
		&form.ID,
		&form.Code,
		&form.Slug,
		&form.Title,
		&form.Description,
		&fieldsJSON,
		&consentJSON,
		&status,
		&form.CurrentVersion,
		&form.IsActive,
		&form.CreatedAt,
		&form.UpdatedAt,
	); err != nil {
		return nil, err
	}
	form.Status = survey.FormStatus(status)
	if err := unmarshalJSON("fields", fieldsJSON, &form.Fields); err != nil {
		return nil, err
	}
	if form.Fields == nil {
		form.Fields = []survey.Field{}
	}
	if err := unmarshalJSON("consent", consentJSON, &form.Consent); err != nil {
		return nil, err
	}
	return &form, nil
}
