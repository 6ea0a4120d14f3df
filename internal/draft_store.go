package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/survey"
	"go.uber.org/zap"
)

const draftColumns = `form_id, title, description, fields, consent, status, is_revert, revert_to_version, revert_notes, revision, updated_by, created_at, updated_at`

// PostgresDraftStore keeps at most one draft per form. The primary key on form_id
// makes every save an atomic upsert.
type PostgresDraftStore struct {
	pool      dbPool
	tables    StorageTables
	validator *WorkingCopyValidator
	nowFunc   func() time.Time
}

func NewPostgresDraftStore(pool dbPool, tables StorageTables, validator *WorkingCopyValidator) *PostgresDraftStore {
	return &PostgresDraftStore{
		pool:      pool,
		tables:    tables,
		validator: validator,
		nowFunc:   time.Now,
	}
}

func (s *PostgresDraftStore) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.nowFunc = now
}

// SaveDraft fully replaces the form's working copy. Revert markers of an existing
// draft are preserved.
func (s *PostgresDraftStore) SaveDraft(ctx context.Context, req *survey.SaveDraftRequest) (*survey.Draft, error) {
	if req == nil {
		return nil, survey.NewValidationError("draft", "request is required")
	}
	wc := req.WorkingCopy
	if s.validator != nil {
		prepared, err := s.validator.Prepare(wc)
		if err != nil {
			return nil, err
		}
		wc = prepared
	} else {
		wc = wc.Clone()
	}

	var saved *survey.Draft
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		d, err := upsertDraft(ctx, tx, s.tables, draftWrite{
			formID:           req.FormID,
			workingCopy:      wc,
			actorID:          req.ActorID,
			expectedRevision: req.ExpectedRevision,
			now:              s.nowFunc().UTC(),
		})
		if err != nil {
			return err
		}
		saved = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("draft saved", "formId", req.FormID, "revision", saved.Revision, "fields", len(saved.WorkingCopy.Fields))
	return saved, nil
}

// LoadDraft returns the form's draft, or nil when none exists.
func (s *PostgresDraftStore) LoadDraft(ctx context.Context, formID uuid.UUID) (*survey.Draft, error) {
	return loadDraft(ctx, s.pool, s.tables, formID)
}

// DiscardDraft deletes the draft. Discarding a missing draft is a no-op.
func (s *PostgresDraftStore) DiscardDraft(ctx context.Context, formID uuid.UUID) error {
	deleted, err := deleteDraft(ctx, s.pool, s.tables, formID)
	if err != nil {
		return err
	}
	if deleted {
		zap.S().Infow("draft discarded", "formId", formID)
	}
	return nil
}

type draftWrite struct {
	formID           uuid.UUID
	workingCopy      survey.WorkingCopy
	actorID          string
	expectedRevision *int64
	now              time.Time

	// revert writes replace the revert markers instead of keeping them
	revert          bool
	revertToVersion *int
	revertNotes     string
}

// upsertDraft inserts or replaces the draft row. With an expected revision the
// update only applies when the stored revision matches; otherwise the write is
// last-write-wins.
func upsertDraft(ctx context.Context, q querier, tables StorageTables, w draftWrite) (*survey.Draft, error) {
	fieldsJSON, err := marshalJSON("fields", w.workingCopy.Fields)
	if err != nil {
		return nil, err
	}
	consentJSON, err := marshalJSON("consent", w.workingCopy.Consent)
	if err != nil {
		return nil, err
	}

	revertSet := `is_revert = d.is_revert, revert_to_version = d.revert_to_version, revert_notes = d.revert_notes`
	if w.revert {
		revertSet = `is_revert = EXCLUDED.is_revert, revert_to_version = EXCLUDED.revert_to_version, revert_notes = EXCLUDED.revert_notes`
	}

	query := fmt.Sprintf(
		`INSERT INTO %s AS d (form_id, title, description, fields, consent, status, is_revert, revert_to_version, revert_notes, revision, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11, $11)
		ON CONFLICT (form_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			fields = EXCLUDED.fields,
			consent = EXCLUDED.consent,
			status = EXCLUDED.status,
			%s,
			revision = d.revision + 1,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
		WHERE $12::bigint IS NULL OR d.revision = $12::bigint
		RETURNING %s`,
		tables.Drafts, revertSet, qualify("d", draftColumns),
	)

	draft, err := scanDraft(q.QueryRow(ctx, query,
		w.formID,
		w.workingCopy.Title,
		w.workingCopy.Description,
		fieldsJSON,
		consentJSON,
		string(survey.DraftStatusEditing),
		w.revert,
		w.revertToVersion,
		w.revertNotes,
		w.actorID,
		w.now,
		w.expectedRevision,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, staleDraft(w.formID, w.expectedRevision)
		}
		if isForeignKeyViolation(err) {
			return nil, survey.NewNotFoundError(survey.ErrCodeFormNotFound, "form not found").WithDetail("formId", w.formID.String())
		}
		return nil, fmt.Errorf("upsert draft: %w", err)
	}

	// a fresh insert while the caller expected an existing revision means the
	// draft it read was published or discarded in the meantime
	if w.expectedRevision != nil && *w.expectedRevision > 0 && draft.Revision == 1 {
		return nil, staleDraft(w.formID, w.expectedRevision)
	}
	return draft, nil
}

func staleDraft(formID uuid.UUID, expected *int64) *survey.SurveyError {
	e := survey.NewConflictError(survey.ErrCodeDraftConflict, "draft was modified since it was loaded").
		WithDetail("formId", formID.String())
	if expected != nil {
		e.WithDetail("expectedRevision", *expected)
	}
	return e
}

func loadDraft(ctx context.Context, q querier, tables StorageTables, formID uuid.UUID) (*survey.Draft, error) {
	return selectDraft(ctx, q, fmt.Sprintf(`SELECT %s FROM %s WHERE form_id = $1`, draftColumns, tables.Drafts), formID)
}

// lockDraft reads the draft FOR UPDATE so a concurrent save waits until the
// surrounding publish has committed or rolled back.
func lockDraft(ctx context.Context, tx pgx.Tx, tables StorageTables, formID uuid.UUID) (*survey.Draft, error) {
	return selectDraft(ctx, tx, fmt.Sprintf(`SELECT %s FROM %s WHERE form_id = $1 FOR UPDATE`, draftColumns, tables.Drafts), formID)
}

func selectDraft(ctx context.Context, q querier, query string, formID uuid.UUID) (*survey.Draft, error) {
	draft, err := scanDraft(q.QueryRow(ctx, query, formID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select draft: %w", err)
	}
	return draft, nil
}

func deleteDraft(ctx context.Context, q querier, tables StorageTables, formID uuid.UUID) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE form_id = $1`, tables.Drafts)
	tag, err := q.Exec(ctx, query, formID)
	if err != nil {
		return false, fmt.Errorf("delete draft: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// consumeDraft deletes the draft only at the revision that was published. Zero
// affected rows means the draft moved on, which is handled like a lost version
// race so the publish is retried against the newer content.
func consumeDraft(ctx context.Context, tx pgx.Tx, tables StorageTables, draft *survey.Draft, version int) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE form_id = $1 AND revision = $2`, tables.Drafts)
	tag, err := tx.Exec(ctx, query, draft.FormID, draft.Revision)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflict(draft.FormID, version).WithDetail("draftRevision", draft.Revision)
	}
	return nil
}

func scanDraft(row pgx.Row) (*survey.Draft, error) {
	var (
		d           survey.Draft
		status      string
		fieldsJSON  []byte
		consentJSON []byte
	)
	if err := row.Scan(
		&d.FormID,
		&d.WorkingCopy.Title,
		&d.WorkingCopy.Description,
		&fieldsJSON,
		&consentJSON,
		&status,
		&d.IsRevert,
		&d.RevertToVersion,
		&d.RevertNotes,
		&d.Revision,
		&d.UpdatedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Status = survey.DraftStatus(status)
	if err := unmarshalJSON("fields", fieldsJSON, &d.WorkingCopy.Fields); err != nil {
		return nil, err
	}
	if d.WorkingCopy.Fields == nil {
		d.WorkingCopy.Fields = []survey.Field{}
	}
	if err := unmarshalJSON("consent", consentJSON, &d.WorkingCopy.Consent); err != nil {
		return nil, err
	}
	return &d, nil
}

// qualify prefixes each comma separated column with alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
