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

const versionColumns = `form_id, version, title, description, fields, consent, change_summary, published_at, published_by, is_reverted`

// PostgresVersionStore is the append-only ledger of published snapshots.
type PostgresVersionStore struct {
	pool    dbPool
	tables  StorageTables
	retry   retryPolicy
	nowFunc func() time.Time
}

func NewPostgresVersionStore(pool dbPool, tables StorageTables, txCfg survey.TransactionConfig) *PostgresVersionStore {
	return &PostgresVersionStore{
		pool:    pool,
		tables:  tables,
		retry:   newRetryPolicy(txCfg),
		nowFunc: time.Now,
	}
}

func (s *PostgresVersionStore) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.nowFunc = now
}

// GetVersions returns every snapshot of the form, newest first.
func (s *PostgresVersionStore) GetVersions(ctx context.Context, formID uuid.UUID) ([]survey.FormVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE form_id = $1 ORDER BY version DESC`, versionColumns, s.tables.Versions)
	rows, err := s.pool.Query(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := make([]survey.FormVersion, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}

	if len(versions) == 0 {
		if err := s.ensureFormExists(ctx, formID); err != nil {
			return nil, err
		}
	}
	return versions, nil
}

func (s *PostgresVersionStore) GetVersion(ctx context.Context, formID uuid.UUID, version int) (*survey.FormVersion, error) {
	return getVersion(ctx, s.pool, s.tables, formID, version)
}

// AppendVersion allocates current_version + 1 for the snapshot and advances the
// form pointer in the same transaction. It does not touch the live form content;
// use Publish for the full promotion.
func (s *PostgresVersionStore) AppendVersion(ctx context.Context, req *survey.AppendVersionRequest) (*survey.FormVersion, error) {
	if req == nil {
		return nil, survey.NewValidationError("request", "request is required")
	}
	if req.PublishedBy == "" {
		return nil, survey.NewUnauthenticatedError("appending a version requires a known actor")
	}
	if len(req.Snapshot.Fields) == 0 {
		return nil, survey.NewValidationErrorWithCode(survey.ErrCodeFieldsRequired, "fields", "fields.length == 0")
	}

	var appended *survey.FormVersion
	err := s.retry.run(ctx, "append version", func(attempt int) error {
		return withTx(ctx, s.pool, func(tx pgx.Tx) error {
			form, err := lockForm(ctx, tx, s.tables, req.FormID)
			if err != nil {
				return err
			}
			firstSeen, err := loadFirstSeen(ctx, tx, s.tables, req.FormID)
			if err != nil {
				return err
			}

			newVersion := form.CurrentVersion + 1
			summary := req.ChangeSummary
			if summary == "" {
				summary = defaultChangeSummary(newVersion, nil)
			}
			v := &survey.FormVersion{
				FormID:        req.FormID,
				Version:       newVersion,
				Title:         req.Snapshot.Title,
				Description:   req.Snapshot.Description,
				Fields:        survey.StampVersionAdded(req.Snapshot.Fields, firstSeen, newVersion),
				Consent:       req.Snapshot.Consent,
				ChangeSummary: summary,
				PublishedAt:   s.nowFunc().UTC(),
				PublishedBy:   req.PublishedBy,
				IsReverted:    req.IsReverted,
			}
			if err := insertVersion(ctx, tx, s.tables, v); err != nil {
				return err
			}

			query := fmt.Sprintf(
				`UPDATE %s SET current_version = $2, status = $3, updated_at = $4 WHERE id = $1 AND current_version = $5`,
				s.tables.Forms,
			)
			tag, err := tx.Exec(ctx, query, req.FormID, newVersion, string(survey.FormStatusPublished), v.PublishedAt, form.CurrentVersion)
			if err != nil {
				return fmt.Errorf("advance current version: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return versionConflict(req.FormID, newVersion)
			}
			appended = v
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	zap.S().Infow("version appended", "formId", req.FormID, "version", appended.Version, "publishedBy", appended.PublishedBy)
	return appended, nil
}

func (s *PostgresVersionStore) ensureFormExists(ctx context.Context, formID uuid.UUID) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, s.tables.Forms)
	if err := s.pool.QueryRow(ctx, query, formID).Scan(&exists); err != nil {
		return fmt.Errorf("check form: %w", err)
	}
	if !exists {
		return survey.NewNotFoundError(survey.ErrCodeFormNotFound, "form not found").WithDetail("formId", formID.String())
	}
	return nil
}

func getVersion(ctx context.Context, q querier, tables StorageTables, formID uuid.UUID, version int) (*survey.FormVersion, error) {
	if version < 1 {
		return nil, survey.NewNotFoundError(survey.ErrCodeVersionNotFound, fmt.Sprintf("version %d not found", version))
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE form_id = $1 AND version = $2`, versionColumns, tables.Versions)
	v, err := scanVersion(q.QueryRow(ctx, query, formID, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, survey.NewNotFoundError(survey.ErrCodeVersionNotFound, fmt.Sprintf("version %d not found", version)).
				WithDetail("formId", formID.String())
		}
		return nil, fmt.Errorf("select version: %w", err)
	}
	return v, nil
}

// loadFirstSeen maps every field id ever published for the form to the first
// version whose snapshot contained it.
func loadFirstSeen(ctx context.Context, q querier, tables StorageTables, formID uuid.UUID) (map[string]int, error) {
	query := fmt.Sprintf(
		`SELECT f->>'id', MIN(v.version)
		FROM %s v CROSS JOIN LATERAL jsonb_array_elements(v.fields) AS f
		WHERE v.form_id = $1
		GROUP BY 1`,
		tables.Versions,
	)
	rows, err := q.Query(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("load field history: %w", err)
	}
	defer rows.Close()

	firstSeen := make(map[string]int)
	for rows.Next() {
		var (
			id      string
			version int
		)
		if err := rows.Scan(&id, &version); err != nil {
			return nil, fmt.Errorf("scan field history: %w", err)
		}
		firstSeen[id] = version
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field history: %w", err)
	}
	return firstSeen, nil
}

// insertVersion writes the immutable row. A duplicate (form_id, version) means a
// concurrent publisher claimed the number first.
func insertVersion(ctx context.Context, tx pgx.Tx, tables StorageTables, v *survey.FormVersion) error {
	fieldsJSON, err := marshalJSON("fields", v.Fields)
	if err != nil {
		return err
	}
	consentJSON, err := marshalJSON("consent", v.Consent)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tables.Versions, versionColumns,
	)
	if _, err := tx.Exec(ctx, query,
		v.FormID, v.Version, v.Title, v.Description, fieldsJSON, consentJSON,
		v.ChangeSummary, v.PublishedAt, v.PublishedBy, v.IsReverted,
	); err != nil {
		if isUniqueViolation(err) {
			return versionConflict(v.FormID, v.Version).WithCause(err)
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func versionConflict(formID uuid.UUID, version int) *survey.SurveyError {
	return survey.NewConflictError(survey.ErrCodeVersionConflict,
		fmt.Sprintf("version %d was claimed by a concurrent publish", version)).
		WithDetail("formId", formID.String()).
		WithDetail("version", version)
}

// defaultChangeSummary is used when the publisher gives none.
func defaultChangeSummary(newVersion int, revertTo *int) string {
	if revertTo != nil {
		return fmt.Sprintf("Reverted to v%d + edits", *revertTo)
	}
	return fmt.Sprintf("Updated to version %d", newVersion)
}

func scanVersion(row pgx.Row) (*survey.FormVersion, error) {
	var (
		v           survey.FormVersion
		fieldsJSON  []byte
		consentJSON []byte
	)
	if err := row.Scan(
		&v.FormID,
		&v.Version,
		&v.Title,
		&v.Description,
		&fieldsJSON,
		&consentJSON,
		&v.ChangeSummary,
		&v.PublishedAt,
		&v.PublishedBy,
		&v.IsReverted,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("fields", fieldsJSON, &v.Fields); err != nil {
		return nil, err
	}
	if v.Fields == nil {
		v.Fields = []survey.Field{}
	}
	if err := unmarshalJSON("consent", consentJSON, &v.Consent); err != nil {
		return nil, err
	}
	return &v, nil
}
