package internal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/survey"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var submissionCols = []string{"id", "form_id", "qr_code_id", "answers", "form_version", "submitted_at", "consent", "utm"}

func addSubmissionRow(t *testing.T, rows *pgxmock.Rows, s *survey.Submission) *pgxmock.Rows {
	t.Helper()
	var consent, utm []byte
	if s.Consent != nil {
		consent = mustJSON(t, s.Consent)
	}
	if len(s.UTM) > 0 {
		utm = mustJSON(t, s.UTM)
	}
	return rows.AddRow(s.ID, s.FormID, s.QRCodeID, mustJSON(t, s.Answers), s.FormVersion, s.SubmittedAt, consent, utm)
}

func submissionRows(t *testing.T, subs ...*survey.Submission) *pgxmock.Rows {
	t.Helper()
	rows := pgxmock.NewRows(submissionCols)
	for _, s := range subs {
		addSubmissionRow(t, rows, s)
	}
	return rows
}

func sampleSubmission(formID uuid.UUID, version int, answers map[string]string) *survey.Submission {
	a := survey.Answers{}
	for k, v := range answers {
		a[k] = json.RawMessage(v)
	}
	return &survey.Submission{
		ID:          uuid.New(),
		FormID:      formID,
		QRCodeID:    (*uuid.UUID)(nil),
		Answers:     a,
		FormVersion: version,
		SubmittedAt: fixedNow,
	}
}

func newBinder(mock pgxmock.PgxPoolIface) (*PostgresSubmissionBinder, *recordingEvents) {
	events := &recordingEvents{}
	b := NewPostgresSubmissionBinder(mock, testTables, events)
	b.withClock(func() time.Time { return fixedNow })
	return b, events
}

func TestBindSubmission_StampsCurrentVersionAtInsert(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b, events := newBinder(mock)
	formID := uuid.New()
	qr := uuid.New()
	stored := sampleSubmission(formID, 2, map[string]string{"q1": `"Ada"`})
	stored.QRCodeID = &qr
	stored.UTM = map[string]string{"utm_source": "poster"}

	mock.ExpectQuery(`INSERT INTO "submissions" .* SELECT \$1, f.id, \$3, \$4, COALESCE\(NULLIF\(f.current_version, 0\), 1\)`).
		WithArgs(pgxmock.AnyArg(), formID, &qr, pgxmock.AnyArg(), fixedNow, []byte(nil), []byte(`{"utm_source":"poster"}`)).
		WillReturnRows(submissionRows(t, stored))

	sub, err := b.BindSubmission(ctx, &survey.BindRequest{
		FormID:   formID,
		Answers:  stored.Answers,
		QRCodeID: &qr,
		UTM:      stored.UTM,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sub.FormVersion)
	assert.Equal(t, stored, sub)

	require.Len(t, events.events, 1)
	assert.Equal(t, EventSubmissionBound, events.events[0].Type)
	assert.Equal(t, stored.ID.String(), events.events[0].SubmissionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBindSubmission_UnknownForm(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b, events := newBinder(mock)
	mock.ExpectQuery(`INSERT INTO "submissions"`).WithArgs(anyArgs(7)...).WillReturnError(pgx.ErrNoRows)

	_, err = b.BindSubmission(ctx, &survey.BindRequest{FormID: uuid.New()})
	assert.True(t, survey.IsNotFound(err))
	assert.Empty(t, events.types())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBindSubmission_StoresConsent(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b, _ := newBinder(mock)
	formID := uuid.New()
	stored := sampleSubmission(formID, 1, nil)
	stored.Consent = &survey.ConsentRecord{GrantedAt: fixedNow, IP: "203.0.113.9"}

	mock.ExpectQuery(`INSERT INTO "submissions"`).
		WithArgs(pgxmock.AnyArg(), formID, (*uuid.UUID)(nil), []byte(`{}`), fixedNow, mustJSON(t, stored.Consent), []byte(nil)).
		WillReturnRows(submissionRows(t, stored))

	sub, err := b.BindSubmission(ctx, &survey.BindRequest{FormID: formID, Consent: stored.Consent})
	require.NoError(t, err)
	require.NotNil(t, sub.Consent)
	assert.Equal(t, "203.0.113.9", sub.Consent.IP)
	assert.Nil(t, sub.UTM)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubmission(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b, _ := newBinder(mock)
	stored := sampleSubmission(uuid.New(), 3, map[string]string{"q1": `5`})

	mock.ExpectQuery(`FROM "submissions" WHERE id = \$1`).WithArgs(stored.ID).WillReturnRows(submissionRows(t, stored))
	got, err := b.GetSubmission(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, got)

	mock.ExpectQuery(`FROM "submissions" WHERE id = \$1`).WithArgs(stored.ID).WillReturnError(pgx.ErrNoRows)
	_, err = b.GetSubmission(ctx, stored.ID)
	assert.True(t, survey.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSubmissions_ClampsPaging(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b, _ := newBinder(mock)
	formID := uuid.New()
	newer := sampleSubmission(formID, 2, nil)
	older := sampleSubmission(formID, 1, nil)

	mock.ExpectQuery(`WHERE form_id = \$1 ORDER BY submitted_at DESC, id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(formID, maxSubmissionLimit, 0).
		WillReturnRows(submissionRows(t, newer, older))

	subs, err := b.ListSubmissions(ctx, formID, 5000, -3)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, 2, subs[0].FormVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSubmissionsAfter_Keyset(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b, _ := newBinder(mock)
	formID := uuid.New()
	newer := sampleSubmission(formID, 2, nil)
	older := sampleSubmission(formID, 1, nil)

	mock.ExpectQuery(`WHERE form_id = \$1 ORDER BY submitted_at DESC, id DESC LIMIT \$2$`).
		WithArgs(formID, defaultSubmissionLimit).
		WillReturnRows(submissionRows(t, newer))
	subs, err := b.ListSubmissionsAfter(ctx, formID, nil, 0)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	cursor := survey.CursorOf(subs[0])
	mock.ExpectQuery(`WHERE form_id = \$1 AND \(submitted_at, id\) < \(\$2, \$3\) ORDER BY submitted_at DESC, id DESC LIMIT \$4`).
		WithArgs(formID, newer.SubmittedAt, newer.ID, 10).
		WillReturnRows(submissionRows(t, older))
	subs, err = b.ListSubmissionsAfter(ctx, formID, cursor, 10)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, older.ID, subs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
