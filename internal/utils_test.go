package internal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/survey"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "trim quotes and spaces", input: `  "a" . "b" .. "c"  `, expected: pgx.Identifier{"a", "b", "c"}.Sanitize()},
		{name: "mixed quoted and plain", input: `public."Form Drafts"`, expected: pgx.Identifier{"public", "Form Drafts"}.Sanitize()},
		{name: "all empty parts fallback", input: "...", expected: pgx.Identifier{"..."}.Sanitize()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeIdentifier(tt.input))
		})
	}
}

func TestNewStorageTables(t *testing.T) {
	tables := NewStorageTables(survey.TableNames{Forms: "app.forms"})

	assert.Equal(t, `"app"."forms"`, tables.Forms)
	assert.Equal(t, `"form_versions"`, tables.Versions)
	assert.Equal(t, `"form_drafts"`, tables.Drafts)
	assert.Equal(t, `"submissions"`, tables.Submissions)
}

func TestPgErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation})
	serial := &pgconn.PgError{Code: pgSerializationFailure}
	deadlock := &pgconn.PgError{Code: pgDeadlockDetected}
	fk := &pgconn.PgError{Code: pgForeignKeyViolation}

	assert.True(t, isUniqueViolation(unique))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.True(t, isRetryableTxError(serial))
	assert.True(t, isRetryableTxError(deadlock))
	assert.False(t, isRetryableTxError(unique))
	assert.True(t, isForeignKeyViolation(fk))
}

func TestNormalizeLimit(t *testing.T) {
	l, o := normalizeLimit(0, -5, 50, 200)
	assert.Equal(t, 50, l)
	assert.Equal(t, 0, o)

	l, o = normalizeLimit(1000, 10, 50, 200)
	assert.Equal(t, 200, l)
	assert.Equal(t, 10, o)
}
