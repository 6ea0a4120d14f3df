package survey

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSurveyError_Error(t *testing.T) {
	assert.Equal(t, "[validation:VALIDATION_FAILED] field 'title': title is required",
		NewValidationError("title", "title is required").Error())
	assert.Equal(t, "[not_found:FORM_NOT_FOUND] form not found",
		NewNotFoundError(ErrCodeFormNotFound, "form not found").Error())

	cause := errors.New("connection reset")
	err := NewCommitFailedError("publish failed", cause)
	assert.Equal(t, "[commit_failed:COMMIT_FAILED] publish failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("publish: %w", NewConflictError(ErrCodeVersionConflict, "version taken"))

	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Equal(t, ErrorTypeConflict, ErrorTypeOf(wrapped))

	assert.True(t, IsUnauthenticated(NewUnauthenticatedError("actor required")))
	assert.True(t, IsNotFound(NewNotFoundError(ErrCodeVersionNotFound, "missing")))
	assert.True(t, IsCommitFailed(NewCommitFailedError("x", nil)))
	assert.Equal(t, ErrorTypeInternal, ErrorTypeOf(errors.New("plain")))
}

func TestSurveyError_WithDetail(t *testing.T) {
	err := NewConflictError(ErrCodeDraftConflict, "stale").WithDetail("expected", int64(3))
	assert.Equal(t, int64(3), err.Details["expected"])

	var bare SurveyError
	bare.WithDetail("k", "v")
	assert.Equal(t, "v", bare.Details["k"])
}
