package survey

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeCommitFailed    ErrorType = "commit_failed"
	ErrorTypeUnauthenticated ErrorType = "unauthenticated"
	ErrorTypeInternal        ErrorType = "internal"
)

// SurveyError is the typed failure returned by every core operation.
type SurveyError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *SurveyError) Error() string {
	var msg string
	if e.Field != "" {
		msg = fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	} else {
		msg = fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *SurveyError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to the error
func (e *SurveyError) WithDetail(key string, value any) *SurveyError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying error
func (e *SurveyError) WithCause(cause error) *SurveyError {
	e.Cause = cause
	return e
}

const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeTitleRequired    = "TITLE_REQUIRED"
	ErrCodeSlugRequired     = "SLUG_REQUIRED"
	ErrCodeFieldsRequired   = "FIELDS_REQUIRED"
	ErrCodeInvalidFieldType = "INVALID_FIELD_TYPE"
	ErrCodeDuplicateFieldID = "DUPLICATE_FIELD_ID"

	ErrCodeFormNotFound       = "FORM_NOT_FOUND"
	ErrCodeVersionNotFound    = "VERSION_NOT_FOUND"
	ErrCodeDraftNotFound      = "DRAFT_NOT_FOUND"
	ErrCodeSubmissionNotFound = "SUBMISSION_NOT_FOUND"

	ErrCodeVersionConflict = "VERSION_CONFLICT"
	ErrCodeDraftConflict   = "DRAFT_REVISION_CONFLICT"
	ErrCodeSlugConflict    = "SLUG_CONFLICT"

	ErrCodeCommitFailed  = "COMMIT_FAILED"
	ErrCodeActorRequired = "ACTOR_REQUIRED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

func newSurveyError(t ErrorType, code, message string) *SurveyError {
	return &SurveyError{
		Type:    t,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewValidationError creates a validation error for a named field
func NewValidationError(field, message string) *SurveyError {
	e := newSurveyError(ErrorTypeValidation, ErrCodeValidationFailed, message)
	e.Field = field
	return e
}

// NewValidationErrorWithCode creates a validation error carrying a specific code
func NewValidationErrorWithCode(code, field, message string) *SurveyError {
	e := newSurveyError(ErrorTypeValidation, code, message)
	e.Field = field
	return e
}

// NewNotFoundError creates a not found error
func NewNotFoundError(code, message string) *SurveyError {
	return newSurveyError(ErrorTypeNotFound, code, message)
}

// NewConflictError creates a conflict error
func NewConflictError(code, message string) *SurveyError {
	return newSurveyError(ErrorTypeConflict, code, message)
}

// NewCommitFailedError creates a commit failure wrapping the storage error
func NewCommitFailedError(message string, cause error) *SurveyError {
	return newSurveyError(ErrorTypeCommitFailed, ErrCodeCommitFailed, message).WithCause(cause)
}

// NewUnauthenticatedError creates an error for operations that need a known actor
func NewUnauthenticatedError(message string) *SurveyError {
	return newSurveyError(ErrorTypeUnauthenticated, ErrCodeActorRequired, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *SurveyError {
	return newSurveyError(ErrorTypeInternal, ErrCodeInternalError, message).WithCause(cause)
}

// ErrorTypeOf returns the type of the first SurveyError in err's chain, or internal.
func ErrorTypeOf(err error) ErrorType {
	var se *SurveyError
	if errors.As(err, &se) {
		return se.Type
	}
	return ErrorTypeInternal
}

func isType(err error, t ErrorType) bool {
	var se *SurveyError
	return errors.As(err, &se) && se.Type == t
}

func IsValidation(err error) bool      { return isType(err, ErrorTypeValidation) }
func IsNotFound(err error) bool        { return isType(err, ErrorTypeNotFound) }
func IsConflict(err error) bool        { return isType(err, ErrorTypeConflict) }
func IsCommitFailed(err error) bool    { return isType(err, ErrorTypeCommitFailed) }
func IsUnauthenticated(err error) bool { return isType(err, ErrorTypeUnauthenticated) }
