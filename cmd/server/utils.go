package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lychee-technology/survey"
	"github.com/lychee-technology/survey/internal"
	"go.uber.org/zap"
)

const maxBodyBytes = 4 << 20

var errEmptyBody = errors.New("request body is empty")

// APIResponse is the standard response format
type APIResponse struct {
	Success bool                `json:"success"`
	Data    interface{}         `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
	Details *survey.SurveyError `json:"details,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess wraps data in a success envelope
func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: true,
		Data:    data,
	})
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch survey.ErrorTypeOf(err) {
	case survey.ErrorTypeValidation:
		return http.StatusBadRequest
	case survey.ErrorTypeNotFound:
		return http.StatusNotFound
	case survey.ErrorTypeConflict:
		return http.StatusConflict
	case survey.ErrorTypeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeSurveyError renders a core error. Internal causes are logged, not returned.
func writeSurveyError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	var se *survey.SurveyError
	if !errors.As(err, &se) {
		zap.S().Errorw("request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	if status >= http.StatusInternalServerError {
		zap.S().Errorw("request failed", "path", r.URL.Path, "code", se.Code, "error", err)
	}
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   se.Message,
		Details: se,
	})
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// readOptionalJSONBody is readJSONBody for endpoints whose body may be absent,
// including chunked requests that turn out to be empty.
func readOptionalJSONBody(r *http.Request, v interface{}) error {
	if err := readJSONBody(r, v); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

// pathUUID parses a UUID route parameter
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}

// pathFormID parses the {id} route parameter as a form UUID or its short code.
func pathFormID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	if id, err := uuid.Parse(raw); err == nil {
		return id, nil
	}
	id, err := internal.ParseFormCode(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

// parsePagination extracts limit and offset from query parameters
func parsePagination(queryParams url.Values) (int, int) {
	limit := 20
	offset := 0

	if l := queryParams.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	if o := queryParams.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
