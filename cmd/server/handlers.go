package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lychee-technology/survey"
	"github.com/lychee-technology/survey/internal"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateForm handles POST /api/v1/forms
func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	var req survey.NewForm
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	form, err := s.manager.CreateForm(r.Context(), &req)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, form)
}

// handleListForms handles GET /api/v1/forms?search=...&status=...&limit=...&offset=...
func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	queryParams := r.URL.Query()
	limit, offset := parsePagination(queryParams)

	status := survey.FormStatus(queryParams.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status: %s", status))
		return
	}

	forms, err := s.manager.ListForms(r.Context(), survey.ListFormsQuery{
		Search: strings.TrimSpace(queryParams.Get("search")),
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, forms)
}

// handleGetForm handles GET /api/v1/forms/{id}
func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	form, err := s.manager.GetForm(r.Context(), formID)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, form)
}

// handleGetFormBySlug handles GET /api/v1/forms/by-slug/{slug}
func (s *Server) handleGetFormBySlug(w http.ResponseWriter, r *http.Request) {
	form, err := s.manager.GetFormBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, form)
}

// handleSetActive handles PUT /api/v1/forms/{id}/active
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := readJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	if body.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	form, err := s.manager.SetActive(r.Context(), formID, *body.Active)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, form)
}

// handleArchiveForm handles POST /api/v1/forms/{id}/archive
func (s *Server) handleArchiveForm(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	form, err := s.manager.ArchiveForm(r.Context(), formID)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, form)
}

// handleLoadDraft handles GET /api/v1/forms/{id}/draft
func (s *Server) handleLoadDraft(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	draft, err := s.manager.LoadDraft(r.Context(), formID)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	if draft == nil {
		writeSurveyError(w, r, survey.NewNotFoundError(survey.ErrCodeDraftNotFound, "form has no draft"))
		return
	}
	writeSuccess(w, http.StatusOK, draft)
}

// handleSaveDraft handles PUT /api/v1/forms/{id}/draft
func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req survey.SaveDraftRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	req.FormID = formID
	req.ActorID = actorFromContext(r.Context())

	draft, err := s.manager.SaveDraft(r.Context(), &req)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, draft)
}

// handleDiscardDraft handles DELETE /api/v1/forms/{id}/draft
func (s *Server) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if actorFromContext(r.Context()) == "" {
		writeSurveyError(w, r, survey.NewUnauthenticatedError("discarding a draft requires an authenticated actor"))
		return
	}
	if err := s.manager.DiscardDraft(r.Context(), formID); err != nil {
		writeSurveyError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePublish handles POST /api/v1/forms/{id}/publish. The body is optional.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req survey.PublishRequest
	if err := readOptionalJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	req.FormID = formID
	req.ActorID = actorFromContext(r.Context())

	result, err := s.manager.Publish(r.Context(), &req)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, result)
}

// handleListVersions handles GET /api/v1/forms/{id}/versions
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	versions, err := s.manager.GetVersions(r.Context(), formID)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, versions)
}

func pathVersion(r *http.Request) (int, error) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		return 0, fmt.Errorf("invalid version: %q", chi.URLParam(r, "version"))
	}
	return version, nil
}

// handleGetVersion handles GET /api/v1/forms/{id}/versions/{version}
func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.manager.GetVersion(r.Context(), formID, version)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, v)
}

// handleRevert handles POST /api/v1/forms/{id}/versions/{version}/revert
func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		Notes string `json:"notes"`
	}
	if err := readOptionalJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	draft, err := s.manager.CreateDraftFromVersion(r.Context(), &survey.RevertRequest{
		FormID:        formID,
		TargetVersion: version,
		ActorID:       actorFromContext(r.Context()),
		Notes:         body.Notes,
	})
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, draft)
}

// handleBindSubmission handles POST /api/v1/forms/{id}/submissions
func (s *Server) handleBindSubmission(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req survey.BindRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	req.FormID = formID
	if req.Consent != nil && req.Consent.IP == "" {
		req.Consent.IP = clientIP(r)
	}

	submission, err := s.manager.BindSubmission(r.Context(), &req)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, submission)
}

// handleListSubmissions handles GET /api/v1/forms/{id}/submissions?limit=...&offset=...
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset := parsePagination(r.URL.Query())
	submissions, err := s.manager.ListSubmissions(r.Context(), formID, limit, offset)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, submissions)
}

// handleGetSubmission handles GET /api/v1/submissions/{submissionID}
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID, err := pathUUID(r, "submissionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	submission, err := s.manager.GetSubmission(r.Context(), submissionID)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, submission)
}

// handleExportCSV handles GET /api/v1/forms/{id}/submissions.csv
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	var buf bytes.Buffer
	if _, err := s.exporter.WriteCSV(r.Context(), formID, &buf); err != nil {
		writeSurveyError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, internal.FormCode(formID)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// handleExportToS3 handles POST /api/v1/forms/{id}/exports
func (s *Server) handleExportToS3(w http.ResponseWriter, r *http.Request) {
	formID, err := pathFormID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}
	if actorFromContext(r.Context()) == "" {
		writeSurveyError(w, r, survey.NewUnauthenticatedError("exports require an authenticated actor"))
		return
	}

	result, err := s.exporter.ExportToS3(r.Context(), formID)
	if err != nil {
		writeSurveyError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, result)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
