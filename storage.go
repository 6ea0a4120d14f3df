package survey

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// NewForm carries the initial content of a form created in draft status.
type NewForm struct {
	Slug        string        `json:"slug"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Fields      []Field       `json:"fields,omitempty"`
	Consent     ConsentConfig `json:"consent"`
}

type ListFormsQuery struct {
	Search string     `json:"search,omitempty"`
	Status FormStatus `json:"status,omitempty"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// AppendVersionRequest appends a snapshot at current_version + 1.
type AppendVersionRequest struct {
	FormID        uuid.UUID
	Snapshot      WorkingCopy
	PublishedBy   string
	ChangeSummary string
	IsReverted    bool
}

// SaveDraftRequest upserts the single draft of a form. A nil ExpectedRevision means
// last-write-wins; a non-nil value must match the stored revision or the save fails
// with a conflict.
type SaveDraftRequest struct {
	FormID           uuid.UUID   `json:"formId"`
	WorkingCopy      WorkingCopy `json:"workingCopy"`
	ActorID          string      `json:"-"`
	ExpectedRevision *int64      `json:"expectedRevision,omitempty"`
}

// PublishRequest promotes content into a new immutable version. Content is taken
// from the form's draft when one exists, otherwise from Inline, otherwise from the
// live form.
type PublishRequest struct {
	FormID        uuid.UUID    `json:"formId"`
	ActorID       string       `json:"-"`
	ChangeSummary string       `json:"changeSummary,omitempty"`
	Slug          string       `json:"slug,omitempty"`
	Inline        *WorkingCopy `json:"inline,omitempty"`
}

type PublishResult struct {
	Form    *Form        `json:"form"`
	Version *FormVersion `json:"version"`
}

// RevertRequest materializes a historical version into the form's draft.
type RevertRequest struct {
	FormID        uuid.UUID `json:"formId"`
	TargetVersion int       `json:"targetVersion"`
	ActorID       string    `json:"-"`
	Notes         string    `json:"notes,omitempty"`
}

// BindRequest is a completed answer set arriving from the rendering surface.
type BindRequest struct {
	FormID   uuid.UUID         `json:"formId"`
	Answers  Answers           `json:"answers"`
	QRCodeID *uuid.UUID        `json:"qrCodeId,omitempty"`
	Consent  *ConsentRecord    `json:"consent,omitempty"`
	UTM      map[string]string `json:"utm,omitempty"`
}

// ExportResult describes an uploaded CSV export.
type ExportResult struct {
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Location   string    `json:"location,omitempty"`
	Rows       int       `json:"rows"`
	ExportedAt time.Time `json:"exportedAt"`
}

// FormRegistry manages the live form rows.
type FormRegistry interface {
	CreateForm(ctx context.Context, req *NewForm) (*Form, error)
	GetForm(ctx context.Context, formID uuid.UUID) (*Form, error)
	GetFormBySlug(ctx context.Context, slug string) (*Form, error)
	ListForms(ctx context.Context, query ListFormsQuery) ([]*Form, error)
	SetActive(ctx context.Context, formID uuid.UUID, active bool) (*Form, error)
	ArchiveForm(ctx context.Context, formID uuid.UUID) (*Form, error)
}

// VersionStore is the append-only ledger of published snapshots. It exposes no
// update or delete.
type VersionStore interface {
	GetVersions(ctx context.Context, formID uuid.UUID) ([]FormVersion, error)
	GetVersion(ctx context.Context, formID uuid.UUID, version int) (*FormVersion, error)
	AppendVersion(ctx context.Context, req *AppendVersionRequest) (*FormVersion, error)
}

// DraftStore holds at most one draft per form.
type DraftStore interface {
	SaveDraft(ctx context.Context, req *SaveDraftRequest) (*Draft, error)
	LoadDraft(ctx context.Context, formID uuid.UUID) (*Draft, error)
	DiscardDraft(ctx context.Context, formID uuid.UUID) error
}

type Publisher interface {
	Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error)
}

type Reverter interface {
	CreateDraftFromVersion(ctx context.Context, req *RevertRequest) (*Draft, error)
}

// SubmissionBinder stamps submissions with the version active at insert time.
type SubmissionBinder interface {
	BindSubmission(ctx context.Context, req *BindRequest) (*Submission, error)
	GetSubmission(ctx context.Context, submissionID uuid.UUID) (*Submission, error)
	ListSubmissions(ctx context.Context, formID uuid.UUID, limit, offset int) ([]*Submission, error)
	// ListSubmissionsAfter pages newest first by (submitted_at, id), returning
	// rows strictly older than after. A nil cursor starts at the newest row.
	ListSubmissionsAfter(ctx context.Context, formID uuid.UUID, after *SubmissionCursor, limit int) ([]*Submission, error)
}

// SubmissionCursor is a position in the newest-first submission order.
type SubmissionCursor struct {
	SubmittedAt time.Time
	ID          uuid.UUID
}

// CursorOf returns the position just past s.
func CursorOf(s *Submission) *SubmissionCursor {
	return &SubmissionCursor{SubmittedAt: s.SubmittedAt, ID: s.ID}
}

// FormManager is the full versioning core.
type FormManager interface {
	FormRegistry
	VersionStore
	DraftStore
	Publisher
	Reverter
	SubmissionBinder
}

// Exporter projects submissions into tabular exports.
type Exporter interface {
	WriteCSV(ctx context.Context, formID uuid.UUID, w io.Writer) (int, error)
	ExportToS3(ctx context.Context, formID uuid.UUID) (*ExportResult, error)
}
