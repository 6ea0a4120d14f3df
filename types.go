package survey

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FormStatus is the lifecycle status of a Form.
type FormStatus string

const (
	FormStatusDraft     FormStatus = "draft"
	FormStatusPublished FormStatus = "published"
	FormStatusArchived  FormStatus = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s FormStatus) Valid() bool {
	switch s {
	case FormStatusDraft, FormStatusPublished, FormStatusArchived:
		return true
	}
	return false
}

// FieldType is the closed set of question and layout elements a form may contain.
type FieldType string

const (
	// Text variants
	FieldTypeShortText FieldType = "short_text"
	FieldTypeLongText  FieldType = "long_text"
	FieldTypeEmail     FieldType = "email"
	FieldTypePhone     FieldType = "phone"
	FieldTypeNumber    FieldType = "number"
	FieldTypeDate      FieldType = "date"

	// Choice variants
	FieldTypeSingleChoice   FieldType = "single_choice"
	FieldTypeMultipleChoice FieldType = "multiple_choice"
	FieldTypeDropdown       FieldType = "dropdown"
	FieldTypeCheckbox       FieldType = "checkbox"

	// Rating and scale
	FieldTypeRating FieldType = "rating"
	FieldTypeScale  FieldType = "scale"

	// Layout markers, never answered
	FieldTypeSection   FieldType = "section"
	FieldTypeHeading   FieldType = "heading"
	FieldTypeParagraph FieldType = "paragraph"
	FieldTypeDivider   FieldType = "divider"
)

// FieldTypes lists every supported field type in palette order.
var FieldTypes = []FieldType{
	FieldTypeShortText, FieldTypeLongText, FieldTypeEmail, FieldTypePhone, FieldTypeNumber, FieldTypeDate,
	FieldTypeSingleChoice, FieldTypeMultipleChoice, FieldTypeDropdown, FieldTypeCheckbox,
	FieldTypeRating, FieldTypeScale,
	FieldTypeSection, FieldTypeHeading, FieldTypeParagraph, FieldTypeDivider,
}

// Valid reports whether t belongs to the supported set.
func (t FieldType) Valid() bool {
	for _, known := range FieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsLayout reports whether the field only structures the form and collects no answer.
func (t FieldType) IsLayout() bool {
	switch t {
	case FieldTypeSection, FieldTypeHeading, FieldTypeParagraph, FieldTypeDivider:
		return true
	}
	return false
}

// IsChoice reports whether answers are picked from the field's options.
func (t FieldType) IsChoice() bool {
	switch t {
	case FieldTypeSingleChoice, FieldTypeMultipleChoice, FieldTypeDropdown, FieldTypeCheckbox:
		return true
	}
	return false
}

// IsMultiValue reports whether an answer may hold several values.
func (t FieldType) IsMultiValue() bool {
	return t == FieldTypeMultipleChoice || t == FieldTypeCheckbox
}

type FieldOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FieldValidation holds the required flag and type-specific rules.
type FieldValidation struct {
	Required  bool     `json:"required"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

// Field is one question or layout element. ID is assigned once and never reused.
// VersionAdded is nil for baseline fields present since version 1.
type Field struct {
	ID           string          `json:"id"`
	Type         FieldType       `json:"type"`
	Label        string          `json:"label"`
	Description  string          `json:"description,omitempty"`
	Placeholder  string          `json:"placeholder,omitempty"`
	Options      []FieldOption   `json:"options,omitempty"`
	Validation   FieldValidation `json:"validation"`
	VersionAdded *int            `json:"versionAdded,omitempty"`
}

// ConsentConfig configures the consent step shown before a respondent answers.
type ConsentConfig struct {
	Enabled            bool   `json:"enabled"`
	Title              string `json:"title,omitempty"`
	Text               string `json:"text,omitempty"`
	RequireGeolocation bool   `json:"requireGeolocation,omitempty"`
}

// WorkingCopy is the editable representation of a form's content. It is held by
// drafts and promoted into a FormVersion snapshot on publish.
type WorkingCopy struct {
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Fields      []Field       `json:"fields"`
	Consent     ConsentConfig `json:"consent"`
}

// Clone returns a deep copy that shares no memory with w.
func (w WorkingCopy) Clone() WorkingCopy {
	return WorkingCopy{
		Title:       w.Title,
		Description: w.Description,
		Fields:      CloneFields(w.Fields),
		Consent:     w.Consent,
	}
}

// Form is the live addressable survey entity.
type Form struct {
	ID             uuid.UUID     `json:"id"`
	Code           int64         `json:"code"`
	Slug           string        `json:"slug"`
	Title          string        `json:"title"`
	Description    string        `json:"description,omitempty"`
	Fields         []Field       `json:"fields"`
	Consent        ConsentConfig `json:"consent"`
	Status         FormStatus    `json:"status"`
	CurrentVersion int           `json:"currentVersion"`
	IsActive       bool          `json:"isActive"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// WorkingCopy returns the live content as a detached working copy.
func (f *Form) WorkingCopy() WorkingCopy {
	return WorkingCopy{
		Title:       f.Title,
		Description: f.Description,
		Fields:      CloneFields(f.Fields),
		Consent:     f.Consent,
	}
}

// FormVersion is an immutable snapshot written by a publish.
type FormVersion struct {
	FormID        uuid.UUID     `json:"formId"`
	Version       int           `json:"version"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Fields        []Field       `json:"fields"`
	Consent       ConsentConfig `json:"consent"`
	ChangeSummary string        `json:"changeSummary"`
	PublishedAt   time.Time     `json:"publishedAt"`
	PublishedBy   string        `json:"publishedBy"`
	IsReverted    bool          `json:"isReverted"`
}

// WorkingCopy returns the snapshot content as a detached working copy.
func (v *FormVersion) WorkingCopy() WorkingCopy {
	return WorkingCopy{
		Title:       v.Title,
		Description: v.Description,
		Fields:      CloneFields(v.Fields),
		Consent:     v.Consent,
	}
}

type DraftStatus string

const DraftStatusEditing DraftStatus = "editing"

// Draft is the single mutable staging row of a form.
type Draft struct {
	FormID          uuid.UUID   `json:"formId"`
	WorkingCopy     WorkingCopy `json:"workingCopy"`
	Status          DraftStatus `json:"status"`
	IsRevert        bool        `json:"isRevert"`
	RevertToVersion *int        `json:"revertToVersion,omitempty"`
	RevertNotes     string      `json:"revertNotes,omitempty"`
	Revision        int64       `json:"revision"`
	UpdatedBy       string      `json:"updatedBy,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Answers maps field identity to the raw answer value. The core never interprets
// values beyond identity lookup; see DecodeAnswer for a typed view.
type Answers map[string]json.RawMessage

type Geolocation struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// ConsentRecord captures when and where a respondent granted consent.
type ConsentRecord struct {
	GrantedAt   time.Time    `json:"grantedAt"`
	IP          string       `json:"ip,omitempty"`
	Geolocation *Geolocation `json:"geolocation,omitempty"`
}

// Submission is one respondent's answer set. FormVersion is fixed at creation.
type Submission struct {
	ID          uuid.UUID         `json:"id"`
	FormID      uuid.UUID         `json:"formId"`
	QRCodeID    *uuid.UUID        `json:"qrCodeId,omitempty"`
	Answers     Answers           `json:"answers"`
	FormVersion int               `json:"formVersion"`
	SubmittedAt time.Time         `json:"submittedAt"`
	Consent     *ConsentRecord    `json:"consent,omitempty"`
	UTM         map[string]string `json:"utm,omitempty"`
}
