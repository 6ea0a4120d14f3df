package internal

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/lychee-technology/survey"
)

//go:embed schemas/working_copy.schema.json
var workingCopySchemaJSON []byte

// WorkingCopyValidator checks editable form content against the embedded JSON
// Schema and the structural rules the schema cannot express.
type WorkingCopyValidator struct {
	schema *jsonschema.Resolved
}

func NewWorkingCopyValidator() (*WorkingCopyValidator, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(workingCopySchemaJSON, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal working copy schema: %w", err)
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working copy schema: %w", err)
	}
	return &WorkingCopyValidator{schema: resolved}, nil
}

// Normalize returns a deep copy of wc with fresh ids assigned to fields lacking one.
func (v *WorkingCopyValidator) Normalize(wc survey.WorkingCopy) survey.WorkingCopy {
	out := wc.Clone()
	if out.Fields == nil {
		out.Fields = []survey.Field{}
	}
	for i := range out.Fields {
		if out.Fields[i].ID == "" {
			out.Fields[i].ID = uuid.NewString()
		}
	}
	return out
}

// Validate returns a *survey.SurveyError of type validation when wc is malformed.
func (v *WorkingCopyValidator) Validate(wc survey.WorkingCopy) error {
	raw, err := json.Marshal(wc)
	if err != nil {
		return survey.NewValidationError("workingCopy", "cannot encode working copy").WithCause(err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return survey.NewValidationError("workingCopy", "cannot decode working copy").WithCause(err)
	}
	if v.schema != nil {
		if err := v.schema.Validate(instance); err != nil {
			return survey.NewValidationError("workingCopy", err.Error())
		}
	}

	seen := NewSet[string]()
	for i, f := range wc.Fields {
		path := fmt.Sprintf("fields[%d]", i)
		if f.ID == "" {
			return survey.NewValidationError(path+".id", "field id is required")
		}
		if !seen.Add(f.ID) {
			return survey.NewValidationErrorWithCode(survey.ErrCodeDuplicateFieldID, path+".id",
				fmt.Sprintf("duplicate field id %q", f.ID))
		}

		if !f.Type.Valid() {
			return survey.NewValidationErrorWithCode(survey.ErrCodeInvalidFieldType, path+".type",
				fmt.Sprintf("unknown field type %q", f.Type))
		}
		if f.Type.IsChoice() && f.Type != survey.FieldTypeCheckbox && len(f.Options) == 0 {
			return survey.NewValidationError(path+".options", "choice fields need at least one option")
		}
		values := NewSet[string]()
		for _, o := range f.Options {
			if !values.Add(o.Value) {
				return survey.NewValidationError(path+".options", fmt.Sprintf("duplicate option value %q", o.Value))
			}
		}
		rules := f.Validation
		if rules.MinLength != nil && rules.MaxLength != nil && *rules.MinLength > *rules.MaxLength {
			return survey.NewValidationError(path+".validation", "minLength exceeds maxLength")
		}
		if rules.Min != nil && rules.Max != nil && *rules.Min > *rules.Max {
			return survey.NewValidationError(path+".validation", "min exceeds max")
		}
	}
	return nil
}

// Prepare normalizes and validates in one step.
func (v *WorkingCopyValidator) Prepare(wc survey.WorkingCopy) (survey.WorkingCopy, error) {
	out := v.Normalize(wc)
	if err := v.Validate(out); err != nil {
		return survey.WorkingCopy{}, err
	}
	return out, nil
}

// ValidateForPublish applies the publish preconditions: title, slug and at least one field.
func ValidateForPublish(wc survey.WorkingCopy, slug string) error {
	if wc.Title == "" {
		return survey.NewValidationErrorWithCode(survey.ErrCodeTitleRequired, "title", "title is required")
	}
	if slug == "" {
		return survey.NewValidationErrorWithCode(survey.ErrCodeSlugRequired, "slug", "slug is required")
	}
	if len(wc.Fields) == 0 {
		return survey.NewValidationErrorWithCode(survey.ErrCodeFieldsRequired, "fields", "fields.length == 0")
	}
	return nil
}
