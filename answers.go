package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AnswerKind tags the shape of a decoded answer.
type AnswerKind string

const (
	AnswerEmpty  AnswerKind = "empty"
	AnswerText   AnswerKind = "text"
	AnswerNumber AnswerKind = "number"
	AnswerBool   AnswerKind = "bool"
	AnswerList   AnswerKind = "list"
)

// Answer is the typed view of one raw answer value, keyed by the field's type.
type Answer struct {
	Kind   AnswerKind
	Text   string
	Number float64
	Bool   bool
	List   []string
}

// DecodeAnswer interprets raw according to field. Layout fields always decode to
// an empty answer. Multi-value fields accept a single scalar as a one-element list.
func DecodeAnswer(field Field, raw json.RawMessage) (Answer, error) {
	trimmed := bytes.TrimSpace(raw)
	if field.Type.IsLayout() || len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Answer{Kind: AnswerEmpty}, nil
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return Answer{}, fmt.Errorf("decode answer for field %s: %w", field.ID, err)
	}

	if field.Type.IsMultiValue() {
		switch val := v.(type) {
		case []any:
			return Answer{Kind: AnswerList, List: scalarsToStrings(val)}, nil
		case bool:
			// a lone checkbox is answered with true/false
			return Answer{Kind: AnswerBool, Bool: val}, nil
		default:
			return Answer{Kind: AnswerList, List: []string{scalarString(val)}}, nil
		}
	}

	switch val := v.(type) {
	case string:
		return Answer{Kind: AnswerText, Text: val}, nil
	case float64:
		return Answer{Kind: AnswerNumber, Number: val}, nil
	case bool:
		return Answer{Kind: AnswerBool, Bool: val}, nil
	case []any:
		return Answer{Kind: AnswerList, List: scalarsToStrings(val)}, nil
	case map[string]any:
		return Answer{Kind: AnswerText, Text: string(trimmed)}, nil
	default:
		return Answer{}, fmt.Errorf("decode answer for field %s: unsupported value %T", field.ID, v)
	}
}

// Render formats the answer for display, mapping choice values to option labels.
func (a Answer) Render(field Field) string {
	switch a.Kind {
	case AnswerText:
		if field.Type.IsChoice() {
			return field.OptionLabel(a.Text)
		}
		return a.Text
	case AnswerNumber:
		s := strconv.FormatFloat(a.Number, 'f', -1, 64)
		if field.Type.IsChoice() {
			return field.OptionLabel(s)
		}
		return s
	case AnswerBool:
		if a.Bool {
			return "Yes"
		}
		return "No"
	case AnswerList:
		parts := make([]string, len(a.List))
		for i, item := range a.List {
			if field.Type.IsChoice() {
				item = field.OptionLabel(item)
			}
			parts[i] = item
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// ResolveFieldLabel renders the submission's answer for field. An answer that is
// absent, because the field did not exist when the submission was recorded or was
// skipped, renders as the empty string. Undecodable values render verbatim.
func ResolveFieldLabel(submission *Submission, field Field) string {
	if submission == nil {
		return ""
	}
	raw, ok := submission.Answers[field.ID]
	if !ok {
		return ""
	}
	answer, err := DecodeAnswer(field, raw)
	if err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return answer.Render(field)
}

// ColumnsForSubmissions picks table columns for a mixed-version list of submissions.
// It walks the snapshots those submissions reference, newest first, and returns the
// ordered union of answerable fields, each labelled from the newest snapshot that
// contains it. With no submissions the newest snapshot's fields are used.
func ColumnsForSubmissions(versions []FormVersion, submissions []Submission) []Field {
	ordered := append([]FormVersion(nil), versions...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Version > ordered[j].Version })

	referenced := make(map[int]bool, len(submissions))
	for _, s := range submissions {
		referenced[s.FormVersion] = true
	}

	seen := make(map[string]bool)
	columns := make([]Field, 0)
	for i, v := range ordered {
		if len(submissions) > 0 && !referenced[v.Version] {
			continue
		}
		if len(submissions) == 0 && i > 0 {
			break
		}
		for _, f := range v.Fields {
			if f.Type.IsLayout() || seen[f.ID] {
				continue
			}
			seen[f.ID] = true
			columns = append(columns, f.Clone())
		}
	}
	return columns
}

// SnapshotFor returns the snapshot matching version, or nil.
func SnapshotFor(versions []FormVersion, version int) *FormVersion {
	for i := range versions {
		if versions[i].Version == version {
			return &versions[i]
		}
	}
	return nil
}

func scalarsToStrings(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, scalarString(item))
	}
	return out
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case nil:
		return ""
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}
