package survey

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFieldLabel(t *testing.T) {
	choice := Field{
		ID:      "color",
		Type:    FieldTypeSingleChoice,
		Options: []FieldOption{{Value: "r", Label: "Red"}, {Value: "g", Label: "Green"}},
	}
	multi := Field{
		ID:      "tags",
		Type:    FieldTypeMultipleChoice,
		Options: []FieldOption{{Value: "a", Label: "Alpha"}, {Value: "b", Label: "Beta"}},
	}

	sub := &Submission{Answers: Answers{
		"name":    json.RawMessage(`"Ada"`),
		"age":     json.RawMessage(`42.50`),
		"agree":   json.RawMessage(`true`),
		"color":   json.RawMessage(`"g"`),
		"tags":    json.RawMessage(`["a","b","c"]`),
		"skipped": json.RawMessage(`null`),
		"broken":  json.RawMessage(`{not json`),
		"rating":  json.RawMessage(`4`),
		"section": json.RawMessage(`"ignored"`),
	}}

	tests := []struct {
		name  string
		field Field
		want  string
	}{
		{name: "text", field: Field{ID: "name", Type: FieldTypeShortText}, want: "Ada"},
		{name: "number drops trailing zeros", field: Field{ID: "age", Type: FieldTypeNumber}, want: "42.5"},
		{name: "boolean", field: Field{ID: "agree", Type: FieldTypeCheckbox}, want: "Yes"},
		{name: "choice label", field: choice, want: "Green"},
		{name: "multi choice labels joined", field: multi, want: "Alpha, Beta, c"},
		{name: "null answer", field: Field{ID: "skipped", Type: FieldTypeShortText}, want: ""},
		{name: "field missing from older submission", field: Field{ID: "new_q", Type: FieldTypeShortText}, want: ""},
		{name: "undecodable rendered verbatim", field: Field{ID: "broken", Type: FieldTypeLongText}, want: "{not json"},
		{name: "rating", field: Field{ID: "rating", Type: FieldTypeRating}, want: "4"},
		{name: "layout never rendered", field: Field{ID: "section", Type: FieldTypeSection}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFieldLabel(sub, tt.field))
		})
	}

	assert.Equal(t, "", ResolveFieldLabel(nil, choice))
}

func TestDecodeAnswer_MultiValueScalar(t *testing.T) {
	got, err := DecodeAnswer(Field{ID: "m", Type: FieldTypeMultipleChoice}, json.RawMessage(`"x"`))
	require.NoError(t, err)
	assert.Equal(t, AnswerList, got.Kind)
	assert.Equal(t, []string{"x"}, got.List)
}

func TestDecodeAnswer_InvalidJSON(t *testing.T) {
	_, err := DecodeAnswer(Field{ID: "q", Type: FieldTypeShortText}, json.RawMessage(`"unterminated`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field q")
}

func TestColumnsForSubmissions(t *testing.T) {
	versions := []FormVersion{
		{Version: 1, Fields: []Field{{ID: "a", Label: "A v1"}, {ID: "b", Label: "B"}}},
		{Version: 3, Fields: []Field{{ID: "a", Label: "A v3"}, {ID: "c", Label: "C"}, {ID: "h", Type: FieldTypeHeading}}},
		{Version: 2, Fields: []Field{{ID: "a", Label: "A v2"}, {ID: "b", Label: "B"}, {ID: "d", Label: "D"}}},
	}
	subs := []Submission{{FormVersion: 1}, {FormVersion: 3}}

	cols := ColumnsForSubmissions(versions, subs)

	assert.Equal(t, []string{"a", "c", "b"}, FieldIDs(cols))
	assert.Equal(t, "A v3", cols[0].Label)
}

func TestColumnsForSubmissions_NoSubmissionsUsesNewest(t *testing.T) {
	versions := []FormVersion{
		{Version: 1, Fields: []Field{{ID: "a"}}},
		{Version: 2, Fields: []Field{{ID: "a"}, {ID: "b"}}},
	}
	assert.Equal(t, []string{"a", "b"}, FieldIDs(ColumnsForSubmissions(versions, nil)))
	assert.Empty(t, ColumnsForSubmissions(nil, nil))
}

func TestSnapshotFor(t *testing.T) {
	versions := []FormVersion{{Version: 2}, {Version: 1}}
	require.NotNil(t, SnapshotFor(versions, 1))
	assert.Equal(t, 1, SnapshotFor(versions, 1).Version)
	assert.Nil(t, SnapshotFor(versions, 5))
}
