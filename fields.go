package survey

// FieldsIntroducedBy returns the fields that were present in the given version:
// baseline fields (no VersionAdded) and fields whose VersionAdded <= version.
// Array order is preserved. Baseline fields are returned even for version 0.
func FieldsIntroducedBy(fields []Field, version int) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.VersionAdded == nil || *f.VersionAdded <= version {
			out = append(out, f)
		}
	}
	return out
}

// FieldIDs returns the field identities in array order.
func FieldIDs(fields []Field) []string {
	ids := make([]string, len(fields))
	for i, f := range fields {
		ids[i] = f.ID
	}
	return ids
}

// FirstSeenVersions maps each field id to the lowest version whose snapshot contains it.
func FirstSeenVersions(history []FormVersion) map[string]int {
	firstSeen := make(map[string]int)
	for _, v := range history {
		for _, f := range v.Fields {
			if seen, ok := firstSeen[f.ID]; !ok || v.Version < seen {
				firstSeen[f.ID] = v.Version
			}
		}
	}
	return firstSeen
}

// StampVersionAdded derives VersionAdded for a snapshot about to be published as
// newVersion. firstSeen maps field ids to the first published version containing
// them (see FirstSeenVersions). A known field keeps that version; a field never
// seen before is marked with newVersion. Fields first seen in version 1 stay
// unmarked. Values supplied by the editor are ignored. The input is not modified.
func StampVersionAdded(fields []Field, firstSeen map[string]int, newVersion int) []Field {
	out := CloneFields(fields)
	for i := range out {
		introduced, ok := firstSeen[out[i].ID]
		if !ok {
			introduced = newVersion
		}
		if introduced <= 1 {
			out[i].VersionAdded = nil
			continue
		}
		out[i].VersionAdded = intPtr(introduced)
	}
	return out
}

// CloneFields deep copies a field sequence.
func CloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = f.Clone()
	}
	return out
}

// Clone returns a deep copy of the field.
func (f Field) Clone() Field {
	c := f
	if f.Options != nil {
		c.Options = append([]FieldOption(nil), f.Options...)
	}
	c.Validation = f.Validation.clone()
	if f.VersionAdded != nil {
		c.VersionAdded = intPtr(*f.VersionAdded)
	}
	return c
}

func (v FieldValidation) clone() FieldValidation {
	c := v
	if v.MinLength != nil {
		c.MinLength = intPtr(*v.MinLength)
	}
	if v.MaxLength != nil {
		c.MaxLength = intPtr(*v.MaxLength)
	}
	if v.Min != nil {
		m := *v.Min
		c.Min = &m
	}
	if v.Max != nil {
		m := *v.Max
		c.Max = &m
	}
	return c
}

// OptionLabel returns the label of the option with the given value, or the value
// itself when no option matches.
func (f Field) OptionLabel(value string) string {
	for _, o := range f.Options {
		if o.Value == value {
			if o.Label == "" {
				return o.Value
			}
			return o.Label
		}
	}
	return value
}

func intPtr(v int) *int {
	return &v
}
