package discoeval

import "encoding/json"

// Field is one text column of an example. Scalar fields set Text; fields
// read as a list of strings set Sequence.
type Field struct {
	Text     string
	Sequence []string
}

// IsSequence reports whether the field holds a list of strings.
func (f Field) IsSequence() bool { return f.Sequence != nil }

// Value returns the field as a string or a []string.
func (f Field) Value() any {
	if f.IsSequence() {
		return f.Sequence
	}
	return f.Text
}

// Example is one labeled record of a split. Fields holds exactly the task's
// declared text fields, in declaration order.
type Example struct {
	Key     int
	Names   []string
	Fields  []Field
	Label   string
	LabelID int
}

// Get returns the named text field.
func (e Example) Get(name string) (Field, bool) {
	for i, n := range e.Names {
		if n == name {
			return e.Fields[i], true
		}
	}
	return Field{}, false
}

// Map flattens the example to the field name → value mapping handed to
// consumers: every declared text field plus LabelField.
func (e Example) Map() map[string]any {
	m := make(map[string]any, len(e.Fields)+1)
	for i, f := range e.Fields {
		m[e.Names[i]] = f.Value()
	}
	m[LabelField] = e.Label
	return m
}

// MarshalJSON writes the flat mapping plus the record key.
func (e Example) MarshalJSON() ([]byte, error) {
	m := e.Map()
	m["key"] = e.Key
	return json.Marshal(m)
}
