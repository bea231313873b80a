// Package marc holds the bibliographic record model exchanged with
// opencat-business and the codecs that turn it into the wire string form.
package marc

// Record is a MARC record: a leader followed by fields in record order.
type Record struct {
	Leader string  `json:"leader,omitempty"`
	Fields []Field `json:"fields"`
}

// Field is a data field (tag, indicator, subfields) or, when Control is set,
// a control field carrying a single Value.
type Field struct {
	Name      string     `json:"name"`
	Indicator string     `json:"indicator,omitempty"`
	Subfields []Subfield `json:"subfields,omitempty"`
	Control   bool       `json:"control,omitempty"`
	Value     string     `json:"value,omitempty"`
}

// Subfield is a single coded value inside a data field.
type Subfield struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewField returns a data field with the given tag and indicator.
func NewField(name, indicator string, subfields ...Subfield) Field {
	return Field{Name: name, Indicator: indicator, Subfields: subfields}
}

// AddField appends f and returns the record for chaining.
func (r *Record) AddField(f Field) *Record {
	r.Fields = append(r.Fields, f)
	return r
}

// Field returns the first field with the given tag, or nil.
func (r *Record) Field(name string) *Field {
	if r == nil {
		return nil
	}
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i]
		}
	}
	return nil
}

// SubfieldValue returns the first value of subfield code in field name.
func (r *Record) SubfieldValue(name, code string) (string, bool) {
	f := r.Field(name)
	if f == nil {
		return "", false
	}
	return f.SubfieldValue(code)
}

// SubfieldValue returns the first value of the subfield with the given code.
func (f *Field) SubfieldValue(code string) (string, bool) {
	for _, sf := range f.Subfields {
		if sf.Name == code {
			return sf.Value, true
		}
	}
	return "", false
}

// AddSubfield appends a subfield and returns the field for chaining.
func (f *Field) AddSubfield(name, value string) *Field {
	f.Subfields = append(f.Subfields, Subfield{Name: name, Value: value})
	return f
}
