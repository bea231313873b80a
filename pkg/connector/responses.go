package connector

import (
	"github.com/DBCDK/opencat-business-connector/pkg/marc"
)

// MessageEntry is a single validation message. Ordinal positions are zero
// based and nil when the message does not point at that level of the record.
type MessageEntry struct {
	Type                      string `json:"type"`
	Code                      string `json:"code,omitempty"`
	URLForDocumentation       string `json:"urlForDocumentation,omitempty"`
	OrdinalPositionOfField    *int   `json:"ordinalPositionOfField,omitempty"`
	OrdinalPositionOfSubfield *int   `json:"ordinalPositionOfSubfield,omitempty"`
	OrdinalPositionInSubfield *int   `json:"ordinalPositionInSubfield,omitempty"`
	Message                   string `json:"message"`
}

// Message types used by the service.
const (
	MessageTypeError   = "ERROR"
	MessageTypeWarning = "WARNING"
	MessageTypeFatal   = "FATAL"
)

// IsError reports whether the entry blocks the record.
func (m MessageEntry) IsError() bool {
	return m.Type == MessageTypeError || m.Type == MessageTypeFatal
}

// Schema describes a validation template available to a template group.
type Schema struct {
	SchemaName string `json:"schemaName"`
	SchemaInfo string `json:"schemaInfo"`
}

// DoubleRecordFrontendStatus is the outcome of a double record check meant
// for display to a cataloguer.
type DoubleRecordFrontendStatus struct {
	Status                   string                `json:"status"`
	DoubleRecordFrontendDTOs []DoubleRecordFrontend `json:"doubleRecordFrontendDTOs"`
}

// DoubleRecordFrontend points at one suspected double record.
type DoubleRecordFrontend struct {
	Message string `json:"message"`
	PID     string `json:"pid"`
}

// Double record statuses.
const (
	DoubleRecordStatusOK     = "ok"
	DoubleRecordStatusDouble = "doublerecord"
)

// HasDoubles reports whether any double records were found.
func (s *DoubleRecordFrontendStatus) HasDoubles() bool {
	return s != nil && len(s.DoubleRecordFrontendDTOs) > 0
}

type recordResponse struct {
	Record *string `json:"record"`
}

type checkTemplateBuildResponse struct {
	Result *bool `json:"result"`
}

// wireField is the data field shape returned by recategorizationNoteFieldFactory.
type wireField struct {
	Name      string         `json:"name"`
	Indicator string         `json:"indicator"`
	Subfields []wireSubfield `json:"subfields"`
}

type wireSubfield struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// toField converts the wire shape into a record field. Subfield codes are a
// single character, so only the first character of each name is kept.
func (w *wireField) toField() *marc.Field {
	f := &marc.Field{
		Name:      w.Name,
		Indicator: w.Indicator,
		Subfields: make([]marc.Subfield, 0, len(w.Subfields)),
	}
	for _, sf := range w.Subfields {
		name := sf.Name
		if r := []rune(name); len(r) > 1 {
			name = string(r[0])
		}
		f.Subfields = append(f.Subfields, marc.Subfield{Name: name, Value: sf.Value})
	}
	return f
}
