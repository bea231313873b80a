package fakeservice

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/DBCDK/opencat-business-connector/pkg/connector"
	"github.com/DBCDK/opencat-business-connector/pkg/marc"
)

type validateRecordRequest struct {
	TemplateName string `json:"templateName"`
	Record       string `json:"record"`
	TrackingID   string `json:"trackingId"`
}

type checkTemplateRequest struct {
	Name        string `json:"name"`
	GroupID     string `json:"groupId"`
	LibraryType string `json:"libraryType"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type recordRequest struct {
	Record string `json:"record"`
}

type recategorizationRequest struct {
	CurrentRecord string `json:"currentRecord"`
	UpdateRecord  string `json:"updateRecord"`
	NewRecord     string `json:"newRecord"`
}

type buildRecordRequest struct {
	TemplateName string `json:"templateName"`
	Record       string `json:"record"`
}

type sortRecordRequest struct {
	TemplateProvider string `json:"templateProvider"`
	Record           string `json:"record"`
}

type getValidateSchemasRequest struct {
	TemplateGroup       string   `json:"templateGroup"`
	AllowedLibraryRules []string `json:"allowedLibraryRules"`
}

func intPtr(i int) *int { return &i }

func (s *Service) validateRecord(w http.ResponseWriter, r *http.Request) {
	var req validateRecordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tpl, ok := s.template(req.TemplateName)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Skabelonen '%s' findes ikke", req.TemplateName)
		return
	}
	rec, ok := s.decodeRecord(w, "record", req.Record)
	if !ok {
		return
	}

	messages := []connector.MessageEntry{}
	if len(tpl.Agencies) > 0 {
		for fi, f := range rec.Fields {
			if f.Name != "001" {
				continue
			}
			for si, sf := range f.Subfields {
				if sf.Name != "b" || contains(tpl.Agencies, sf.Value) {
					continue
				}
				messages = append(messages, connector.MessageEntry{
					Type:                      connector.MessageTypeError,
					URLForDocumentation:       "http://www.kat-format.dk/danMARC2/bilag_h/felt001.htm",
					OrdinalPositionOfField:    intPtr(fi),
					OrdinalPositionOfSubfield: intPtr(si),
					Message: fmt.Sprintf("Værdien '%s' i felt '001' delfelt 'b' er ikke en del af de valide værdier: '%s'",
						sf.Value, strings.Join(tpl.Agencies, "', '")),
				})
			}
		}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Service) checkTemplate(w http.ResponseWriter, r *http.Request) {
	var req checkTemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tpl, ok := s.template(req.Name)
	writeJSON(w, http.StatusOK, ok && contains(tpl.LibraryTypes, req.LibraryType))
}

func (s *Service) checkTemplateBuild(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tpl, ok := s.template(req.Name)
	writeJSON(w, http.StatusOK, map[string]bool{"result": ok && len(tpl.Fields) > 0})
}

// findDouble returns the pid of an existing record sharing rec's ISBN.
func (s *Service) findDouble(rec *marc.Record) (string, bool) {
	isbn, ok := rec.SubfieldValue("021", "e")
	if !ok {
		return "", false
	}
	pid, ok := s.doubles[isbn]
	return pid, ok
}

func (s *Service) checkDoubleRecordFrontend(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, ok := s.decodeRecord(w, "record", req.Record)
	if !ok {
		return
	}
	status := connector.DoubleRecordFrontendStatus{
		Status:                   connector.DoubleRecordStatusOK,
		DoubleRecordFrontendDTOs: []connector.DoubleRecordFrontend{},
	}
	if pid, found := s.findDouble(rec); found {
		id, _ := rec.SubfieldValue("001", "a")
		status.Status = connector.DoubleRecordStatusDouble
		status.DoubleRecordFrontendDTOs = append(status.DoubleRecordFrontendDTOs, connector.DoubleRecordFrontend{
			Message: fmt.Sprintf("Double record for record %s, reason: 021e", id),
			PID:     pid,
		})
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Service) checkDoubleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, ok := s.decodeRecord(w, "record", req.Record)
	if !ok {
		return
	}
	if pid, found := s.findDouble(rec); found {
		writeMessage(w, http.StatusConflict, "Posten er en dobbeltpost af %s", pid)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// doRecategorizationThings keeps the identity of the current record and the
// content of the new one.
func (s *Service) doRecategorizationThings(w http.ResponseWriter, r *http.Request) {
	var req recategorizationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	current, ok := s.decodeRecord(w, "currentRecord", req.CurrentRecord)
	if !ok {
		return
	}
	newRec, ok := s.decodeRecord(w, "newRecord", req.NewRecord)
	if !ok {
		return
	}
	out := &marc.Record{Leader: newRec.Leader}
	if id := current.Field("001"); id != nil {
		out.AddField(*id)
	}
	for _, f := range newRec.Fields {
		if f.Name != "001" {
			out.AddField(f)
		}
	}
	s.writeRecord(w, out)
}

func (s *Service) recategorizationNoteFieldFactory(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, ok := s.decodeRecord(w, "record", req.Record)
	if !ok {
		return
	}
	title, _ := rec.SubfieldValue("245", "a")
	category, _ := rec.SubfieldValue("004", "a")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":      "512",
		"indicator": "00",
		"subfields": []map[string]string{
			{"name": "i", "value": "Materialet er opstillet under"},
			{"name": "t", "value": title},
			{"name": "e", "value": "tidligere kategori " + category},
		},
	})
}

func (s *Service) buildRecord(w http.ResponseWriter, r *http.Request) {
	var req buildRecordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tpl, ok := s.template(req.TemplateName)
	if !ok || len(tpl.Fields) == 0 {
		writeMessage(w, http.StatusBadRequest, "Skabelonen '%s' kan ikke bygges", req.TemplateName)
		return
	}

	out := &marc.Record{Leader: "00000n    2200000   4500"}
	var base *marc.Record
	if req.Record != "" {
		if base, ok = s.decodeRecord(w, "record", req.Record); !ok {
			return
		}
		out.Leader = base.Leader
		out.Fields = append(out.Fields, base.Fields...)
	}
	for _, f := range tpl.Fields {
		if base.Field(f.Name) == nil {
			out.AddField(f)
		}
	}
	out.Fields = sortedFields(out.Fields)
	s.writeRecord(w, out)
}

func (s *Service) sortRecord(w http.ResponseWriter, r *http.Request) {
	var req sortRecordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, ok := s.template(req.TemplateProvider); !ok {
		writeMessage(w, http.StatusBadRequest, "Skabelonen '%s' findes ikke", req.TemplateProvider)
		return
	}
	rec, ok := s.decodeRecord(w, "record", req.Record)
	if !ok {
		return
	}
	rec.Fields = sortedFields(rec.Fields)
	s.writeRecord(w, rec)
}

func (s *Service) getValidateSchemas(w http.ResponseWriter, r *http.Request) {
	var req getValidateSchemasRequest
	if !decodeBody(w, r, &req) {
		return
	}
	schemas := []connector.Schema{}
	for _, tpl := range s.templates {
		if contains(tpl.Groups, req.TemplateGroup) {
			schemas = append(schemas, connector.Schema{SchemaName: tpl.Name, SchemaInfo: tpl.Info})
		}
	}
	writeJSON(w, http.StatusOK, schemas)
}

func (s *Service) preprocess(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, ok := s.decodeRecord(w, "record", req.Record)
	if !ok {
		return
	}
	s.writeRecord(w, rec)
}

// metacompass adds a subject field to records that have a title.
func (s *Service) metacompass(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, ok := s.decodeRecord(w, "record", req.Record)
	if !ok {
		return
	}
	if _, ok := rec.SubfieldValue("245", "a"); ok {
		rec.AddField(marc.NewField("665", "00",
			marc.Subfield{Name: "q", Value: "metakompas"},
			marc.Subfield{Name: "&", Value: "LEKTOR"}))
	}
	s.writeRecord(w, rec)
}
