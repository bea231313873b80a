// Package fakeservice is an in-process stand-in for opencat-business. It
// serves the /api/v1 operations with canned business rules, records every
// request body and can be told to fail the next calls of an operation.
package fakeservice

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/DBCDK/opencat-business-connector/pkg/connector"
	"github.com/DBCDK/opencat-business-connector/pkg/json"
	"github.com/DBCDK/opencat-business-connector/pkg/marc"
	"github.com/DBCDK/opencat-business-connector/pkg/observability"
)

// Template is a validation template known to the fake service.
type Template struct {
	Name string
	Info string
	// Groups that list the template in getValidateSchemas.
	Groups []string
	// LibraryTypes allowed to use the template in checkTemplate.
	LibraryTypes []string
	// Agencies accepted in 001 *b. Empty accepts any.
	Agencies []string
	// Fields are the skeleton fields produced by buildRecord.
	Fields []marc.Field
}

// Fault makes the next Remaining calls of an operation answer Status/Body.
type Fault struct {
	Status    int
	Body      string
	Remaining int
	// Drop closes the connection without answering.
	Drop bool
}

// Service is the fake opencat-business.
type Service struct {
	codec     marc.Codec
	tracer    trace.Tracer
	templates []Template
	// doubles maps an ISBN (021 *e) to the pid of the existing record.
	doubles map[string]string

	mu       sync.Mutex
	faults   map[connector.Operation]*Fault
	requests map[connector.Operation][][]byte
}

// Option configures a Service
type Option func(*Service)

// WithCodec sets the record format the service reads and writes.
func WithCodec(codec marc.Codec) Option {
	return func(s *Service) {
		s.codec = codec
	}
}

// WithTracer traces every request with a server span continuing the
// caller's trace.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithTemplates replaces the default templates.
func WithTemplates(templates ...Template) Option {
	return func(s *Service) {
		s.templates = templates
	}
}

// WithDoubleRecord registers an existing record for an ISBN.
func WithDoubleRecord(isbn, pid string) Option {
	return func(s *Service) {
		s.doubles[isbn] = pid
	}
}

// New creates a service with the default templates.
func New(opts ...Option) *Service {
	s := &Service{
		codec:     marc.DefaultCodec(),
		templates: DefaultTemplates(),
		doubles:   map[string]string{"9782843090387": "52958857:870970"},
		faults:    make(map[connector.Operation]*Fault),
		requests:  make(map[connector.Operation][][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultTemplates returns the templates the service knows out of the box.
func DefaultTemplates() []Template {
	skeleton := []marc.Field{
		marc.NewField("001", "00",
			marc.Subfield{Name: "a", Value: ""},
			marc.Subfield{Name: "b", Value: "870970"},
			marc.Subfield{Name: "f", Value: "a"}),
		marc.NewField("004", "00",
			marc.Subfield{Name: "r", Value: "n"},
			marc.Subfield{Name: "a", Value: "e"}),
		marc.NewField("245", "00", marc.Subfield{Name: "a", Value: ""}),
	}
	return []Template{
		{Name: "allowall", Groups: []string{"dbc", "fbs"}, LibraryTypes: []string{"dbc", "fbs"}, Fields: skeleton},
		{Name: "BCIbog", Info: "Skabelon til katalogisering af fysiske bøger - enkeltstående post.", Groups: []string{"dbc"}, LibraryTypes: []string{"dbc"}, Fields: skeleton},
		{Name: "BCIbogbind", Info: "Skabelon til katalogisering af flerbindsværk af fysiske bøger - bindpost.", Groups: []string{"dbc"}, LibraryTypes: []string{"dbc"}, Fields: skeleton},
		{Name: "BCIboghoved", Info: "Skabelon til katalogisering af flerbindsværk af fysiske bøger - hovedpost.", Groups: []string{"dbc"}, LibraryTypes: []string{"dbc"}, Fields: skeleton},
		{Name: "dbclittolk", Groups: []string{"dbc"}, LibraryTypes: []string{"dbc"}, Fields: skeleton},
		{Name: "dbc", LibraryTypes: []string{"dbc"}, Fields: skeleton},
		{Name: "dbcautoritet", LibraryTypes: []string{"dbc"}, Agencies: []string{"870979"}},
		{Name: "netlydbog", Groups: []string{"fbs"}, LibraryTypes: []string{"dbc", "fbs"}, Fields: skeleton},
		{Name: "bogbind", LibraryTypes: []string{"dbc"}, Fields: skeleton},
	}
}

// Handler returns the chi router serving the service.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.tracer != nil {
		r.Use(observability.TracingMiddleware(s.tracer, "opencat-business"))
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.record)
		r.Use(s.inject)
		r.Post("/"+string(connector.OpValidateRecord), s.validateRecord)
		r.Post("/"+string(connector.OpCheckTemplate), s.checkTemplate)
		r.Post("/"+string(connector.OpCheckTemplateBuild), s.checkTemplateBuild)
		r.Post("/"+string(connector.OpCheckDoubleRecordFrontend), s.checkDoubleRecordFrontend)
		r.Post("/"+string(connector.OpCheckDoubleRecord), s.checkDoubleRecord)
		r.Post("/"+string(connector.OpDoRecategorizationThings), s.doRecategorizationThings)
		r.Post("/"+string(connector.OpRecategorizationNoteFieldFactory), s.recategorizationNoteFieldFactory)
		r.Post("/"+string(connector.OpBuildRecord), s.buildRecord)
		r.Post("/"+string(connector.OpSortRecord), s.sortRecord)
		r.Post("/"+string(connector.OpGetValidateSchemas), s.getValidateSchemas)
		r.Post("/"+string(connector.OpPreprocess), s.preprocess)
		r.Post("/"+string(connector.OpMetacompass), s.metacompass)
	})
	return r
}

// Start serves the service on a local httptest server. The caller closes it.
func (s *Service) Start() *httptest.Server {
	return httptest.NewServer(s.Handler())
}

// Fail makes the next n calls of op answer status with body.
func (s *Service) Fail(op connector.Operation, status, n int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &Fault{Status: status, Body: body, Remaining: n}
}

// Drop makes the next n calls of op close the connection without answering.
func (s *Service) Drop(op connector.Operation, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &Fault{Drop: true, Remaining: n}
}

// Requests returns the raw bodies received for op, oldest first.
func (s *Service) Requests(op connector.Operation) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.requests[op]))
	copy(out, s.requests[op])
	return out
}

// Hits returns the number of requests received for op.
func (s *Service) Hits(op connector.Operation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests[op])
}

// Reset forgets recorded requests and pending faults.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[connector.Operation]*Fault)
	s.requests = make(map[connector.Operation][][]byte)
}

func operationOf(r *http.Request) connector.Operation {
	return connector.Operation(path.Base(r.URL.Path))
}

// record stores the request body and hands an unread copy to the handler.
func (s *Service) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "could not read body", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		op := operationOf(r)
		s.requests[op] = append(s.requests[op], body)
		s.mu.Unlock()

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// inject answers with a pending fault instead of calling the handler.
func (s *Service) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := operationOf(r)
		s.mu.Lock()
		f, ok := s.faults[op]
		var fault Fault
		if ok && f.Remaining > 0 {
			f.Remaining--
			fault = *f
		} else {
			ok = false
		}
		s.mu.Unlock()

		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if fault.Drop {
			hj, canHijack := w.(http.Hijacker)
			if canHijack {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
					return
				}
			}
			panic(http.ErrAbortHandler)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(fault.Status)
		_, _ = io.WriteString(w, fault.Body)
	})
}

func (s *Service) template(name string) (*Template, bool) {
	for i := range s.templates {
		if s.templates[i].Name == name {
			return &s.templates[i], true
		}
	}
	return nil, false
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("encode error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeMessage answers with a plain text message meant for the end user.
func writeMessage(w http.ResponseWriter, status int, format string, args ...interface{}) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, format, args...)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body: %v", err)
		return false
	}
	return true
}

// decodeRecord decodes a record field. An empty field is answered with 400.
func (s *Service) decodeRecord(w http.ResponseWriter, field, data string) (*marc.Record, bool) {
	if data == "" {
		writeMessage(w, http.StatusBadRequest, "Feltet '%s' mangler", field)
		return nil, false
	}
	rec, err := s.codec.Decode(data)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Posten i '%s' kunne ikke læses: %v", field, err)
		return nil, false
	}
	return rec, true
}

func (s *Service) writeRecord(w http.ResponseWriter, rec *marc.Record) {
	data, err := s.codec.Encode(rec)
	if err != nil {
		// Encoding our own record failing is an internal error
		writeMessage(w, http.StatusInternalServerError, "encode error: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"record": data})
}

func sortedFields(fields []marc.Field) []marc.Field {
	out := make([]marc.Field, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
