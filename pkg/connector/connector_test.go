package connector_test

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/DBCDK/opencat-business-connector/internal/fakeservice"
	"github.com/DBCDK/opencat-business-connector/pkg/clients"
	"github.com/DBCDK/opencat-business-connector/pkg/connector"
	"github.com/DBCDK/opencat-business-connector/pkg/errors"
	"github.com/DBCDK/opencat-business-connector/pkg/json"
	"github.com/DBCDK/opencat-business-connector/pkg/logger"
	"github.com/DBCDK/opencat-business-connector/pkg/marc"
)

const testDelay = 20 * time.Millisecond

func sf(name, value string) marc.Subfield {
	return marc.Subfield{Name: name, Value: value}
}

// authorityRecord is an authority record owned by agency.
func authorityRecord(agency string) *marc.Record {
	rec := &marc.Record{Leader: "00000n    2200000   4500"}
	rec.AddField(marc.NewField("001", "00",
		sf("a", "68693268"), sf("b", agency), sf("c", "20181108150323"),
		sf("d", "20131129"), sf("f", "a"), sf("t", "faust")))
	rec.AddField(marc.NewField("004", "00", sf("r", "n"), sf("a", "e"), sf("x", "n")))
	rec.AddField(marc.NewField("040", "00", sf("a", "DBC"), sf("b", "dan")))
	rec.AddField(marc.NewField("100", "00", sf("a", "Meilby"), sf("h", "Mogens")))
	return rec
}

// bookRecord is a book record; isbn ends up in 021 *e.
func bookRecord(id, isbn string) *marc.Record {
	rec := &marc.Record{Leader: "00000n    2200000   4500"}
	rec.AddField(marc.NewField("001", "00", sf("a", id), sf("b", "870970"), sf("f", "a")))
	rec.AddField(marc.NewField("004", "00", sf("r", "n"), sf("a", "e")))
	rec.AddField(marc.NewField("021", "00", sf("e", isbn)))
	rec.AddField(marc.NewField("245", "00", sf("a", "Ib er et æggehoved")))
	return rec
}

type harness struct {
	svc  *fakeservice.Service
	srv  *httptest.Server
	conn *connector.Connector
	logs *observer.ObservedLogs
}

func newHarness(t *testing.T, opts ...connector.Option) *harness {
	t.Helper()
	svc := fakeservice.New()
	srv := svc.Start()
	t.Cleanup(srv.Close)

	core, logs := observer.New(zapcore.DebugLevel)
	base := []connector.Option{
		connector.WithLogger(zap.New(core)),
		connector.WithRetryPolicy(clients.NewRetryPolicy(3, testDelay)),
	}
	conn, err := connector.New(srv.URL, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{svc: svc, srv: srv, conn: conn, logs: logs}
}

func requireErrorType(t *testing.T, err error, errType errors.ErrorType, op connector.Operation) *errors.Error {
	t.Helper()
	require.Error(t, err)
	var e *errors.Error
	require.True(t, stderrors.As(err, &e), "expected *errors.Error, got %T", err)
	assert.Equal(t, errType, e.Type, "error: %v", err)
	assert.Equal(t, op.String(), e.Op)
	return e
}

// invokers calls every operation with valid input.
func invokers(ctx context.Context, c *connector.Connector) map[connector.Operation]func() error {
	rec := bookRecord("52958858", "9788702000000")
	return map[connector.Operation]func() error{
		connector.OpValidateRecord: func() error {
			_, err := c.ValidateRecord(ctx, "dbcautoritet", authorityRecord("870979"))
			return err
		},
		connector.OpCheckTemplate: func() error {
			_, err := c.CheckTemplate(ctx, "netlydbog", "710100", "fbs")
			return err
		},
		connector.OpCheckTemplateBuild: func() error {
			_, err := c.CheckTemplateBuild(ctx, "allowall")
			return err
		},
		connector.OpCheckDoubleRecordFrontend: func() error {
			_, err := c.CheckDoubleRecordFrontend(ctx, rec)
			return err
		},
		connector.OpCheckDoubleRecord: func() error {
			return c.CheckDoubleRecord(ctx, rec)
		},
		connector.OpDoRecategorizationThings: func() error {
			_, err := c.DoRecategorizationThings(ctx, rec, rec, rec)
			return err
		},
		connector.OpRecategorizationNoteFieldFactory: func() error {
			_, err := c.RecategorizationNoteFieldFactory(ctx, rec)
			return err
		},
		connector.OpBuildRecord: func() error {
			_, err := c.BuildRecord(ctx, "allowall")
			return err
		},
		connector.OpSortRecord: func() error {
			_, err := c.SortRecord(ctx, "bogbind", rec)
			return err
		},
		connector.OpGetValidateSchemas: func() error {
			_, err := c.GetValidateSchemas(ctx, "dbc", nil)
			return err
		},
		connector.OpPreprocess: func() error {
			_, err := c.Preprocess(ctx, rec)
			return err
		},
		connector.OpMetacompass: func() error {
			_, err := c.Metacompass(ctx, rec)
			return err
		},
	}
}

func TestEveryOperationSucceeds(t *testing.T) {
	h := newHarness(t)
	calls := invokers(context.Background(), h.conn)
	require.Len(t, calls, len(connector.Operations))

	for _, op := range connector.Operations {
		t.Run(op.String(), func(t *testing.T) {
			assert.NoError(t, calls[op]())
			assert.Equal(t, 1, h.svc.Hits(op))
		})
	}
}

func TestCheckTemplate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ok, err := h.conn.CheckTemplate(ctx, "netlydbog", "710100", "fbs")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.conn.CheckTemplate(ctx, "dbc", "710100", "fbs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entries, err := h.conn.ValidateRecord(ctx, "dbcautoritet", authorityRecord("870979"))
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	entries, err = h.conn.ValidateRecord(ctx, "dbcautoritet", authorityRecord("870970"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	field, subfield := 0, 1
	assert.Equal(t, connector.MessageEntry{
		Type:                      connector.MessageTypeError,
		URLForDocumentation:       "http://www.kat-format.dk/danMARC2/bilag_h/felt001.htm",
		OrdinalPositionOfField:    &field,
		OrdinalPositionOfSubfield: &subfield,
		Message:                   "Værdien '870970' i felt '001' delfelt 'b' er ikke en del af de valide værdier: '870979'",
	}, entries[0])
	assert.True(t, entries[0].IsError())
	assert.Nil(t, entries[0].OrdinalPositionInSubfield)

	again, err := h.conn.ValidateRecord(ctx, "dbcautoritet", authorityRecord("870970"))
	require.NoError(t, err)
	assert.Equal(t, entries, again)
}

func TestGetValidateSchemasKeepsServiceOrder(t *testing.T) {
	h := newHarness(t)

	schemas, err := h.conn.GetValidateSchemas(context.Background(), "dbc", connector.RuleSet())
	require.NoError(t, err)
	assert.Equal(t, []connector.Schema{
		{SchemaName: "allowall", SchemaInfo: ""},
		{SchemaName: "BCIbog", SchemaInfo: "Skabelon til katalogisering af fysiske bøger - enkeltstående post."},
		{SchemaName: "BCIbogbind", SchemaInfo: "Skabelon til katalogisering af flerbindsværk af fysiske bøger - bindpost."},
		{SchemaName: "BCIboghoved", SchemaInfo: "Skabelon til katalogisering af flerbindsværk af fysiske bøger - hovedpost."},
		{SchemaName: "dbclittolk", SchemaInfo: ""},
	}, schemas)

	reqs := h.svc.Requests(connector.OpGetValidateSchemas)
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"templateGroup":"dbc","allowedLibraryRules":[]}`, string(reqs[0]))
}

func TestGetValidateSchemasSendsSortedRules(t *testing.T) {
	h := newHarness(t)

	_, err := h.conn.GetValidateSchemas(context.Background(), "fbs",
		connector.RuleSet("use_enrichments", "auth_root"), connector.WithTrackingID("t-1"))
	require.NoError(t, err)

	reqs := h.svc.Requests(connector.OpGetValidateSchemas)
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"templateGroup":"fbs","allowedLibraryRules":["auth_root","use_enrichments"],"trackingId":"t-1"}`, string(reqs[0]))
}

func TestServerFaultHidesBody(t *testing.T) {
	h := newHarness(t)
	calls := invokers(context.Background(), h.conn)

	for _, op := range connector.Operations {
		t.Run(op.String(), func(t *testing.T) {
			h.svc.Fail(op, http.StatusInternalServerError, 1, "javax.ejb.EJBException: boom")
			err := calls[op]()
			e := requireErrorType(t, err, errors.ErrorTypeServerFault, op)
			assert.Equal(t, connector.ServerFaultMessage, e.Message)
			assert.NotContains(t, err.Error(), "EJBException")
			assert.Equal(t, 1, h.svc.Hits(op), "500 is not retried")
		})
	}
}

func TestRejectedCarriesBody(t *testing.T) {
	h := newHarness(t)

	_, err := h.conn.SortRecord(context.Background(), "julemand", bookRecord("1", "2"))
	e := requireErrorType(t, err, errors.ErrorTypeRejected, connector.OpSortRecord)
	assert.Equal(t, "Skabelonen 'julemand' findes ikke", errors.UserMessage(e))

	err = h.conn.CheckDoubleRecord(context.Background(), bookRecord("52958858", "9782843090387"))
	e = requireErrorType(t, err, errors.ErrorTypeRejected, connector.OpCheckDoubleRecord)
	assert.Equal(t, "Posten er en dobbeltpost af 52958857:870970", e.Message)
}

func TestNotFoundExhaustsRetries(t *testing.T) {
	h := newHarness(t)
	h.svc.Fail(connector.OpCheckTemplateBuild, http.StatusNotFound, 10, "Not Found")

	start := time.Now()
	ok, err := h.conn.CheckTemplateBuild(context.Background(), "allowall")
	elapsed := time.Since(start)

	assert.False(t, ok)
	requireErrorType(t, err, errors.ErrorTypeTransport, connector.OpCheckTemplateBuild)
	assert.Equal(t, 3, h.svc.Hits(connector.OpCheckTemplateBuild))
	assert.GreaterOrEqual(t, elapsed, 2*testDelay)
}

func TestNotFoundRecovers(t *testing.T) {
	h := newHarness(t)
	h.svc.Fail(connector.OpCheckTemplateBuild, http.StatusNotFound, 2, "")

	ok, err := h.conn.CheckTemplateBuild(context.Background(), "allowall")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, h.svc.Hits(connector.OpCheckTemplateBuild))
}

func TestDroppedConnectionsAreRetried(t *testing.T) {
	h := newHarness(t)
	h.svc.Drop(connector.OpPreprocess, 1)

	rec := bookRecord("1", "2")
	out, err := h.conn.Preprocess(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, rec, out)
	assert.Equal(t, 2, h.svc.Hits(connector.OpPreprocess))
}

func TestNoRetryPolicy(t *testing.T) {
	h := newHarness(t, connector.WithRetryPolicy(clients.NoRetryPolicy()))
	h.svc.Fail(connector.OpCheckTemplate, http.StatusNotFound, 5, "")

	_, err := h.conn.CheckTemplate(context.Background(), "dbc", "710100", "dbc")
	requireErrorType(t, err, errors.ErrorTypeTransport, connector.OpCheckTemplate)
	assert.Equal(t, 1, h.svc.Hits(connector.OpCheckTemplate))
}

func TestNullEntityIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("null"))
	}))
	defer srv.Close()

	conn, err := connector.New(srv.URL, connector.WithRetryPolicy(clients.NoRetryPolicy()))
	require.NoError(t, err)
	defer conn.Close()

	calls := invokers(context.Background(), conn)
	for _, op := range connector.Operations {
		if op == connector.OpCheckDoubleRecord {
			// no entity is expected
			assert.NoError(t, calls[op]())
			continue
		}
		t.Run(op.String(), func(t *testing.T) {
			e := requireErrorType(t, calls[op](), errors.ErrorTypeProtocol, op)
			assert.Contains(t, e.Message, "null-valued")
		})
	}
}

func TestBlankBodyIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(" \n"))
	}))
	defer srv.Close()

	conn, err := connector.New(srv.URL, connector.WithRetryPolicy(clients.NoRetryPolicy()))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ValidateRecord(context.Background(), "dbcautoritet", authorityRecord("870979"))
	e := requireErrorType(t, err, errors.ErrorTypeProtocol, connector.OpValidateRecord)
	assert.Contains(t, e.Message, "null-valued")

	_, err = conn.SortRecord(context.Background(), "bogbind", bookRecord("1", "2"))
	requireErrorType(t, err, errors.ErrorTypeProtocol, connector.OpSortRecord)
}

func TestEnvelopeWithoutValueIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	conn, err := connector.New(srv.URL, connector.WithRetryPolicy(clients.NoRetryPolicy()))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.CheckTemplateBuild(context.Background(), "allowall")
	requireErrorType(t, err, errors.ErrorTypeProtocol, connector.OpCheckTemplateBuild)

	_, err = conn.BuildRecord(context.Background(), "allowall")
	requireErrorType(t, err, errors.ErrorTypeProtocol, connector.OpBuildRecord)
}

func TestUndecodableRecordIsEncodingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"record":"<html>oops</html>"}`))
	}))
	defer srv.Close()

	conn, err := connector.New(srv.URL, connector.WithRetryPolicy(clients.NoRetryPolicy()))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Metacompass(context.Background(), bookRecord("1", "2"))
	requireErrorType(t, err, errors.ErrorTypeEncoding, connector.OpMetacompass)
}

func TestUnencodableRecordIsNeverSent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bad := bookRecord("52958858", "9788702000000")
	bad.Fields[3].Subfields[0].Value = "ab\xffcd"
	good := bookRecord("52958858", "9788702000000")

	_, err := h.conn.ValidateRecord(ctx, "BCIbog", bad)
	e := requireErrorType(t, err, errors.ErrorTypeEncoding, connector.OpValidateRecord)
	assert.Equal(t, marc.CodecMarcXchange, e.Details["codec"])
	assert.Contains(t, err.Error(), "not valid UTF-8")

	_, err = h.conn.SortRecord(ctx, "bogbind", bad)
	requireErrorType(t, err, errors.ErrorTypeEncoding, connector.OpSortRecord)

	_, err = h.conn.DoRecategorizationThings(ctx, good, good, bad)
	requireErrorType(t, err, errors.ErrorTypeEncoding, connector.OpDoRecategorizationThings)

	for _, op := range connector.Operations {
		assert.Zero(t, h.svc.Hits(op), op.String())
	}
}

func TestOptionalFieldsAreOmitted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.conn.BuildRecord(ctx, "allowall")
	require.NoError(t, err)
	_, err = h.conn.BuildRecordFrom(ctx, "allowall", nil, connector.WithTrackingID(""))
	require.NoError(t, err)
	_, err = h.conn.BuildRecordFrom(ctx, "allowall", bookRecord("1", "2"), connector.WithTrackingID("trace-42"))
	require.NoError(t, err)

	reqs := h.svc.Requests(connector.OpBuildRecord)
	require.Len(t, reqs, 3)
	assert.JSONEq(t, `{"templateName":"allowall"}`, string(reqs[0]))
	assert.JSONEq(t, `{"templateName":"allowall"}`, string(reqs[1]))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(reqs[2], &body))
	assert.Equal(t, "trace-42", body["trackingId"])
	assert.Contains(t, body["record"], "<record")
}

func TestRecordOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("sortRecord", func(t *testing.T) {
		rec := &marc.Record{Leader: "00000     22000000 4500 "}
		rec.AddField(marc.NewField("245", "00", sf("a", "Titel")))
		rec.AddField(marc.NewField("001", "00", sf("a", "43645676"), sf("b", "870970")))
		rec.AddField(marc.NewField("004", "00", sf("r", "c")))

		sorted, err := h.conn.SortRecord(ctx, "bogbind", rec)
		require.NoError(t, err)

		expected := &marc.Record{Leader: rec.Leader}
		expected.AddField(rec.Fields[1]).AddField(rec.Fields[2]).AddField(rec.Fields[0])
		assert.Equal(t, expected, sorted)
	})

	t.Run("buildRecord", func(t *testing.T) {
		built, err := h.conn.BuildRecord(ctx, "allowall")
		require.NoError(t, err)
		names := make([]string, 0, len(built.Fields))
		for _, f := range built.Fields {
			names = append(names, f.Name)
		}
		assert.Equal(t, []string{"001", "004", "245"}, names)

		from, err := h.conn.BuildRecordFrom(ctx, "allowall", bookRecord("12345678", "9788711111111"))
		require.NoError(t, err)
		id, _ := from.SubfieldValue("001", "a")
		assert.Equal(t, "12345678", id)
		assert.NotNil(t, from.Field("021"))
	})

	t.Run("preprocess", func(t *testing.T) {
		rec := bookRecord("1", "2")
		out, err := h.conn.Preprocess(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, rec, out)
	})

	t.Run("metacompass", func(t *testing.T) {
		out, err := h.conn.Metacompass(ctx, bookRecord("1", "2"))
		require.NoError(t, err)
		v, ok := out.SubfieldValue("665", "q")
		assert.True(t, ok)
		assert.Equal(t, "metakompas", v)
	})

	t.Run("doRecategorizationThings", func(t *testing.T) {
		current := bookRecord("11111111", "1")
		newRec := bookRecord("22222222", "2")
		out, err := h.conn.DoRecategorizationThings(ctx, current, nil, newRec)
		require.NoError(t, err)
		id, _ := out.SubfieldValue("001", "a")
		assert.Equal(t, "11111111", id)
		isbn, _ := out.SubfieldValue("021", "e")
		assert.Equal(t, "2", isbn)

		reqs := h.svc.Requests(connector.OpDoRecategorizationThings)
		require.NotEmpty(t, reqs)
		assert.NotContains(t, string(reqs[len(reqs)-1]), "updateRecord")
	})

	t.Run("recategorizationNoteFieldFactory", func(t *testing.T) {
		field, err := h.conn.RecategorizationNoteFieldFactory(ctx, bookRecord("1", "2"))
		require.NoError(t, err)
		assert.Equal(t, "512", field.Name)
		assert.Equal(t, "00", field.Indicator)
		v, _ := field.SubfieldValue("t")
		assert.Equal(t, "Ib er et æggehoved", v)
	})
}

func TestCheckDoubleRecordFrontend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	status, err := h.conn.CheckDoubleRecordFrontend(ctx, bookRecord("50938409", "9788700000000"))
	require.NoError(t, err)
	assert.Equal(t, connector.DoubleRecordStatusOK, status.Status)
	assert.False(t, status.HasDoubles())

	status, err = h.conn.CheckDoubleRecordFrontend(ctx, bookRecord("52958858", "9782843090387"))
	require.NoError(t, err)
	assert.Equal(t, &connector.DoubleRecordFrontendStatus{
		Status: connector.DoubleRecordStatusDouble,
		DoubleRecordFrontendDTOs: []connector.DoubleRecordFrontend{
			{Message: "Double record for record 52958858, reason: 021e", PID: "52958857:870970"},
		},
	}, status)
}

func TestJSONCodec(t *testing.T) {
	svc := fakeservice.New(fakeservice.WithCodec(marc.JSONCodec{}))
	srv := svc.Start()
	defer srv.Close()

	conn, err := connector.New(srv.URL, connector.WithCodec(marc.JSONCodec{}))
	require.NoError(t, err)
	defer conn.Close()

	rec := bookRecord("1", "2")
	out, err := conn.Preprocess(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, rec, out)

	var body map[string]string
	require.NoError(t, json.Unmarshal(svc.Requests(connector.OpPreprocess)[0], &body))
	assert.True(t, strings.HasPrefix(body["record"], "{"))
}

func TestTimingLog(t *testing.T) {
	tests := []struct {
		level logger.TimingLevel
		want  zapcore.Level
	}{
		{logger.TimingTrace, zapcore.DebugLevel},
		{logger.TimingDebug, zapcore.DebugLevel},
		{logger.TimingInfo, zapcore.InfoLevel},
		{logger.TimingWarn, zapcore.WarnLevel},
		{logger.TimingError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			h := newHarness(t, connector.WithTimingLevel(tt.level))

			_, err := h.conn.CheckTemplate(context.Background(), "dbc", "710100", "fbs")
			require.NoError(t, err)

			entries := h.logs.FilterMessageSnippet("checkTemplate took").All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.want, entries[0].Level)
			assert.Regexp(t, `^checkTemplate took \d+ milliseconds$`, entries[0].Message)
			assert.Equal(t, "checkTemplate", entries[0].ContextMap()["operation"])
		})
	}
}

func TestTimingLogOnError(t *testing.T) {
	h := newHarness(t)
	h.svc.Fail(connector.OpSortRecord, http.StatusBadRequest, 1, "Ugyldig post")

	_, err := h.conn.SortRecord(context.Background(), "bogbind", bookRecord("1", "2"))
	require.Error(t, err)

	entries := h.logs.FilterMessageSnippet("sortRecord took").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "Ugyldig post")
}

func TestTimingLogSuppressedBelowLoggerLevel(t *testing.T) {
	svc := fakeservice.New()
	srv := svc.Start()
	defer srv.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	conn, err := connector.New(srv.URL,
		connector.WithLogger(zap.New(core)),
		connector.WithTimingLevel(logger.TimingTrace))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.CheckTemplate(context.Background(), "dbc", "710100", "fbs")
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessageSnippet("took").Len())
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []connector.CallInfo
}

func (r *recordingObserver) ObserveCall(info connector.CallInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, info)
}

func TestObserversSeeEveryCall(t *testing.T) {
	obs := &recordingObserver{}
	h := newHarness(t, connector.WithObserver(obs))
	h.svc.Fail(connector.OpCheckTemplateBuild, http.StatusNotFound, 1, "")

	_, err := h.conn.CheckTemplateBuild(context.Background(), "allowall")
	require.NoError(t, err)
	_, err = h.conn.CheckTemplateBuild(context.Background(), "julemand")
	require.NoError(t, err)
	_, err = h.conn.ValidateRecord(context.Background(), "julemand", authorityRecord("870970"))
	require.Error(t, err)

	require.Len(t, obs.calls, 3)
	assert.Equal(t, connector.OpCheckTemplateBuild, obs.calls[0].Operation)
	assert.Equal(t, 2, obs.calls[0].Attempts)
	assert.GreaterOrEqual(t, obs.calls[0].Elapsed, testDelay)
	assert.NoError(t, obs.calls[1].Err)
	assert.Equal(t, connector.OpValidateRecord, obs.calls[2].Operation)
	assert.True(t, errors.IsType(obs.calls[2].Err, errors.ErrorTypeRejected))
}

func TestFailedCallsReportAttempts(t *testing.T) {
	obs := &recordingObserver{}
	h := newHarness(t, connector.WithObserver(obs))
	h.svc.Fail(connector.OpCheckTemplateBuild, http.StatusNotFound, 10, "Not Found")

	_, err := h.conn.CheckTemplateBuild(context.Background(), "allowall")
	requireErrorType(t, err, errors.ErrorTypeTransport, connector.OpCheckTemplateBuild)

	bad := bookRecord("1", "2")
	bad.Fields[3].Subfields[0].Value = "\xff"
	_, err = h.conn.Preprocess(context.Background(), bad)
	requireErrorType(t, err, errors.ErrorTypeEncoding, connector.OpPreprocess)

	require.Len(t, obs.calls, 2)
	assert.Equal(t, 3, obs.calls[0].Attempts)
	assert.Zero(t, obs.calls[1].Attempts)

	entries := h.logs.FilterMessageSnippet("checkTemplateBuild took").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()["attempts"])
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	h := newHarness(t, connector.WithTracer(tp.Tracer("test")))

	_, err := h.conn.CheckTemplate(context.Background(), "netlydbog", "710100", "fbs")
	require.NoError(t, err)
	h.svc.Fail(connector.OpMetacompass, http.StatusInternalServerError, 1, "boom")
	_, err = h.conn.Metacompass(context.Background(), bookRecord("1", "2"))
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "opencat-business.checkTemplate", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "opencat-business.metacompass", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, connector.ServerFaultMessage, spans[1].Status().Description)
}

func TestCancellation(t *testing.T) {
	h := newHarness(t, connector.WithRetryPolicy(clients.NewRetryPolicy(6, time.Hour)))
	h.svc.Fail(connector.OpBuildRecord, http.StatusNotFound, 100, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.conn.BuildRecord(ctx, "allowall")
	requireErrorType(t, err, errors.ErrorTypeCancelled, connector.OpBuildRecord)
	assert.Equal(t, 1, h.svc.Hits(connector.OpBuildRecord))
}

func TestCallTimeout(t *testing.T) {
	h := newHarness(t,
		connector.WithRetryPolicy(clients.NewRetryPolicy(6, time.Hour)),
		connector.WithCallTimeout(50*time.Millisecond))
	h.svc.Fail(connector.OpBuildRecord, http.StatusNotFound, 100, "")

	start := time.Now()
	_, err := h.conn.BuildRecord(context.Background(), "allowall")
	requireErrorType(t, err, errors.ErrorTypeCancelled, connector.OpBuildRecord)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConcurrentCalls(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.conn.ValidateRecord(context.Background(), "dbcautoritet", authorityRecord("870979"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 20, h.svc.Hits(connector.OpValidateRecord))
}

func TestNewValidation(t *testing.T) {
	_, err := connector.New("")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = connector.New("opencat-business:8080/")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = connector.New("http://localhost", connector.WithTimingLevel("VERBOSE"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = connector.New("http://localhost", connector.WithRetryPolicy(clients.NewRetryPolicy(0, time.Second)))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = connector.New("http://localhost", connector.WithCallTimeout(-time.Second))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	c, err := connector.New(" http://localhost:8080/ ")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
	assert.Equal(t, marc.CodecMarcXchange, c.Codec().Name())
	assert.Equal(t, clients.DefaultRetryPolicy().MaxAttempts, c.RetryPolicy().MaxAttempts)
	assert.Equal(t, clients.DefaultRetryPolicy().Delay, c.RetryPolicy().Delay)
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.conn.Close())
	assert.NoError(t, h.conn.Close())
	assert.Equal(t, 1, h.logs.FilterMessage("closing connector").Len())
}

func TestSharedClientIsNotClosed(t *testing.T) {
	svc := fakeservice.New()
	srv := svc.Start()
	defer srv.Close()

	client := clients.NewHTTPClient(nil, nil, clients.WithRetryPolicy(clients.NoRetryPolicy()))
	a, err := connector.New(srv.URL, connector.WithClient(client))
	require.NoError(t, err)
	b, err := connector.New(srv.URL, connector.WithClient(client))
	require.NoError(t, err)

	require.NoError(t, a.Close())
	_, err = b.CheckTemplate(context.Background(), "dbc", "710100", "dbc")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), client.Stats().TotalAttempts)
}
