package connector

import (
	"context"
	stderrors "errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DBCDK/opencat-business-connector/pkg/clients"
	"github.com/DBCDK/opencat-business-connector/pkg/errors"
	"github.com/DBCDK/opencat-business-connector/pkg/json"
	"github.com/DBCDK/opencat-business-connector/pkg/logger"
	"github.com/DBCDK/opencat-business-connector/pkg/marc"
)

// TracerName is the instrumentation name of the connector's spans.
const TracerName = "github.com/DBCDK/opencat-business-connector/pkg/connector"

// Connector is a client for the opencat-business service. It keeps no state
// between calls apart from its immutable configuration and may be shared by
// any number of goroutines.
type Connector struct {
	baseURL     string
	client      *clients.HTTPClient
	ownsClient  bool
	codec       marc.Codec
	logger      *zap.Logger
	timingLevel logger.TimingLevel
	observers   []CallObserver
	tracer      trace.Tracer
	callTimeout time.Duration

	httpConfig    *clients.HTTPConfig
	policy        *clients.RetryPolicy
	clientOptions []clients.Option

	closeOnce sync.Once
}

// Option configures a Connector
type Option func(*Connector)

// WithClient makes the connector use an existing transport. The connector
// does not close a client it did not create.
func WithClient(client *clients.HTTPClient) Option {
	return func(c *Connector) {
		c.client = client
	}
}

// WithHTTPConfig sets the transport configuration used when the connector
// creates its own client.
func WithHTTPConfig(cfg *clients.HTTPConfig) Option {
	return func(c *Connector) {
		c.httpConfig = cfg
	}
}

// WithRetryPolicy sets the retry policy used when the connector creates its
// own client.
func WithRetryPolicy(policy clients.RetryPolicy) Option {
	return func(c *Connector) {
		c.policy = &policy
	}
}

// WithClientOptions passes options to the client the connector creates.
func WithClientOptions(opts ...clients.Option) Option {
	return func(c *Connector) {
		c.clientOptions = append(c.clientOptions, opts...)
	}
}

// WithCodec sets the record wire format. The default is MarcXchange.
func WithCodec(codec marc.Codec) Option {
	return func(c *Connector) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithLogger sets the logger used for timing lines and transport logs.
func WithLogger(l *zap.Logger) Option {
	return func(c *Connector) {
		c.logger = l
	}
}

// WithTimingLevel sets the level of the per-call timing line.
func WithTimingLevel(level logger.TimingLevel) Option {
	return func(c *Connector) {
		c.timingLevel = level
	}
}

// WithObserver registers a call observer. If o also implements
// clients.AttemptObserver it is attached to the client the connector creates.
func WithObserver(o CallObserver) Option {
	return func(c *Connector) {
		if o == nil {
			return
		}
		c.observers = append(c.observers, o)
		if ao, ok := o.(clients.AttemptObserver); ok {
			c.clientOptions = append(c.clientOptions, clients.WithAttemptObserver(ao))
		}
	}
}

// WithTracer sets the tracer. The default is the global tracer provider's.
func WithTracer(t trace.Tracer) Option {
	return func(c *Connector) {
		c.tracer = t
	}
}

// WithCallTimeout bounds each call, retries and delays included. Zero means
// no bound beyond the caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Connector) {
		c.callTimeout = d
	}
}

// New creates a connector for the service at baseURL.
func New(baseURL string, opts ...Option) (*Connector, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "base URL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "base URL %q is not an absolute URL", baseURL)
	}

	c := &Connector{
		baseURL:     baseURL,
		codec:       marc.DefaultCodec(),
		timingLevel: logger.TimingInfo,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = logger.OrNop(c.logger).With(zap.String("component", "opencat_business_connector"))
	if c.timingLevel == "" {
		c.timingLevel = logger.TimingInfo
	}
	if _, err := logger.ParseTimingLevel(string(c.timingLevel)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid timing level")
	}
	if c.callTimeout < 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "call timeout must not be negative, got %s", c.callTimeout)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(TracerName)
	}

	if c.client == nil {
		clientOpts := c.clientOptions
		if c.policy != nil {
			if err := c.policy.Validate(); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid retry policy")
			}
			clientOpts = append([]clients.Option{clients.WithRetryPolicy(*c.policy)}, clientOpts...)
		}
		c.client = clients.NewHTTPClient(c.httpConfig, c.logger, clientOpts...)
		c.ownsClient = true
	}

	c.observers = append([]CallObserver{NewTimingObserver(c.logger, c.timingLevel)}, c.observers...)
	return c, nil
}

// BaseURL returns the service base URL without trailing slash.
func (c *Connector) BaseURL() string {
	return c.baseURL
}

// Codec returns the record wire format in use.
func (c *Connector) Codec() marc.Codec {
	return c.codec
}

// RetryPolicy returns the transport's retry policy.
func (c *Connector) RetryPolicy() clients.RetryPolicy {
	return c.client.RetryPolicy()
}

// Close releases the transport's pooled connections when the connector owns
// the transport. Only the first call has any effect.
func (c *Connector) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.logger.Debug("closing connector", zap.String("base_url", c.baseURL))
		if c.ownsClient {
			err = c.client.Close()
		}
	})
	return err
}

// ValidateRecord validates rec against the named template and returns the
// messages in service order. An empty slice means the record is valid.
func (c *Connector) ValidateRecord(ctx context.Context, templateName string, rec *marc.Record, opts ...CallOption) (entries []MessageEntry, err error) {
	ctx, cl := c.begin(ctx, OpValidateRecord)
	defer func() { err = c.end(cl, err) }()

	o := applyCallOptions(opts)
	record, err := c.encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, cl, &validateRecordRequest{
		TemplateName: templateName,
		Record:       record,
		TrackingID:   o.trackingID,
	})
	if err != nil {
		return nil, err
	}
	return decodeEntity[[]MessageEntry](resp, "MessageEntry[]")
}

// CheckTemplate reports whether the template may be used by the library
// group and type.
func (c *Connector) CheckTemplate(ctx context.Context, name, groupID, libraryType string, opts ...CallOption) (ok bool, err error) {
	ctx, cl := c.begin(ctx, OpCheckTemplate)
	defer func() { err = c.end(cl, err) }()

	o := applyCallOptions(opts)
	resp, err := c.post(ctx, cl, &checkTemplateRequest{
		Name:        name,
		GroupID:     groupID,
		LibraryType: libraryType,
		TrackingID:  o.trackingID,
	})
	if err != nil {
		return false, err
	}
	return decodeEntity[bool](resp, "Boolean")
}

// CheckTemplateBuild reports whether a record can be built from the template.
func (c *Connector) CheckTemplateBuild(ctx context.Context, name string, opts ...CallOption) (ok bool, err error) {
	ctx, cl := c.begin(ctx, OpCheckTemplateBuild)
	defer func() { err = c.end(cl, err) }()

	o := applyCallOptions(opts)
	resp, err := c.post(ctx, cl, &checkTemplateBuildRequest{
		Name:       name,
		TrackingID: o.trackingID,
	})
	if err != nil {
		return false, err
	}
	out, err := decodeEntity[checkTemplateBuildResponse](resp, "CheckTemplateBuildResponse")
	if err != nil {
		return false, err
	}
	if out.Result == nil {
		return false, errors.New(errors.ErrorTypeProtocol, "OpencatBusiness returned CheckTemplateBuildResponse without result")
	}
	return *out.Result, nil
}

// CheckDoubleRecordFrontend looks for records that duplicate rec.
func (c *Connector) CheckDoubleRecordFrontend(ctx context.Context, rec *marc.Record, opts ...CallOption) (status *DoubleRecordFrontendStatus, err error) {
	ctx, cl := c.begin(ctx, OpCheckDoubleRecordFrontend)
	defer func() { err = c.end(cl, err) }()

	resp, err := c.postRecord(ctx, cl, rec, opts)
	if err != nil {
		return nil, err
	}
	out, err := decodeEntity[DoubleRecordFrontendStatus](resp, "DoubleRecordFrontendStatus")
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckDoubleRecord asks the service to run its double record check on rec.
// Only the status of the answer is inspected.
func (c *Connector) CheckDoubleRecord(ctx context.Context, rec *marc.Record, opts ...CallOption) (err error) {
	ctx, cl := c.begin(ctx, OpCheckDoubleRecord)
	defer func() { err = c.end(cl, err) }()

	_, err = c.postRecord(ctx, cl, rec, opts)
	return err
}

// DoRecategorizationThings merges the current, update and new versions of a
// record after a change of category and returns the resulting record.
func (c *Connector) DoRecategorizationThings(ctx context.Context, current, update, newRec *marc.Record, opts ...CallOption) (rec *marc.Record, err error) {
	ctx, cl := c.begin(ctx, OpDoRecategorizationThings)
	defer func() { err = c.end(cl, err) }()

	o := applyCallOptions(opts)
	req := &doRecategorizationThingsRequest{TrackingID: o.trackingID}
	if req.CurrentRecord, err = c.encodeRecord(current); err != nil {
		return nil, err
	}
	if req.UpdateRecord, err = c.encodeRecord(update); err != nil {
		return nil, err
	}
	if req.NewRecord, err = c.encodeRecord(newRec); err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, cl, req)
	if err != nil {
		return nil, err
	}
	return c.recordFrom(resp)
}

// RecategorizationNoteFieldFactory returns the note field describing a
// change of category for rec.
func (c *Connector) RecategorizationNoteFieldFactory(ctx context.Context, rec *marc.Record, opts ...CallOption) (field *marc.Field, err error) {
	ctx, cl := c.begin(ctx, OpRecategorizationNoteFieldFactory)
	defer func() { err = c.end(cl, err) }()

	resp, err := c.postRecord(ctx, cl, rec, opts)
	if err != nil {
		return nil, err
	}
	out, err := decodeEntity[wireField](resp, "DataField")
	if err != nil {
		return nil, err
	}
	return out.toField(), nil
}

// BuildRecord builds a new record from the named template.
func (c *Connector) BuildRecord(ctx context.Context, templateName string, opts ...CallOption) (*marc.Record, error) {
	return c.BuildRecordFrom(ctx, templateName, nil, opts...)
}

// BuildRecordFrom builds a record from the named template using rec as a
// starting point. A nil rec is the same as BuildRecord.
func (c *Connector) BuildRecordFrom(ctx context.Context, templateName string, rec *marc.Record, opts ...CallOption) (built *marc.Record, err error) {
	ctx, cl := c.begin(ctx, OpBuildRecord)
	defer func() { err = c.end(cl, err) }()

	o := applyCallOptions(opts)
	record, err := c.encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, cl, &buildRecordRequest{
		TemplateName: templateName,
		Record:       record,
		TrackingID:   o.trackingID,
	})
	if err != nil {
		return nil, err
	}
	return c.recordFrom(resp)
}

// SortRecord orders the fields of rec as the template provider prescribes.
func (c *Connector) SortRecord(ctx context.Context, templateProvider string, rec *marc.Record, opts ...CallOption) (sorted *marc.Record, err error) {
	ctx, cl := c.begin(ctx, OpSortRecord)
	defer func() { err = c.end(cl, err) }()

	o := applyCallOptions(opts)
	record, err := c.encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, cl, &sortRecordRequest{
		TemplateProvider: templateProvider,
		Record:           record,
		TrackingID:       o.trackingID,
	})
	if err != nil {
		return nil, err
	}
	return c.recordFrom(resp)
}

// GetValidateSchemas lists the templates available to a template group under
// the given library rules, in the order the service returns them.
func (c *Connector) GetValidateSchemas(ctx context.Context, templateGroup string, allowedLibraryRules map[string]struct{}, opts ...CallOption) (schemas []Schema, err error) {
	ctx, cl := c.begin(ctx, OpGetValidateSchemas)
	defer func() { err = c.end(cl, err) }()

	o := applyCallOptions(opts)
	resp, err := c.post(ctx, cl, &getValidateSchemasRequest{
		TemplateGroup:       templateGroup,
		AllowedLibraryRules: libraryRules(allowedLibraryRules),
		TrackingID:          o.trackingID,
	})
	if err != nil {
		return nil, err
	}
	return decodeEntity[[]Schema](resp, "Schema[]")
}

// Preprocess runs the service's preprocessing on rec.
func (c *Connector) Preprocess(ctx context.Context, rec *marc.Record, opts ...CallOption) (out *marc.Record, err error) {
	ctx, cl := c.begin(ctx, OpPreprocess)
	defer func() { err = c.end(cl, err) }()

	resp, err := c.postRecord(ctx, cl, rec, opts)
	if err != nil {
		return nil, err
	}
	return c.recordFrom(resp)
}

// Metacompass enriches rec with metacompass subject data.
func (c *Connector) Metacompass(ctx context.Context, rec *marc.Record, opts ...CallOption) (out *marc.Record, err error) {
	ctx, cl := c.begin(ctx, OpMetacompass)
	defer func() { err = c.end(cl, err) }()

	resp, err := c.postRecord(ctx, cl, rec, opts)
	if err != nil {
		return nil, err
	}
	return c.recordFrom(resp)
}

// call carries the per-invocation bookkeeping shared by begin, post and end.
type call struct {
	op       Operation
	start    time.Time
	attempts int
	span     trace.Span
	cancel   context.CancelFunc
}

func (c *Connector) begin(ctx context.Context, op Operation) (context.Context, *call) {
	if ctx == nil {
		ctx = context.Background()
	}
	cl := &call{op: op, start: time.Now()}
	if c.callTimeout > 0 {
		ctx, cl.cancel = context.WithTimeout(ctx, c.callTimeout)
	}
	ctx, cl.span = c.tracer.Start(ctx, "opencat-business."+op.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("opencat.operation", op.String()),
			attribute.String("http.url", c.baseURL+op.Path()),
		))
	return ctx, cl
}

// end tags err with the operation and notifies every observer. It runs on
// every exit path of a facade method.
func (c *Connector) end(cl *call, err error) error {
	if cl.cancel != nil {
		cl.cancel()
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		e.WithOp(cl.op.String())
	}

	info := CallInfo{
		Operation: cl.op,
		Elapsed:   time.Since(cl.start),
		Attempts:  cl.attempts,
		Err:       err,
	}
	for _, o := range c.observers {
		o.ObserveCall(info)
	}

	if cl.attempts > 0 {
		cl.span.SetAttributes(attribute.Int("opencat.attempts", cl.attempts))
	}
	if err != nil {
		cl.span.RecordError(err)
		cl.span.SetStatus(codes.Error, errors.UserMessage(err))
	} else {
		cl.span.SetStatus(codes.Ok, "")
	}
	cl.span.End()
	return err
}

// post marshals req, sends it and checks the status of the answer.
func (c *Connector) post(ctx context.Context, cl *call, req any) (*clients.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeEncoding, "failed to marshal request")
	}
	resp, err := c.client.PostJSON(ctx, c.baseURL+cl.op.Path(), body)
	if err != nil {
		cl.attempts = clients.AttemptsOf(err)
		return nil, err
	}
	cl.attempts = resp.Attempts
	cl.span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err := assertStatus(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// postRecord sends the {record, trackingId} payload shared by several operations.
func (c *Connector) postRecord(ctx context.Context, cl *call, rec *marc.Record, opts []CallOption) (*clients.Response, error) {
	o := applyCallOptions(opts)
	record, err := c.encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, cl, &recordRequest{Record: record, TrackingID: o.trackingID})
}

// recordFrom decodes a {record} envelope into a record.
func (c *Connector) recordFrom(resp *clients.Response) (*marc.Record, error) {
	out, err := decodeEntity[recordResponse](resp, "RecordResponse")
	if err != nil {
		return nil, err
	}
	if out.Record == nil {
		return nil, errors.New(errors.ErrorTypeProtocol, "OpencatBusiness returned RecordResponse without record")
	}
	return c.decodeRecord(*out.Record)
}
