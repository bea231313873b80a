// Package clients provides the HTTP transport used to reach opencat-business
package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/DBCDK/opencat-business-connector/pkg/errors"
	"github.com/DBCDK/opencat-business-connector/pkg/observability"
)

// HTTPClient posts JSON payloads and applies a RetryPolicy. It holds no
// per-call state and is safe for concurrent use.
type HTTPClient struct {
	config     *HTTPConfig
	logger     *zap.Logger
	httpClient *http.Client
	policy     RetryPolicy
	observers  []AttemptObserver
	stats      *AttemptStats

	closeOnce sync.Once
}

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Connection settings
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`

	// HTTP/2 settings
	EnableHTTP2 bool `json:"enable_http2"`

	// Timeouts
	DialTimeout           time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout"`
	RequestTimeout        time.Duration `json:"request_timeout"` // per attempt
	KeepAlive             time.Duration `json:"keep_alive"`

	UserAgent string `json:"user_agent"`
}

// DefaultHTTPConfig returns the default transport configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		EnableHTTP2:           false,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 0,
		RequestTimeout:        30 * time.Second,
		KeepAlive:             30 * time.Second,
		UserAgent:             "opencat-business-connector/1.0",
	}
}

// Response is the outcome of a successful exchange: a status and a fully
// read body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Attempts is the number of attempts made to obtain this response.
	Attempts int
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithRetryPolicy sets the retry policy. The policy is copied.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *HTTPClient) {
		c.policy = policy
	}
}

// WithHTTPClient replaces the underlying *http.Client, e.g. one shared with
// other components. Transport settings from HTTPConfig are then not applied.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAttemptObserver registers an observer notified after every attempt
func WithAttemptObserver(o AttemptObserver) Option {
	return func(c *HTTPClient) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger, opts ...Option) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &HTTPClient{
		config: config,
		logger: logger.With(zap.String("component", "http_client")),
		policy: DefaultRetryPolicy(),
		stats:  NewAttemptStats(),
	}
	client.observers = append(client.observers, client.stats)

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{
			Transport: newTransport(config, client.logger),
			Timeout:   config.RequestTimeout,
		}
	}

	return client
}

func newTransport(config *HTTPConfig, logger *zap.Logger) *http.Transport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn("failed to configure HTTP/2", zap.Error(err))
		} else {
			logger.Debug("HTTP/2 enabled")
		}
	}

	return transport
}

// RetryPolicy returns a copy of the client's retry policy
func (c *HTTPClient) RetryPolicy() RetryPolicy {
	return c.policy
}

// PostJSON posts body to rawURL with JSON content headers, retrying according
// to the client's policy. When the retry budget is spent on a retryable
// outcome a transport error is returned; any other response is returned as
// is, whatever its status, for the caller to interpret.
func (c *HTTPClient) PostJSON(ctx context.Context, rawURL string, body []byte) (*Response, error) {
	var (
		lastResp *Response
		lastErr  error
		retrying bool
	)

	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	attempts, waitErr := c.policy.Execute(ctx, func(attempt int) bool {
		start := time.Now()
		lastResp, lastErr = c.post(ctx, rawURL, body)
		if lastErr != nil && ctx.Err() != nil {
			// Caller gave up, nothing to retry
			retrying = false
			return false
		}

		retrying = c.policy.ShouldRetry(lastResp, lastErr)
		willRetry := retrying && attempt < c.policy.MaxAttempts
		c.notify(AttemptInfo{
			Path:     path,
			Attempt:  attempt,
			Status:   statusOf(lastResp),
			Err:      lastErr,
			Elapsed:  time.Since(start),
			Retrying: willRetry,
		})
		if willRetry {
			c.logger.Debug("retrying opencat-business request",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.policy.MaxAttempts),
				zap.String("reason", reason(lastResp, lastErr)),
				zap.Duration("delay", c.policy.Delay))
		}
		return retrying
	})

	if waitErr != nil || (lastErr != nil && ctx.Err() != nil) {
		return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeCancelled, "request to opencat-business abandoned").
			WithDetail("path", path).
			WithDetail("attempts", attempts)
	}

	if retrying {
		// Budget spent on a retryable outcome
		if lastErr != nil {
			return nil, errors.Wrap(lastErr, errors.ErrorTypeTransport,
				fmt.Sprintf("request to %s failed after %d attempts", path, attempts)).
				WithDetail("path", path).
				WithDetail("attempts", attempts)
		}
		return nil, errors.Newf(errors.ErrorTypeTransport,
			"opencat-business responded %d %s to %s after %d attempts",
			lastResp.StatusCode, http.StatusText(lastResp.StatusCode), path, attempts).
			WithDetail("path", path).
			WithDetail("attempts", attempts).
			WithDetail("status", lastResp.StatusCode).
			WithDetail("body", string(lastResp.Body))
	}

	if lastErr != nil {
		// A custom condition declined to retry a processing failure
		return nil, errors.Wrap(lastErr, errors.ErrorTypeTransport,
			fmt.Sprintf("request to %s failed", path)).
			WithDetail("path", path).
			WithDetail("attempts", attempts)
	}

	lastResp.Attempts = attempts
	return lastResp, nil
}

// post performs a single attempt
func (c *HTTPClient) post(ctx context.Context, rawURL string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	observability.InjectHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *HTTPClient) notify(info AttemptInfo) {
	for _, o := range c.observers {
		o.ObserveAttempt(info)
	}
}

// Stats returns current client statistics
func (c *HTTPClient) Stats() HTTPStats {
	return c.stats.Snapshot()
}

// Close releases pooled connections. Calling it more than once is harmless.
func (c *HTTPClient) Close() error {
	c.closeOnce.Do(func() {
		c.logger.Debug("closing HTTP client")
		c.httpClient.CloseIdleConnections()
	})
	return nil
}

// AttemptsOf returns the number of attempts recorded on an error returned by
// PostJSON, or zero when err carries no count.
func AttemptsOf(err error) int {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return 0
	}
	n, _ := e.Details["attempts"].(int)
	return n
}

func statusOf(resp *Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func reason(resp *Response, err error) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return "unknown"
}
