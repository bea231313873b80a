package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/DBCDK/opencat-business-connector/pkg/errors"
	"github.com/DBCDK/opencat-business-connector/pkg/logger"
	"github.com/DBCDK/opencat-business-connector/pkg/marc"
)

// ConnectorConfig is the configuration of an opencat-business connector.
// It is organized into sections the same way it appears in YAML.
type ConnectorConfig struct {
	// BaseURL of the opencat-business service, e.g. http://opencat-business:8080
	BaseURL string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	// TimingLogLevel is the level of the per-call timing line (TRACE, DEBUG, INFO, WARN, ERROR)
	TimingLogLevel string `yaml:"timing_log_level" json:"timing_log_level" mapstructure:"timing_log_level"`
	// Codec selects the record wire format (marcxchange, json)
	Codec string `yaml:"codec" json:"codec" mapstructure:"codec"`

	Retry         RetryConfig         `yaml:"retry" json:"retry" mapstructure:"retry"`
	HTTP          HTTPConfig          `yaml:"http" json:"http" mapstructure:"http"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging" mapstructure:"logging"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// RetryConfig controls how failed attempts are repeated
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, 1 disables retries
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" mapstructure:"max_attempts"`
	// Delay is the fixed pause between attempts
	Delay time.Duration `yaml:"delay" json:"delay" mapstructure:"delay"`
}

// HTTPConfig contains transport settings
type HTTPConfig struct {
	// RequestTimeout bounds a single attempt
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" mapstructure:"request_timeout"`
	// CallTimeout bounds a whole call including retries (0 = none)
	CallTimeout         time.Duration `yaml:"call_timeout" json:"call_timeout" mapstructure:"call_timeout"`
	EnableHTTP2         bool          `yaml:"enable_http2" json:"enable_http2" mapstructure:"enable_http2"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host" mapstructure:"max_idle_conns_per_host"`
	UserAgent           string        `yaml:"user_agent" json:"user_agent" mapstructure:"user_agent"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level       string `yaml:"level" json:"level" mapstructure:"level"`
	Development bool   `yaml:"development" json:"development" mapstructure:"development"`
	Encoding    string `yaml:"encoding" json:"encoding" mapstructure:"encoding"`
}

// ObservabilityConfig switches metrics and tracing on
type ObservabilityConfig struct {
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
}

// Defaults used by NewConnectorConfig and Load.
const (
	DefaultMaxAttempts         = 6
	DefaultRetryDelay          = 10 * time.Second
	DefaultRequestTimeout      = 30 * time.Second
	DefaultMaxIdleConnsPerHost = 20
)

// NewConnectorConfig returns a configuration with production defaults for
// the service at baseURL.
func NewConnectorConfig(baseURL string) *ConnectorConfig {
	return &ConnectorConfig{
		BaseURL:        baseURL,
		TimingLogLevel: string(logger.TimingInfo),
		Codec:          marc.CodecMarcXchange,
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			Delay:       DefaultRetryDelay,
		},
		HTTP: HTTPConfig{
			RequestTimeout:      DefaultRequestTimeout,
			CallTimeout:         0,
			EnableHTTP2:         false,
			MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// NoRetry turns retries off, for callers that prefer a fast failure.
func (c *ConnectorConfig) NoRetry() *ConnectorConfig {
	c.Retry.MaxAttempts = 1
	c.Retry.Delay = 0
	return c
}

// Validate checks required fields and value ranges.
func (c *ConnectorConfig) Validate() error {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return errors.New(errors.ErrorTypeConfig, "base_url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Newf(errors.ErrorTypeConfig, "base_url %q is not absolute", c.BaseURL)
	}
	if _, err := logger.ParseTimingLevel(c.TimingLogLevel); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "timing_log_level")
	}
	if _, err := marc.CodecByName(c.Codec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "codec")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.Newf(errors.ErrorTypeConfig, "retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Delay < 0 {
		return errors.New(errors.ErrorTypeConfig, "retry.delay cannot be negative")
	}
	if c.HTTP.RequestTimeout < 0 {
		return errors.New(errors.ErrorTypeConfig, "http.request_timeout cannot be negative")
	}
	if c.HTTP.CallTimeout < 0 {
		return errors.New(errors.ErrorTypeConfig, "http.call_timeout cannot be negative")
	}
	if c.HTTP.MaxIdleConnsPerHost < 0 {
		return errors.New(errors.ErrorTypeConfig, "http.max_idle_conns_per_host cannot be negative")
	}
	return nil
}

// TimingLevel returns the parsed timing level, INFO when unset or invalid.
func (c *ConnectorConfig) TimingLevel() logger.TimingLevel {
	level, err := logger.ParseTimingLevel(c.TimingLogLevel)
	if err != nil {
		return logger.TimingInfo
	}
	return level
}

// LoggerConfig converts the logging section for logger.New.
func (c *ConnectorConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.Logging.Level,
		Development: c.Logging.Development,
		Encoding:    c.Logging.Encoding,
	}
}

// String renders the configuration on one line for log output.
func (c *ConnectorConfig) String() string {
	return fmt.Sprintf("base_url=%s timing_log_level=%s codec=%s retry.max_attempts=%d retry.delay=%s",
		c.BaseURL, c.TimingLogLevel, c.Codec, c.Retry.MaxAttempts, c.Retry.Delay)
}
