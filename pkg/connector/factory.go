package connector

import (
	"go.uber.org/zap"

	"github.com/DBCDK/opencat-business-connector/pkg/clients"
	"github.com/DBCDK/opencat-business-connector/pkg/config"
	"github.com/DBCDK/opencat-business-connector/pkg/errors"
	"github.com/DBCDK/opencat-business-connector/pkg/logger"
	"github.com/DBCDK/opencat-business-connector/pkg/marc"
)

// NewFromConfig creates a connector from a validated configuration. Options
// are applied after the configured ones and may override them.
func NewFromConfig(cfg *config.ConnectorConfig, log *zap.Logger, opts ...Option) (*Connector, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrNop(log)
	log.Info("Creating OpencatBusinessConnector for: "+cfg.BaseURL,
		zap.String("timing_log_level", string(cfg.TimingLevel())),
		zap.Int("max_attempts", cfg.Retry.MaxAttempts),
		zap.Duration("retry_delay", cfg.Retry.Delay))

	codec, err := marc.CodecByName(cfg.Codec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "codec")
	}

	base := []Option{
		WithLogger(log),
		WithTimingLevel(cfg.TimingLevel()),
		WithCodec(codec),
		WithHTTPConfig(HTTPConfigFrom(cfg)),
		WithRetryPolicy(clients.NewRetryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.Delay)),
		WithCallTimeout(cfg.HTTP.CallTimeout),
	}
	return New(cfg.BaseURL, append(base, opts...)...)
}

// HTTPConfigFrom derives the transport configuration from cfg.
func HTTPConfigFrom(cfg *config.ConnectorConfig) *clients.HTTPConfig {
	hc := clients.DefaultHTTPConfig()
	if cfg.HTTP.RequestTimeout > 0 {
		hc.RequestTimeout = cfg.HTTP.RequestTimeout
	}
	if cfg.HTTP.MaxIdleConnsPerHost > 0 {
		hc.MaxIdleConnsPerHost = cfg.HTTP.MaxIdleConnsPerHost
	}
	if cfg.HTTP.UserAgent != "" {
		hc.UserAgent = cfg.HTTP.UserAgent
	}
	hc.EnableHTTP2 = cfg.HTTP.EnableHTTP2
	return hc
}
