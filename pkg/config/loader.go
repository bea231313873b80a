package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/DBCDK/opencat-business-connector/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g.
// OPENCAT_BUSINESS_RETRY_MAX_ATTEMPTS for retry.max_attempts.
const EnvPrefix = "OPENCAT_BUSINESS"

// LoadOption adjusts the viper instance used by Load
type LoadOption func(v *viper.Viper)

// WithOverride sets key to value with the highest precedence, above the
// environment and the file. Keys use the YAML dotted form, e.g. "retry.delay".
func WithOverride(key string, value interface{}) LoadOption {
	return func(v *viper.Viper) {
		v.Set(key, value)
	}
}

// Load reads the configuration from an optional YAML file and the
// environment, then validates it. Environment variables win over the file.
// ${VAR} references in the file are expanded before parsing.
func Load(filePath string, opts ...LoadOption) (*ConnectorConfig, error) {
	v := viper.New()
	setDefaults(v)

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
		}
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader([]byte(substituteEnvVars(string(data))))); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The URL variable predates the prefix scheme
	if err := v.BindEnv("base_url", EnvPrefix+"_URL", EnvPrefix+"_BASE_URL"); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to bind environment")
	}
	for _, opt := range opts {
		opt(v)
	}

	cfg := &ConnectorConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override all of them.
func setDefaults(v *viper.Viper) {
	d := NewConnectorConfig("")
	v.SetDefault("base_url", "")
	v.SetDefault("timing_log_level", d.TimingLogLevel)
	v.SetDefault("codec", d.Codec)
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.delay", d.Retry.Delay)
	v.SetDefault("http.request_timeout", d.HTTP.RequestTimeout)
	v.SetDefault("http.call_timeout", d.HTTP.CallTimeout)
	v.SetDefault("http.enable_http2", d.HTTP.EnableHTTP2)
	v.SetDefault("http.max_idle_conns_per_host", d.HTTP.MaxIdleConnsPerHost)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("logging.encoding", d.Logging.Encoding)
	v.SetDefault("observability.enable_metrics", d.Observability.EnableMetrics)
	v.SetDefault("observability.enable_tracing", d.Observability.EnableTracing)
}

// Marshal renders cfg as YAML
func Marshal(cfg *ConnectorConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}
	return data, nil
}

// Save writes cfg to a YAML file
func Save(filePath string, cfg *ConnectorConfig) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to write config file %s", filePath))
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		content = content[:start] + os.Getenv(varName) + content[end+1:]
	}
	return content
}
