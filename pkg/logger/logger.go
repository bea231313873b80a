// Package logger provides structured logging for the opencat-business connector
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// Config represents logger configuration
type Config struct {
	Level       string
	Development bool
	Encoding    string // json or console
	OutputPaths []string
}

// TimingLevel is the severity at which per-call timing lines are written.
type TimingLevel string

const (
	TimingTrace TimingLevel = "TRACE"
	TimingDebug TimingLevel = "DEBUG"
	TimingInfo  TimingLevel = "INFO"
	TimingWarn  TimingLevel = "WARN"
	TimingError TimingLevel = "ERROR"
)

// ParseTimingLevel parses a case-insensitive timing level name. An empty
// string yields TimingInfo.
func ParseTimingLevel(s string) (TimingLevel, error) {
	switch TimingLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case "", TimingInfo:
		return TimingInfo, nil
	case TimingTrace:
		return TimingTrace, nil
	case TimingDebug:
		return TimingDebug, nil
	case TimingWarn:
		return TimingWarn, nil
	case TimingError:
		return TimingError, nil
	default:
		return "", fmt.Errorf("invalid timing log level %q (want TRACE, DEBUG, INFO, WARN or ERROR)", s)
	}
}

// ZapLevel maps the timing level onto zap. zap has no trace level, so TRACE
// shares the debug level. Unknown values fall back to info.
func (l TimingLevel) ZapLevel() zapcore.Level {
	switch l {
	case TimingTrace, TimingDebug:
		return zapcore.DebugLevel
	case TimingWarn:
		return zapcore.WarnLevel
	case TimingError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a zap logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.Development {
		logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return logger, nil
}

// Init initializes the global logger
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		globalLogger, err = New(cfg)
	})
	return err
}

// Get returns the global logger
func Get() *zap.Logger {
	if globalLogger == nil {
		if err := Init(Config{Level: "info", Encoding: "json"}); err != nil || globalLogger == nil {
			globalLogger = zap.NewNop()
		}
	}
	return globalLogger
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Sync flushes any buffered log entries
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
