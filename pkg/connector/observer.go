package connector

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DBCDK/opencat-business-connector/pkg/logger"
)

// CallInfo describes one finished facade call, retries included.
type CallInfo struct {
	Operation Operation
	Elapsed   time.Duration
	// Attempts is zero when the call failed before any request was sent.
	Attempts int
	Err      error
}

// CallObserver is notified once per facade call, on every exit path.
// Implementations must be safe for concurrent use.
type CallObserver interface {
	ObserveCall(info CallInfo)
}

// CallObserverFunc adapts a function to CallObserver.
type CallObserverFunc func(info CallInfo)

// ObserveCall calls f(info).
func (f CallObserverFunc) ObserveCall(info CallInfo) {
	f(info)
}

// TimingObserver writes the "<operation> took N milliseconds" line.
type TimingObserver struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewTimingObserver creates a timing observer writing at the given level.
func NewTimingObserver(log *zap.Logger, level logger.TimingLevel) *TimingObserver {
	return &TimingObserver{
		logger: logger.OrNop(log),
		level:  level.ZapLevel(),
	}
}

// ObserveCall implements CallObserver
func (o *TimingObserver) ObserveCall(info CallInfo) {
	ms := info.Elapsed.Milliseconds()
	ce := o.logger.Check(o.level, fmt.Sprintf("%s took %d milliseconds", info.Operation, ms))
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.String("operation", info.Operation.String()),
		zap.Int64("elapsed_ms", ms),
	}
	if info.Attempts > 0 {
		fields = append(fields, zap.Int("attempts", info.Attempts))
	}
	if info.Err != nil {
		fields = append(fields, zap.Error(info.Err))
	}
	ce.Write(fields...)
}
