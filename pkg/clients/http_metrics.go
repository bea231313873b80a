package clients

import (
	"sync"
	"sync/atomic"
	"time"
)

// AttemptInfo describes one HTTP attempt made by the client.
type AttemptInfo struct {
	Path     string // request path, e.g. /api/v1/validateRecord
	Attempt  int    // 1-based attempt number
	Status   int    // 0 when no response was received
	Err      error  // processing failure, if any
	Elapsed  time.Duration
	Retrying bool // another attempt follows
}

// AttemptObserver is notified after every attempt. Implementations must be
// safe for concurrent use.
type AttemptObserver interface {
	ObserveAttempt(info AttemptInfo)
}

// AttemptStats tracks attempt counts and latencies in memory.
type AttemptStats struct {
	totalAttempts  int64
	retries        int64
	failedAttempts int64
	notFound       int64

	// Latency tracking
	latencySamples []time.Duration
	sampleIndex    int
	sampleCount    int
	maxSamples     int

	mu sync.Mutex
}

// HTTPStats represents HTTP client statistics
type HTTPStats struct {
	TotalAttempts  int64         `json:"total_attempts"`
	Retries        int64         `json:"retries"`
	FailedAttempts int64         `json:"failed_attempts"` // no response received
	NotFound       int64         `json:"not_found"`
	AverageLatency time.Duration `json:"average_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
}

// NewAttemptStats creates a tracker keeping the last 1000 latency samples
func NewAttemptStats() *AttemptStats {
	return &AttemptStats{
		latencySamples: make([]time.Duration, 1000),
		maxSamples:     1000,
	}
}

// ObserveAttempt implements AttemptObserver
func (s *AttemptStats) ObserveAttempt(info AttemptInfo) {
	atomic.AddInt64(&s.totalAttempts, 1)
	if info.Retrying {
		atomic.AddInt64(&s.retries, 1)
	}
	if info.Err != nil {
		atomic.AddInt64(&s.failedAttempts, 1)
	}
	if info.Status == 404 {
		atomic.AddInt64(&s.notFound, 1)
	}

	s.mu.Lock()
	s.latencySamples[s.sampleIndex] = info.Elapsed
	s.sampleIndex = (s.sampleIndex + 1) % s.maxSamples
	if s.sampleCount < s.maxSamples {
		s.sampleCount++
	}
	s.mu.Unlock()
}

// Snapshot returns the current statistics
func (s *AttemptStats) Snapshot() HTTPStats {
	stats := HTTPStats{
		TotalAttempts:  atomic.LoadInt64(&s.totalAttempts),
		Retries:        atomic.LoadInt64(&s.retries),
		FailedAttempts: atomic.LoadInt64(&s.failedAttempts),
		NotFound:       atomic.LoadInt64(&s.notFound),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sampleCount == 0 {
		return stats
	}
	var total time.Duration
	for _, d := range s.latencySamples[:s.sampleCount] {
		total += d
		if d > stats.MaxLatency {
			stats.MaxLatency = d
		}
	}
	stats.AverageLatency = total / time.Duration(s.sampleCount)
	return stats
}
