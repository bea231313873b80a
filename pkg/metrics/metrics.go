// Package metrics provides Prometheus instrumentation for the opencat-business
// connector.
//
// # Overview
//
// Observer implements both connector.CallObserver and clients.AttemptObserver
// so one value records whole calls as well as the individual HTTP attempts
// that make them up:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewObserver(reg)
//	conn, err := connector.New(url, connector.WithObserver(m))
//
// # Metrics
//
//	opencat_business_calls_total{operation, outcome}
//	opencat_business_call_duration_seconds{operation}
//	opencat_business_attempts_total{operation, status}
//	opencat_business_retries_total{operation}
//
// outcome is "success" or the error type (transport, server_fault, rejected,
// protocol, encoding, cancelled). status is the HTTP status code, or "error"
// when no response was received.
package metrics

import (
	"path"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DBCDK/opencat-business-connector/pkg/clients"
	"github.com/DBCDK/opencat-business-connector/pkg/connector"
	"github.com/DBCDK/opencat-business-connector/pkg/errors"
)

// Namespace prefixes every metric name.
const Namespace = "opencat_business"

// OutcomeSuccess labels calls that returned without error.
const OutcomeSuccess = "success"

// Observer records connector calls and transport attempts.
type Observer struct {
	calls    *prometheus.CounterVec   // finished calls by outcome
	duration *prometheus.HistogramVec // call latency including retries
	attempts *prometheus.CounterVec   // HTTP attempts by status
	retries  *prometheus.CounterVec   // attempts followed by another one
}

// DurationBuckets spans fast answers up to a fully spent default retry budget.
var DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 90}

// NewObserver creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewObserver(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)
	return &Observer{
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "calls_total",
				Help:      "Total number of connector calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "call_duration_seconds",
				Help:      "Connector call duration in seconds, retries included",
				Buckets:   DurationBuckets,
			},
			[]string{"operation"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "attempts_total",
				Help:      "Total number of HTTP attempts by operation and status",
			},
			[]string{"operation", "status"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "retries_total",
				Help:      "Total number of attempts that were retried",
			},
			[]string{"operation"},
		),
	}
}

// ObserveCall implements connector.CallObserver
func (o *Observer) ObserveCall(info connector.CallInfo) {
	op := info.Operation.String()
	o.calls.WithLabelValues(op, Outcome(info.Err)).Inc()
	o.duration.WithLabelValues(op).Observe(info.Elapsed.Seconds())
}

// ObserveAttempt implements clients.AttemptObserver
func (o *Observer) ObserveAttempt(info clients.AttemptInfo) {
	op := path.Base(info.Path)
	status := "error"
	if info.Err == nil && info.Status != 0 {
		status = strconv.Itoa(info.Status)
	}
	o.attempts.WithLabelValues(op, status).Inc()
	if info.Retrying {
		o.retries.WithLabelValues(op).Inc()
	}
}

// Outcome labels err: "success" for nil, otherwise the connector error type.
// Errors of other origin are labelled "unknown".
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	for _, t := range []errors.ErrorType{
		errors.ErrorTypeTransport,
		errors.ErrorTypeServerFault,
		errors.ErrorTypeRejected,
		errors.ErrorTypeProtocol,
		errors.ErrorTypeEncoding,
		errors.ErrorTypeConfig,
		errors.ErrorTypeCancelled,
	} {
		if errors.IsType(err, t) {
			return string(t)
		}
	}
	return "unknown"
}

// Describe implements prometheus.Collector, for observers created with a nil
// registerer and registered later.
func (o *Observer) Describe(ch chan<- *prometheus.Desc) {
	o.calls.Describe(ch)
	o.duration.Describe(ch)
	o.attempts.Describe(ch)
	o.retries.Describe(ch)
}

// Collect implements prometheus.Collector
func (o *Observer) Collect(ch chan<- prometheus.Metric) {
	o.calls.Collect(ch)
	o.duration.Collect(ch)
	o.attempts.Collect(ch)
	o.retries.Collect(ch)
}

var (
	_ prometheus.Collector    = (*Observer)(nil)
	_ connector.CallObserver  = (*Observer)(nil)
	_ clients.AttemptObserver = (*Observer)(nil)
)
