// Package opencatbusiness is a client for opencat-business, the service that
// validates, builds, sorts and recategorizes bibliographic MARC records.
//
// The service exposes a JSON-over-HTTP API under /api/v1. Every operation is a
// POST whose payload carries records in MarcXchange form. This module wraps
// that API in a typed Go facade with retries, structured errors, timing logs,
// tracing and metrics.
//
// # Key Packages
//
//   - pkg/connector: the facade with one method per service operation
//   - pkg/marc: the record model and the MarcXchange and JSON codecs
//   - pkg/clients: the HTTP transport and its retry policy
//   - pkg/config: YAML and environment configuration
//   - pkg/errors: the error type returned by every call
//   - pkg/metrics: Prometheus instrumentation of calls and attempts
//   - pkg/observability: OpenTelemetry setup and trace propagation
//   - cmd/opencatctl: a command line client
//
// # Quick Start
//
//	cfg, err := config.Load("opencat.yaml")
//	if err != nil {
//	    return err
//	}
//	conn, err := connector.NewFromConfig(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	entries, err := conn.ValidateRecord(ctx, "BCIbog", rec)
//
// # Errors
//
// Calls fail with *errors.Error. Its Type tells transport failures, server
// faults and rejections apart; errors.UserMessage returns the text meant for
// the cataloguer, which for rejections is the service's own message.
//
// # Configuration
//
// Configuration is read from YAML with ${VAR} expansion and can be overridden
// through OPENCAT_BUSINESS_* environment variables:
//
//	base_url: http://opencat-business:8080
//	timing_log_level: INFO
//	retry:
//	  max_attempts: 6
//	  delay: 10s
//
// # Testing
//
// internal/fakeservice provides an in-process stand-in for the service that
// the package tests and `opencatctl serve-fake` run against.
package opencatbusiness
