// Package config provides configuration for the opencat-business connector.
//
// # Key Features
//
// - ConnectorConfig: a single structure with retry, http, logging and observability sections
// - Environment variable substitution with ${VAR_NAME} syntax in YAML files
// - Environment overrides prefixed OPENCAT_BUSINESS_ (OPENCAT_BUSINESS_URL for the base URL)
// - Defaults and validation
//
// # Usage
//
//	cfg, err := config.Load("opencat.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// A file only needs the fields that differ from the defaults:
//
//	base_url: ${OPENCAT_BUSINESS_HOST}/opencat-business
//	timing_log_level: DEBUG
//	retry:
//	  max_attempts: 3
//	  delay: 2s
//
// # Defaults
//
// retry.max_attempts is 6 attempts in total with a fixed 10s delay between
// them. A max_attempts of 1 disables retries. Each attempt is bounded by
// http.request_timeout (30s); http.call_timeout bounds the whole call and is
// off by default.
package config
