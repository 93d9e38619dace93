// Package config assembles the runtime configuration from three layers:
// an optional YAML profile, MATRIX_STREAMER_* environment variables and
// command-line flags, in increasing order of precedence. Custom attributes
// accumulate across layers instead of replacing each other.
//
// OpenTelemetry exporter settings come from the standard OTEL_* variables
// (see OTELConfig).
package config
