// Package observability provides an OpenTelemetry metrics extension for
// Chalk. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for event appends, bus publishes, message
// enqueues, completions, failures, dead letter transfers, and schedule
// fires.
//
// For per-message tracing and latency metrics, see the middleware
// package: middleware.Tracing() and middleware.Metrics().
package observability
