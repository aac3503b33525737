// Package observability provides structured logging and Prometheus metrics.
//
// # Overview
//
// Logger wraps log/slog with a JSON handler and field-chaining helpers
// (WithField, WithFields, WithError). FromContext annotates a logger with the
// request ID and user ID carried in the request context.
//
// Metrics registers counters and histograms for HTTP traffic, rate-limit
// decisions, stage short-circuits, and user operations on a dedicated
// prometheus.Registry exposed via Handler().
package observability
