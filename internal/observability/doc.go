// Package observability provides structured logging and metrics for the
// chat gateway.
//
// This package implements:
//   - Logger construction (zap-based, JSON or console encoding)
//   - Prometheus collectors for provider attempts, fallbacks and streams
//
// The fallback orchestrator and the chat session report through the
// Metrics interface so tests can run against NopMetrics.
package observability
