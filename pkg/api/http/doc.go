// Package http provides the HTTP REST API for serve mode.
//
// The HTTP server exposes endpoints for:
//   - Run submission, listing and cancellation
//   - Status and result queries
//   - Health checks
//   - Prometheus metrics
package http
