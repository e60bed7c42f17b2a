// Package monitoring provides Prometheus metrics for the browser host:
// tab lifecycle, streaming chat outcomes, IPC traffic, and the HTTP
// surface. Metrics are registered once at startup and shared through
// the session wiring.
package monitoring
