// Package resilience implements a circuit breaker guarding the
// knowledge backend. Repeated chat-stream failures open the circuit so
// the renderer gets an immediate structured error instead of a hanging
// request while the backend is down.
package resilience
