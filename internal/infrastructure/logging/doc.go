// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Subsystems obtain named child loggers via Component, so a single
// configuration governs the whole host while log lines stay
// attributable.
package logging
