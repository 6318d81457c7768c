package telemetry

import "context"

// NoopLogger discards all log messages.
type NoopLogger struct{}

// NewNoopLogger constructs a Logger that discards all log messages. Use for
// tests or when logging is not configured.
func NewNoopLogger() Logger { return NoopLogger{} }

// Debug discards the log message.
func (NoopLogger) Debug(context.Context, string, ...any) {}

// Info discards the log message.
func (NoopLogger) Info(context.Context, string, ...any) {}

// Warn discards the log message.
func (NoopLogger) Warn(context.Context, string, ...any) {}

// Error discards the log message.
func (NoopLogger) Error(context.Context, string, ...any) {}
