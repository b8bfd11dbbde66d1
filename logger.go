package stepdiag

// Logger defines the interface for diagnostics logging.
// The engine uses structured logging with key-value pairs so host
// applications can control how engine logs appear.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Debug("harvested step definitions", "feature", path, "count", n)
//
// This approach is compatible with popular structured logging libraries
// like slog, logrus, zap, and others.
//
// Example implementation using Go's standard log/slog:
//
//	type SlogLogger struct {
//	    logger *slog.Logger
//	}
//
//	func (l *SlogLogger) Debug(msg string, args ...any) {
//	    l.logger.Debug(msg, args...)
//	}
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	// Used for normal run events like feature processing and run completion.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for failures that abort a diagnostic run.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	// Used for conditions that are unusual but do not abort the run,
	// such as a best-effort cleanup failure.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	// Used for detailed diagnostic information such as per-step match results.
	Debug(msg string, args ...any)
}

// NoopLogger discards all log output. It is the default logger when the
// caller does not provide one.
type NoopLogger struct{}

func (NoopLogger) Info(msg string, args ...any)  {}
func (NoopLogger) Error(msg string, args ...any) {}
func (NoopLogger) Warn(msg string, args ...any)  {}
func (NoopLogger) Debug(msg string, args ...any) {}
