package log

// Logger is the structured logging interface used across the SDK.
// All components accept a Logger and fall back to a no-op implementation
// when none is provided, so logging never becomes a hard dependency.
type Logger interface {
	// Debug logs a message for low-level debugging.
	// keysAndValues adds structured context (e.g., "gateway", uri).
	Debug(msg string, keysAndValues ...any)
	// Info logs general information about application progress.
	// keysAndValues adds structured context (e.g., "method", name).
	Info(msg string, keysAndValues ...any)
	// Warn logs unexpected situations that are not yet errors.
	// keysAndValues adds structured context (e.g., "attempt", n).
	Warn(msg string, keysAndValues ...any)
	// Error logs a failure that prevents normal operation.
	// keysAndValues adds structured context (e.g., "error", err).
	Error(msg string, keysAndValues ...any)
	// Fatal logs a critical error and may terminate the program.
	Fatal(msg string, keysAndValues ...any)
	// WithKV returns a logger that carries an extra key-value pair on all
	// future log entries. Use to pin persistent context (component, URI).
	WithKV(key string, value any) Logger
	// WithName returns a logger with a component name appended to the
	// logger hierarchy. Use to identify the source of log entries.
	WithName(name string) Logger
	// Name returns the logger's name.
	Name() string
	// AddCallerSkip returns a logger that skips extra stack frames when
	// reporting the log call site. Returns itself if unsupported.
	AddCallerSkip(skip int) Logger
}

// Level represents the severity of a log message and is used to filter
// output based on importance.
type Level string

const (
	// LevelDebug is the most verbose level, used while developing.
	LevelDebug Level = "debug"
	// LevelInfo is used for informational messages.
	LevelInfo Level = "info"
	// LevelWarn flags potential issues.
	LevelWarn Level = "warn"
	// LevelError flags failures.
	LevelError Level = "error"
	// LevelFatal flags unrecoverable failures.
	LevelFatal Level = "fatal"
)
