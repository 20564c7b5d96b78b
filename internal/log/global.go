package log

import (
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

// SetDefaultLogger sets the process-wide default logger.
// The root command installs the configured logger before any subcommand runs.
func SetDefaultLogger(logger *Logger) {
	defaultLogger.Store(logger)
}

// DefaultLogger returns the process-wide default logger,
// lazily installing Default() when none was configured.
func DefaultLogger() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	defaultLogger.CompareAndSwap(nil, Default())
	return defaultLogger.Load()
}

// Or returns l when set, otherwise the process-wide default.
func Or(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return DefaultLogger()
}
