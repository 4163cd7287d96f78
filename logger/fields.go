package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across cadence.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity
	FieldJobID       = "job_id"
	FieldExecutionID = "execution_id"
	FieldHandler     = "handler"

	// Components
	FieldComponent = "component"

	// Scheduling
	FieldTrigger     = "trigger"
	FieldRunTime     = "run_time"
	FieldNextRunTime = "next_run_time"
	FieldLateBy      = "late_by"
	FieldInstances   = "instances"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldWait       = "wait"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount = "count"

	// Status
	FieldStatus = "status"
	FieldState  = "state"

	// Storage
	FieldPath    = "path"
	FieldDialect = "dialect"

	// cadence-specific
	FieldSymbol = "symbol" // subsystem glyph (꩜, ✿, ❀, etc.)
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type WorkerPool struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewWorkerPool() *WorkerPool {
//	    return &WorkerPool{
//	        logger: logger.ComponentLogger("pulse.worker"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}
