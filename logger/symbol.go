package logger

import (
	"github.com/teranos/cadence/sym"
	"go.uber.org/zap"
)

// Symbol-aware logging helpers.
// These log with the symbol as a structured field, not in the message.
//
// Usage:
//
//	// Instead of:
//	logger.Infow(sym.Pulse + " Job submitted", "job_id", id)
//
//	// Use:
//	logger.PulseInfow("Job submitted", "job_id", id)

// PulseInfow logs an info message with the Pulse symbol (꩜)
func PulseInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, withSymbol(sym.Pulse, keysAndValues)...)
	}
}

// PulseWarnw logs a warning message with the Pulse symbol (꩜)
func PulseWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, withSymbol(sym.Pulse, keysAndValues)...)
	}
}

// PulseErrorw logs an error message with the Pulse symbol (꩜)
func PulseErrorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, withSymbol(sym.Pulse, keysAndValues)...)
	}
}

// AddPulseSymbol returns a logger that tags every entry with the Pulse symbol.
func AddPulseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return OrNop(l).With(FieldSymbol, sym.Pulse)
}

// AddDBSymbol returns a logger that tags every entry with the DB symbol.
func AddDBSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return OrNop(l).With(FieldSymbol, sym.DB)
}

func withSymbol(symbol string, keysAndValues []interface{}) []interface{} {
	return append([]interface{}{FieldSymbol, symbol}, keysAndValues...)
}
