package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
const (
	FieldJobID      = "job_id"
	FieldCaseID     = "case_id"
	FieldRunID      = "run_id"
	FieldStage      = "stage"
	FieldTask       = "task"
	FieldState      = "state"
	FieldComponent  = "component"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldErrorCode  = "error_code"
	FieldCount      = "count"
	FieldFile       = "file"
	FieldAddress    = "address"
)

type contextKey string

const (
	jobIDKey  contextKey = "logger_job_id"
	caseIDKey contextKey = "logger_case_id"
)

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithCaseID adds a case ID to the context for logging
func WithCaseID(ctx context.Context, caseID string) context.Context {
	return context.WithValue(ctx, caseIDKey, caseID)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}
	if caseID, ok := ctx.Value(caseIDKey).(string); ok && caseID != "" {
		fields = append(fields, FieldCaseID, caseID)
	}

	return fields
}

// FromContext returns base (or the global logger when base is nil) with the
// context's job and case fields attached.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
