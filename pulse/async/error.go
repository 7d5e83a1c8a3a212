package async

import (
	"context"
	"strings"

	"github.com/teranos/dealflow/errors"
)

// ErrorCode represents the classification of an error
type ErrorCode string

const (
	ErrorCodeFileNotFound    ErrorCode = "file_not_found"
	ErrorCodeParseError      ErrorCode = "parse_error"
	ErrorCodeNetworkError    ErrorCode = "network_error"
	ErrorCodeDatabaseError   ErrorCode = "database_error"
	ErrorCodeValidationError ErrorCode = "validation_error"
	ErrorCodeAIError         ErrorCode = "ai_error"
	ErrorCodeTimeout         ErrorCode = "timeout"
	ErrorCodeUnknown         ErrorCode = "unknown"
)

// ErrorContext provides structured error information for job failures
type ErrorContext struct {
	Stage     string
	Code      ErrorCode
	Message   string
	Retryable bool
}

// ErrPermanent marks a failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so the worker fails the job without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrPermanent)
}

// ClassifyError categorizes an error based on its identity and message.
func ClassifyError(stage string, err error) ErrorContext {
	if err == nil {
		return ErrorContext{Stage: stage, Code: ErrorCodeUnknown, Message: "unknown error"}
	}

	ec := ErrorContext{Stage: stage, Message: err.Error()}
	lower := strings.ToLower(ec.Message)

	switch {
	case errors.Is(err, ErrPermanent):
		ec.Code = ErrorCodeValidationError
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errors.ErrTimeout) ||
		strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "timed out"):
		ec.Code = ErrorCodeTimeout
		ec.Retryable = true
	case errors.IsInvalidRequestError(err) || strings.Contains(lower, "validation") || strings.Contains(lower, "invalid"):
		ec.Code = ErrorCodeValidationError
	case strings.Contains(lower, "no such file") || strings.Contains(lower, "file not found"):
		ec.Code = ErrorCodeFileNotFound
	case strings.Contains(lower, "parse") || strings.Contains(lower, "unmarshal") || strings.Contains(lower, "malformed"):
		ec.Code = ErrorCodeParseError
	case strings.Contains(lower, "network") || strings.Contains(lower, "connection"):
		ec.Code = ErrorCodeNetworkError
		ec.Retryable = true
	case strings.Contains(lower, "database") || strings.Contains(lower, "sql"):
		ec.Code = ErrorCodeDatabaseError
		ec.Retryable = true
	case strings.Contains(lower, "model") || strings.Contains(lower, "llm") || strings.Contains(lower, "openrouter"):
		ec.Code = ErrorCodeAIError
		ec.Retryable = true
	default:
		ec.Code = ErrorCodeUnknown
	}
	return ec
}
