package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a classified pipeline error.
type ErrorCode string

const (
	ErrTimeout            ErrorCode = "timeout"
	ErrRateLimit          ErrorCode = "rate_limit"
	ErrServiceUnavailable ErrorCode = "service_unavailable"
	ErrContextCancelled   ErrorCode = "context_cancelled"
	ErrUnauthorizedAPI    ErrorCode = "unauthorized"
	ErrParseError         ErrorCode = "parse_error"
	ErrEmptyContent       ErrorCode = "empty_content"
	ErrOracleFailed       ErrorCode = "oracle_failed"
	ErrEnrichmentFailed   ErrorCode = "enrichment_failed"
	ErrUploadFailed       ErrorCode = "upload_failed"
	ErrResolutionFailed   ErrorCode = "resolution_failed"
	ErrPublicDomain       ErrorCode = "public_domain"
	ErrFollowUpFailed     ErrorCode = "follow_up_failed"
	ErrNoParticipants     ErrorCode = "no_participants"
	ErrLedgerFailed       ErrorCode = "ledger_failed"
	ErrProcessingError    ErrorCode = "processing_error"
)

// Severity says what a failure does to the run that hit it.
type Severity string

const (
	// SeverityFatal aborts the run; nothing after the failing stage executes.
	SeverityFatal Severity = "fatal"
	// SeverityDegraded is logged and the run continues with less data.
	SeverityDegraded Severity = "degraded"
	// SeverityHalt stops the run cleanly with no side effects.
	SeverityHalt Severity = "halt"
)

// PipelineError is a structured error for pipeline failures.
type PipelineError struct {
	Code     ErrorCode
	Stage    string
	Severity Severity
	Message  string
	Duration time.Duration
	Timeout  time.Duration
	Cause    error
}

func (e *PipelineError) Error() string {
	if e.Timeout > 0 && e.Duration > 0 {
		return fmt.Sprintf("%s: %s timed out after %s (limit: %s)", e.Code, e.Stage, e.Duration.Truncate(time.Millisecond), e.Timeout.Truncate(time.Millisecond))
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// New builds a PipelineError with an explicit code. Severity comes from the
// registry.
func New(code ErrorCode, stage string, cause error) *PipelineError {
	pe := &PipelineError{
		Code:     code,
		Stage:    stage,
		Severity: SeverityOf(code),
		Cause:    cause,
	}
	if cause != nil {
		pe.Message = cause.Error()
	} else {
		pe.Message = GetDescription(code)
	}
	return pe
}

// Degraded classifies err for a stage whose failure must not stop the run.
// A transport-level code (timeout, rate limit, unavailable) wins over fallback
// because it says more about the cause.
func Degraded(err error, stage string, fallback ErrorCode) *PipelineError {
	if err == nil {
		return nil
	}
	pe := ClassifyError(err, stage)
	if pe.Code == ErrProcessingError {
		pe.Code = fallback
	}
	pe.Severity = SeverityDegraded
	return pe
}

// ClassifyError inspects an error and returns a *PipelineError with the appropriate code.
// If the error doesn't match any known pattern, it returns a PipelineError with ErrProcessingError.
func ClassifyError(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	var existing *PipelineError
	if errors.As(err, &existing) {
		return existing
	}

	pe := &PipelineError{
		Stage: stage,
		Cause: err,
	}
	defer func() { pe.Severity = SeverityOf(pe.Code) }()

	if errors.Is(err, context.DeadlineExceeded) {
		pe.Code = ErrTimeout
		pe.Message = "operation timed out"
		return pe
	}

	if errors.Is(err, context.Canceled) {
		pe.Code = ErrContextCancelled
		pe.Message = "operation cancelled"
		return pe
	}

	if errors.Is(err, ErrUnauthorized) {
		pe.Code = ErrUnauthorizedAPI
		pe.Message = err.Error()
		return pe
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	pe.Message = msg

	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		pe.Code = ErrTimeout
	case strings.Contains(lower, "empty content") || strings.Contains(lower, "content is empty") || strings.Contains(lower, "no content"):
		pe.Code = ErrEmptyContent
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests") || strings.Contains(lower, "quota exceeded"):
		pe.Code = ErrRateLimit
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") || strings.Contains(lower, "unauthorized"):
		pe.Code = ErrUnauthorizedAPI
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "unavailable") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "no such host"):
		pe.Code = ErrServiceUnavailable
	default:
		pe.Code = ErrProcessingError
	}
	return pe
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrTimeout
	}
	return false
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Severity == SeverityFatal
	}
	return false
}

// CodeOf returns the code of the first PipelineError in err's chain, or
// ErrProcessingError.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrProcessingError
}

// IsErrorRetryable returns true if the error is likely transient and worth retrying.
// This function checks the error code using the ErrorCodeRegistry.
func IsErrorRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		if info, ok := ErrorCodeRegistry[pe.Code]; ok {
			return info.Retryable
		}
		return false
	}
	return false
}
