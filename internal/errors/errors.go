package errors

import (
	"fmt"
)

// SearchdError is the structured error type for localsearchd.
// It carries the context needed for log correlation and for the
// Orchestrator's fallback decisions (Retryable/Category), without ever
// being presented directly to an end user — there is no CLI surface here.
type SearchdError struct {
	Code      string
	Message   string
	Category  Category
	Severity  Severity
	Details   map[string]string
	Cause     error
	Retryable bool
}

func (e *SearchdError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SearchdError) Unwrap() error {
	return e.Cause
}

// Is enables errors.Is() to match SearchdError by code.
func (e *SearchdError) Is(target error) bool {
	if t, ok := target.(*SearchdError); ok {
		return e.Code == t.Code
	}
	return false
}

func (e *SearchdError) WithDetail(key, value string) *SearchdError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new SearchdError. Category, severity, and retryable are
// derived from the code.
func New(code string, message string, cause error) *SearchdError {
	return &SearchdError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SearchdError from an existing error.
func Wrap(code string, err error) *SearchdError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func ConfigError(message string, cause error) *SearchdError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ExtractError represents a per-file parse failure (§7 "Parse error").
func ExtractError(path string, cause error) *SearchdError {
	return New(ErrCodeExtractFailed, "failed to extract content", cause).WithDetail("path", path)
}

// IOError represents a per-path I/O failure during a walk or mtime read.
func IOError(path string, cause error) *SearchdError {
	return New(ErrCodeFileNotFound, "I/O error", cause).WithDetail("path", path)
}

// ReconciliationError represents a crawl-level reconciliation setup failure
// that forces the Orchestrator to fall back to a full crawl.
func ReconciliationError(cause error) *SearchdError {
	return New(ErrCodeReconciliationFailed, "reconciliation failed", cause)
}

// IndexWriteError represents a storage write failure during orphan deletion.
func IndexWriteError(cause error) *SearchdError {
	return New(ErrCodeIndexWriteFailed, "index write failed", cause)
}

// QueryParseError represents a caller-facing query syntax error.
func QueryParseError(message string, position int) *SearchdError {
	return New(ErrCodeQueryParse, message, nil).WithDetail("position", fmt.Sprintf("%d", position))
}

// FilterValidationError represents a caller-facing filter validation error.
func FilterValidationError(message string) *SearchdError {
	return New(ErrCodeFilterValidation, message, nil)
}

func InternalError(message string, cause error) *SearchdError {
	return New(ErrCodeInternal, message, cause)
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SearchdError); ok {
		return se.Retryable
	}
	return false
}

func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SearchdError); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

func GetCode(err error) string {
	if se, ok := err.(*SearchdError); ok {
		return se.Code
	}
	return ""
}

func GetCategory(err error) Category {
	if se, ok := err.(*SearchdError); ok {
		return se.Category
	}
	return ""
}
