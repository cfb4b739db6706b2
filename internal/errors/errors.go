package errors

import (
	"errors"
	"fmt"
)

// SearchError is the structured error type for multisearch.
// It carries enough context for logging, CLI presentation and recovery decisions.
type SearchError struct {
	// Code is the unique error code (e.g., "ERR_205_CORRUPT_INDEX").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("[%s]", e.Code)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SearchError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is works against the package sentinels.
func (e *SearchError) Is(target error) bool {
	if t, ok := target.(*SearchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *SearchError) WithDetail(key, value string) *SearchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *SearchError) WithSuggestion(suggestion string) *SearchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SearchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SearchError {
	return &SearchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SearchError from an existing error.
func Wrap(code string, err error) *SearchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SearchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError reports a source document that could not be read.
func IOError(path string, cause error) *SearchError {
	return New(ErrCodeSourceUnreadable, fmt.Sprintf("cannot read %s", path), cause).
		WithDetail("path", path)
}

// ModelUnavailable reports an embedding model that cannot be loaded or reached.
func ModelUnavailable(model string, cause error) *SearchError {
	return New(ErrCodeModelUnavailable, fmt.Sprintf("embedding model %q unavailable", model), cause).
		WithDetail("model", model).
		WithSuggestion("Start the embedding backend (e.g. `ollama serve`) or set embeddings.provider: static")
}

// IndexCorruption reports a persisted index that failed its integrity check on open.
func IndexCorruption(component, path string, cause error) *SearchError {
	return New(ErrCodeCorruptIndex, fmt.Sprintf("%s index at %s failed integrity check", component, path), cause).
		WithDetail("component", component).
		WithDetail("path", path).
		WithSuggestion("Run `multisearch rebuild` to re-create the index from source documents")
}

// QueryTimeout reports a query whose sub-searches all missed the deadline.
func QueryTimeout(cause error) *SearchError {
	return New(ErrCodeQueryTimeout, "query timed out before any retrieval mode returned", cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *SearchError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SearchError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a SearchError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
