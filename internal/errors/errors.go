package errors

import (
	"fmt"
)

// Error is the structured error type used throughout lodestar.
// It carries enough context for handling decisions, logging, and user
// presentation.
type Error struct {
	// Code is the unique error code (e.g., "ERR_AUTH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (config, auth, provider, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works across wrap layers.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates an Error with the given code and message.
// Category, severity, and the retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The wrapped error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfig, message, cause)
}

// AuthError creates an authentication error.
// Auth errors are fatal: an indexing run stops when one surfaces.
func AuthError(message string, cause error) *Error {
	return New(ErrCodeAuth, message, cause)
}

// TimeoutError creates a timeout error. Timeouts are retryable.
func TimeoutError(message string, cause error) *Error {
	return New(ErrCodeTimeout, message, cause)
}

// ProviderError creates an embedding-provider error. Retryable.
func ProviderError(message string, cause error) *Error {
	return New(ErrCodeProvider, message, cause)
}

// ProviderStateError creates an invalid-provider-state error, raised when
// a provider is used after a sticky auth failure.
func ProviderStateError(message string) *Error {
	return New(ErrCodeProviderState, message, nil)
}

// DimensionError creates a dimension-mismatch error carrying both widths.
func DimensionError(expected, got int) *Error {
	return New(ErrCodeDimension,
		fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprintf("%d", expected)).
		WithDetail("got", fmt.Sprintf("%d", got))
}

// IOError creates an I/O error for a source document read failure.
func IOError(message string, cause error) *Error {
	return New(ErrCodeIO, message, cause)
}

// ValidationError creates an invalid-input error.
func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := err.(*Error); ok {
		return le.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := err.(*Error); ok {
		return le.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code. Returns empty string for foreign errors.
func GetCode(err error) string {
	if le, ok := err.(*Error); ok {
		return le.Code
	}
	return ""
}

// GetCategory extracts the category. Returns empty string for foreign errors.
func GetCategory(err error) Category {
	if le, ok := err.(*Error); ok {
		return le.Category
	}
	return ""
}
