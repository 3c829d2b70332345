package errors

// Category is the error category used for logging and handling decisions.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryAuth       Category = "auth"
	CategoryTimeout    Category = "timeout"
	CategoryStorage    Category = "storage"
	CategoryIO         Category = "io"
	CategoryProvider   Category = "provider"
	CategoryValidation Category = "validation"
	CategoryInternal   Category = "internal"
)

// Severity is the error severity level.
type Severity string

const (
	// SeverityWarn: log and skip the current item, keep going.
	SeverityWarn Severity = "warn"
	// SeverityError: fail the requested operation.
	SeverityError Severity = "error"
	// SeverityFatal: abort the whole run.
	SeverityFatal Severity = "fatal"
)

// Error codes. Handlers switch on these; categories and severities are
// derived from them.
const (
	// ErrCodeConfig: store or provider not configured for the requested
	// operation.
	ErrCodeConfig = "ERR_CONFIG"

	// ErrCodeAuth: remote provider rejected the credentials. Sticky on the
	// provider until it is replaced; halts an in-flight indexing run.
	ErrCodeAuth = "ERR_AUTH"

	// ErrCodeProviderState: provider used after a sticky auth failure.
	// Fails immediately, no network call is made.
	ErrCodeProviderState = "ERR_PROVIDER_STATE"

	// ErrCodeProvider: upstream embedding failure other than auth.
	ErrCodeProvider = "ERR_PROVIDER"

	// ErrCodeTimeout: embedding generation exceeded the caller's deadline.
	ErrCodeTimeout = "ERR_TIMEOUT"

	// ErrCodeDimension: vector width disagrees with the width the store
	// was opened with.
	ErrCodeDimension = "ERR_DIMENSION"

	// ErrCodeIO: reading a source document failed. The document is
	// skipped and the indexing run continues.
	ErrCodeIO = "ERR_IO"

	// ErrCodeInvalidInput: caller supplied an invalid argument.
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"

	// ErrCodeInternal: unexpected internal failure.
	ErrCodeInternal = "ERR_INTERNAL"
)

// categoryFromCode maps an error code to its category.
func categoryFromCode(code string) Category {
	switch code {
	case ErrCodeConfig:
		return CategoryConfig
	case ErrCodeAuth:
		return CategoryAuth
	case ErrCodeProviderState, ErrCodeProvider:
		return CategoryProvider
	case ErrCodeTimeout:
		return CategoryTimeout
	case ErrCodeDimension:
		return CategoryStorage
	case ErrCodeIO:
		return CategoryIO
	case ErrCodeInvalidInput:
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode maps an error code to its default severity.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeAuth:
		return SeverityFatal
	case ErrCodeIO, ErrCodeDimension:
		return SeverityWarn
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether an operation failing with this code may
// be retried as-is.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTimeout, ErrCodeProvider:
		return true
	default:
		return false
	}
}
