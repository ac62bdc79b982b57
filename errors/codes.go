package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Registration and lookup errors
const (
	// ErrCodeDuplicateRegistration indicates a node, dependency set, data key
	// or provider was registered twice.
	ErrCodeDuplicateRegistration ErrorCode = "DUPLICATE_REGISTRATION"
	// ErrCodeNotFound indicates a lookup for something never registered.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeProviderNotFound indicates an unknown pipeline provider name.
	ErrCodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
)

// Build-time errors
const (
	// ErrCodeCompositionConflict indicates colliding ports or node keys while
	// combining pipelines.
	ErrCodeCompositionConflict ErrorCode = "COMPOSITION_CONFLICT"
	// ErrCodeCycleDetected indicates wiring that closes a dependency cycle.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
)

// Run-time errors
const (
	// ErrCodeDeadlock indicates no node can run while some are still pending.
	ErrCodeDeadlock ErrorCode = "DEADLOCK"
	// ErrCodeNodeFailed indicates one or more node executables returned an error.
	ErrCodeNodeFailed ErrorCode = "NODE_FAILED"
	// ErrCodeTypeMismatch indicates a stored value has a different type than
	// the port expects.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"
	// ErrCodeCanceled indicates the session context was canceled.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Infrastructure errors
const (
	// ErrCodeStorage indicates a storage backend failure.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"
	// ErrCodeServiceUnavailable indicates a backend is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeStorage:            true,
	ErrCodeServiceUnavailable: true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
