package errors

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// AppError is the unified error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the status the API layer answers with.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an *AppError with the same code. This lets
// callers match on sentinel values such as ErrDeadlock with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" || t == e
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// Sentinels usable with errors.Is. They carry no message so any AppError with
// the same code matches.
var (
	ErrDuplicateRegistration = &AppError{Code: ErrCodeDuplicateRegistration}
	ErrNotFound              = &AppError{Code: ErrCodeNotFound}
	ErrProviderNotFound      = &AppError{Code: ErrCodeProviderNotFound}
	ErrCompositionConflict   = &AppError{Code: ErrCodeCompositionConflict}
	ErrCycleDetected         = &AppError{Code: ErrCodeCycleDetected}
	ErrDeadlock              = &AppError{Code: ErrCodeDeadlock}
	ErrNodeFailed            = &AppError{Code: ErrCodeNodeFailed}
	ErrTypeMismatch          = &AppError{Code: ErrCodeTypeMismatch}
	ErrInvalidInput          = &AppError{Code: ErrCodeInvalidInput}
)

// --- Constructors ---

// DuplicateRegistration reports that kind (node, dependencies, data, provider)
// was already registered under key.
func DuplicateRegistration(kind, key string) *AppError {
	return &AppError{
		Code: ErrCodeDuplicateRegistration, Message: fmt.Sprintf("%s %q is already registered", kind, key),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"kind": kind, "key": key},
	}
}

// NotFound reports a missing resource. Known alternatives, when given, are
// listed in the details so the caller can spot a typo.
func NotFound(resource, key string, known ...string) *AppError {
	details := map[string]any{"resource": resource}
	if key != "" {
		details["key"] = key
	}
	msg := fmt.Sprintf("%s %q not found", resource, key)
	if len(known) > 0 {
		sorted := append([]string(nil), known...)
		sort.Strings(sorted)
		details["known"] = sorted
		msg += fmt.Sprintf(" (known: %s)", strings.Join(sorted, ", "))
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: msg,
		HTTPStatus: http.StatusNotFound, Details: details,
	}
}

// ProviderNotFound reports an unknown pipeline provider name together with
// the registered names.
func ProviderNotFound(name string, known []string) *AppError {
	sorted := append([]string(nil), known...)
	sort.Strings(sorted)
	return &AppError{
		Code:       ErrCodeProviderNotFound,
		Message:    fmt.Sprintf("pipeline provider %q not found (known: %s)", name, strings.Join(sorted, ", ")),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"name": name, "known": sorted},
	}
}

// CompositionConflict reports a build-time conflict while combining pipelines.
func CompositionConflict(reason string) *AppError {
	return &AppError{
		Code: ErrCodeCompositionConflict, Message: reason,
		HTTPStatus: http.StatusConflict,
	}
}

// CycleDetected reports a dependency cycle through the given node keys.
func CycleDetected(nodes []string) *AppError {
	return &AppError{
		Code:       ErrCodeCycleDetected,
		Message:    fmt.Sprintf("dependency cycle among nodes [%s]", strings.Join(nodes, ", ")),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"nodes": nodes},
	}
}

// Deadlock reports that no node is runnable while pending remains non-empty.
func Deadlock(pending []string) *AppError {
	return &AppError{
		Code:       ErrCodeDeadlock,
		Message:    fmt.Sprintf("no runnable nodes, pending: [%s]", strings.Join(pending, ", ")),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"pending": pending},
	}
}

// NodeFailed reports failed nodes; cause is the node error (or a join of them).
func NodeFailed(nodes []string, cause error) *AppError {
	return &AppError{
		Code:       ErrCodeNodeFailed,
		Message:    fmt.Sprintf("node execution failed: [%s]", strings.Join(nodes, ", ")),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"nodes": nodes},
		Cause:      cause,
	}
}

// TypeMismatch reports a stored value whose dynamic type differs from the
// port's declared type.
func TypeMismatch(key string, want, got any) *AppError {
	return &AppError{
		Code:       ErrCodeTypeMismatch,
		Message:    fmt.Sprintf("%s: expected %T, got %T", key, want, got),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"key": key},
	}
}

// Canceled wraps a context cancellation.
func Canceled(cause error) *AppError {
	return &AppError{
		Code: ErrCodeCanceled, Message: "session canceled",
		HTTPStatus: http.StatusRequestTimeout, Cause: cause,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// Storage wraps a storage backend failure for path.
func Storage(op, path string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStorage, Message: fmt.Sprintf("storage %s %q failed", op, path),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"operation": op, "path": path}, Cause: cause,
	}
}

// ServiceUnavailable reports a backend that is temporarily refusing calls.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code: ErrCodeServiceUnavailable, Message: fmt.Sprintf("%s is temporarily unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// Internal creates a new AppError for an unexpected error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError, Cause: cause,
	}
}
