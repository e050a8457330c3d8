package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
// Message is safe to return to callers; Internal carries diagnostic detail
// and is only ever logged.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is treats two AppErrors with the same code as equivalent, so sentinel
// comparisons survive WithInternal / WithMessage copies.
func (e *AppError) Is(target error) bool {
	if e == nil {
		return target == nil
	}

	var other *AppError
	if errors.As(target, &other) && other != nil {
		return e.Code == other.Code
	}
	return false
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Classified errors exposed by the persistence layer.
var (
	// ErrValidation reports bad input. Never persisted, never retried.
	ErrValidation = &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    "Invalid input",
		StatusCode: http.StatusBadRequest,
	}

	// ErrNotFound reports a missing record or backup artifact.
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	// ErrIntegrity reports a backup checksum mismatch.
	ErrIntegrity = &AppError{
		Code:       "INTEGRITY_ERROR",
		Message:    "Backup integrity verification failed",
		StatusCode: http.StatusConflict,
	}

	// ErrStore reports an I/O or store-unavailable condition. Retryable.
	ErrStore = &AppError{
		Code:       "STORE_ERROR",
		Message:    "Storage operation failed",
		StatusCode: http.StatusServiceUnavailable,
	}

	// ErrConfiguration reports invalid retry or runtime parameters,
	// surfaced synchronously before any attempt is made.
	ErrConfiguration = &AppError{
		Code:       "CONFIGURATION_ERROR",
		Message:    "Invalid configuration",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrCancelled reports a caller-initiated cancellation.
	ErrCancelled = &AppError{
		Code:       "CANCELLED",
		Message:    "Operation cancelled",
		StatusCode: 499,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       ErrInternalServer.Code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewValidation wraps a validation failure with a caller-facing message.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       ErrValidation.Code,
		Message:    message,
		StatusCode: ErrValidation.StatusCode,
	}
}

// NewNotFound reports a missing resource by kind and identifier.
func NewNotFound(kind, id string) *AppError {
	return &AppError{
		Code:       ErrNotFound.Code,
		Message:    fmt.Sprintf("%s %s not found", kind, id),
		StatusCode: ErrNotFound.StatusCode,
	}
}

// NewStore wraps a storage failure, keeping the driver error for logging.
func NewStore(err error) *AppError {
	return ErrStore.WithInternal(err)
}

// NewConfiguration reports an invalid parameter set before any work is attempted.
func NewConfiguration(message string) *AppError {
	return &AppError{
		Code:       ErrConfiguration.Code,
		Message:    message,
		StatusCode: ErrConfiguration.StatusCode,
	}
}

// IsRetryable reports whether the error may succeed on a later attempt.
// Only store failures qualify; validation, configuration, not-found and
// integrity failures are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	appErr := FromError(err)
	return appErr.Code == ErrStore.Code || appErr.Code == ErrInternalServer.Code
}
