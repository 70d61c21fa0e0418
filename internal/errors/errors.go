package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a nounimaging error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrRunInProgress      ErrorCode = "RUN_IN_PROGRESS"     // 409
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE" // 502
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// ImagingError represents a structured error with code, status, and details.
type ImagingError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *ImagingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *ImagingError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ImagingError {
	return &ImagingError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a noun cannot be found.
func NewNotFound(identifier string) *ImagingError {
	return &ImagingError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("noun not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewRunInProgress creates a 409 error when a reconciliation run already
// holds the namespace.
func NewRunInProgress(namespace string) *ImagingError {
	return &ImagingError{
		Code:    ErrRunInProgress,
		Status:  409,
		Message: fmt.Sprintf("a reconciliation run is already active for namespace %q", namespace),
		Details: map[string]any{"namespace": namespace},
	}
}

// NewStorageUnavailable creates a 502 error for failures talking to the
// object store during bulk prerequisite steps.
func NewStorageUnavailable(op string, err error) *ImagingError {
	msg := op + " failed"
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", op, err)
	}
	return &ImagingError{
		Code:    ErrStorageUnavailable,
		Status:  502,
		Message: msg,
		Details: map[string]any{"operation": op},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ImagingError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ImagingError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is an ImagingError with the given code.
func Is(err error, code ErrorCode) bool {
	var iErr *ImagingError
	if stderrors.As(err, &iErr) {
		return iErr.Code == code
	}
	return false
}

// As returns the ImagingError in err's chain, if any.
func As(err error) (*ImagingError, bool) {
	var iErr *ImagingError
	if stderrors.As(err, &iErr) {
		return iErr, true
	}
	return nil, false
}
