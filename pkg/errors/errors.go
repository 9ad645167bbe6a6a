package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"

	// Elevation session errors
	ErrElevation     ErrorCode = "ELEVATION"
	ErrNotActive     ErrorCode = "NOT_ACTIVE"
	ErrWorkerTimeout ErrorCode = "WORKER_TIMEOUT"
	ErrAbandoned     ErrorCode = "ABANDONED"
	ErrSessionClosed ErrorCode = "SESSION_CLOSED"

	// IPC errors
	ErrChannel  ErrorCode = "CHANNEL"
	ErrProtocol ErrorCode = "PROTOCOL"

	// Link errors
	ErrSymlinkCreate ErrorCode = "SYMLINK_CREATE"
	ErrSymlinkRemove ErrorCode = "SYMLINK_REMOVE"
	ErrDeploy        ErrorCode = "DEPLOY"
)

// ElevlinkError represents a structured error with code and details
type ElevlinkError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *ElevlinkError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *ElevlinkError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *ElevlinkError) Is(target error) bool {
	var targetErr *ElevlinkError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new ElevlinkError with the given code and message
func New(code ErrorCode, message string) *ElevlinkError {
	return &ElevlinkError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new ElevlinkError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *ElevlinkError {
	return &ElevlinkError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with an ElevlinkError
func Wrap(err error, code ErrorCode, message string) *ElevlinkError {
	if err == nil {
		return nil
	}
	return &ElevlinkError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *ElevlinkError {
	if err == nil {
		return nil
	}
	return &ElevlinkError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *ElevlinkError) WithDetail(key string, value interface{}) *ElevlinkError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var elErr *ElevlinkError
	if errors.As(err, &elErr) {
		return elErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not an ElevlinkError
func GetErrorCode(err error) ErrorCode {
	var elErr *ElevlinkError
	if errors.As(err, &elErr) {
		return elErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not an ElevlinkError
func GetErrorDetails(err error) map[string]interface{} {
	var elErr *ElevlinkError
	if errors.As(err, &elErr) {
		return elErr.Details
	}
	return nil
}
