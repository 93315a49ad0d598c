package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Model and controller errors
	ErrCodeModelDestroyed        ErrorCode = "MODEL_DESTROYED"
	ErrCodeControllerUnreachable ErrorCode = "CONTROLLER_UNREACHABLE"
	ErrCodeTargetClosed          ErrorCode = "TARGET_CLOSED"

	// Job errors
	ErrCodeJobAlreadyRunning ErrorCode = "JOB_ALREADY_RUNNING"
	ErrCodeWorkloadFailed    ErrorCode = "WORKLOAD_FAILED"
	ErrCodeInterrupted       ErrorCode = "INTERRUPTED"

	// Reference errors
	ErrCodeReclaimed ErrorCode = "RECLAIMED"

	// List model errors
	ErrCodeItemNotFound  ErrorCode = "ITEM_NOT_FOUND"
	ErrCodeDuplicateKey  ErrorCode = "DUPLICATE_KEY"
	ErrCodeItemAttached  ErrorCode = "ITEM_ATTACHED"
	ErrCodeItemDestroyed ErrorCode = "ITEM_DESTROYED"

	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Process errors
	ErrCodeAlreadyWatching ErrorCode = "ALREADY_WATCHING"

	// General errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// CoreError represents a structured error with context
type CoreError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *CoreError) WithDetail(key string, value interface{}) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *CoreError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new CoreError
func New(code ErrorCode, message string) *CoreError {
	return &CoreError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a CoreError
func Wrap(err error, code ErrorCode, message string) *CoreError {
	return &CoreError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific CoreError code
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	coreErr, ok := err.(*CoreError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return coreErr.Code
}
