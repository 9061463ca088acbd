package types

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Registration and lookup errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeNodeNotFound ErrorCode = "NODE_NOT_FOUND"
	ErrCodeNodeExists   ErrorCode = "NODE_EXISTS"

	// Subscriber errors (internal, never surfaced as caller errors)
	ErrCodeSubscriberLagging ErrorCode = "SUBSCRIBER_LAGGING"
	ErrCodeSubscriberClosed  ErrorCode = "SUBSCRIBER_CLOSED"

	// Storage related errors
	ErrCodeStorageError   ErrorCode = "STORAGE_ERROR"
	ErrCodeStorageTimeout ErrorCode = "STORAGE_TIMEOUT"

	// Advisory pipeline errors
	ErrCodeValidationUnavailable ErrorCode = "VALIDATION_SERVICE_UNAVAILABLE"

	// Serialization related errors
	ErrCodeSerializationError   ErrorCode = "SERIALIZATION_ERROR"
	ErrCodeDeserializationError ErrorCode = "DESERIALIZATION_ERROR"
	ErrCodeCompressionError     ErrorCode = "COMPRESSION_ERROR"

	// Configuration and system errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
	ErrCodeSystemError   ErrorCode = "SYSTEM_ERROR"
)

// HubError represents a structured error with a machine-readable code
type HubError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

// NewHubError creates a new HubError
func NewHubError(code ErrorCode, message string) *HubError {
	return &HubError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHubErrorWithCause creates a new HubError wrapping a cause
func NewHubErrorWithCause(code ErrorCode, message string, cause error) *HubError {
	err := NewHubError(code, message)
	err.Cause = cause
	return err
}

// WithDetail adds a detail to the error
func (e *HubError) WithDetail(key string, value interface{}) *HubError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Error implements the error interface
func (e *HubError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *HubError) Unwrap() error {
	return e.Cause
}

// IsCode checks if this error is of a specific code
func (e *HubError) IsCode(code ErrorCode) bool {
	return e.Code == code
}

// Is implements errors.Is comparison by code
func (e *HubError) Is(target error) bool {
	if he, ok := target.(*HubError); ok {
		return e.Code == he.Code
	}
	return false
}

// IsRetryable returns true if the error is retryable
func (e *HubError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeStorageTimeout, ErrCodeValidationUnavailable, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

// Common error constructors

// ErrValidation creates a validation error naming the offending field
func ErrValidation(field, reason string) *HubError {
	return NewHubError(ErrCodeValidation, "invalid registration input").
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// ErrNodeNotFound creates a node not found error
func ErrNodeNotFound(nodeID NodeID) *HubError {
	return NewHubError(ErrCodeNodeNotFound, "node not found").WithDetail("node_id", nodeID)
}

// ErrStorage creates a storage error
func ErrStorage(operation string, cause error) *HubError {
	return NewHubErrorWithCause(ErrCodeStorageError, fmt.Sprintf("storage operation failed: %s", operation), cause)
}

// ErrValidationUnavailable creates an advisory-service failure error
func ErrValidationUnavailable(stage string, cause error) *HubError {
	return NewHubErrorWithCause(ErrCodeValidationUnavailable, "validation service unavailable", cause).
		WithDetail("stage", stage)
}

// ErrSerialization creates a serialization error
func ErrSerialization(format string, cause error) *HubError {
	return NewHubErrorWithCause(ErrCodeSerializationError, fmt.Sprintf("serialization failed for format: %s", format), cause).
		WithDetail("format", format)
}

// ErrDeserialization creates a deserialization error
func ErrDeserialization(format string, cause error) *HubError {
	return NewHubErrorWithCause(ErrCodeDeserializationError, fmt.Sprintf("deserialization failed for format: %s", format), cause).
		WithDetail("format", format)
}

// ErrCompression creates a compression error
func ErrCompression(algorithm string, cause error) *HubError {
	return NewHubErrorWithCause(ErrCodeCompressionError, fmt.Sprintf("compression failed for algorithm: %s", algorithm), cause).
		WithDetail("algorithm", algorithm)
}

// ErrDecompression creates a decompression error
func ErrDecompression(algorithm string, cause error) *HubError {
	return NewHubErrorWithCause(ErrCodeCompressionError, fmt.Sprintf("decompression failed for algorithm: %s", algorithm), cause).
		WithDetail("algorithm", algorithm)
}

// ErrorCollector collects multiple errors
type ErrorCollector struct {
	Errors []error
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{Errors: make([]error, 0)}
}

// Add adds an error to the collector
func (ec *ErrorCollector) Add(err error) {
	if err != nil {
		ec.Errors = append(ec.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	return len(ec.Errors) > 0
}

// Error returns a combined error message
func (ec *ErrorCollector) Error() string {
	if !ec.HasErrors() {
		return ""
	}
	if len(ec.Errors) == 1 {
		return ec.Errors[0].Error()
	}
	result := fmt.Sprintf("multiple errors (%d):", len(ec.Errors))
	for i, err := range ec.Errors {
		result += fmt.Sprintf("\n  %d: %v", i+1, err)
	}
	return result
}

// ToError returns the collected errors as a single error, or nil if no errors
func (ec *ErrorCollector) ToError() error {
	if !ec.HasErrors() {
		return nil
	}
	return ec
}
