package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryProcessing    ErrorCategory = "processing"
	ErrorCategoryResource      ErrorCategory = "resource"
	ErrorCategoryTimeout       ErrorCategory = "timeout"
)

// Error codes used across the collector pipeline
const (
	ErrorCodeTransientFetch = "TRANSIENT_FETCH"
	ErrorCodePermanentFetch = "PERMANENT_FETCH"
	ErrorCodeCorruptState   = "CORRUPT_STATE"
	ErrorCodeStateIO        = "STATE_IO"
	ErrorCodeSinkWrite      = "SINK_WRITE"
)

// ServiceError represents a standardized error with additional context
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     interface{}   `json:"details,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(details interface{}) *ServiceError {
	e.Details = details
	return e
}

// IsRetryable returns whether the error is retryable
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"details":          e.Details,
		"underlying_error": e.Cause,
	}).Error("Service error occurred")
}

// NewTransientFetchError creates a retryable fetch error for network failures,
// timeouts and server-side (5xx) responses.
func NewTransientFetchError(page int, message string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryNetwork, ErrorCodeTransientFetch, message,
		"PageFetcher", "FetchPage", true, cause).WithDetails(map[string]int{"page": page})
}

// NewPermanentFetchError creates a non-retryable fetch error for client-side
// (4xx, excluding rate-limit) responses and malformed requests.
func NewPermanentFetchError(page int, message string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryValidation, ErrorCodePermanentFetch, message,
		"PageFetcher", "FetchPage", false, cause).WithDetails(map[string]int{"page": page})
}

// NewCorruptStateError indicates the persisted dedup file exists but cannot be
// parsed. Surfaced to the operator; the run must abort before any fetch.
func NewCorruptStateError(path string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryValidation, ErrorCodeCorruptState,
		fmt.Sprintf("processed-set file %s is corrupt and was not discarded", path),
		"DedupStore", "Load", false, cause)
}

// NewStateIOError indicates the persisted dedup file could not be read or written.
func NewStateIOError(operation, path string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryResource, ErrorCodeStateIO,
		fmt.Sprintf("processed-set file %s: %v", path, cause),
		"DedupStore", operation, false, cause)
}

// NewSinkWriteError indicates the tabular output could not be durably written.
func NewSinkWriteError(path string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryResource, ErrorCodeSinkWrite,
		fmt.Sprintf("output file %s: %v", path, cause),
		"RecordSink", "Append", false, cause)
}

// HasErrorCode reports whether err (or any error it wraps) is a ServiceError
// carrying the given code.
func HasErrorCode(err error, code string) bool {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code == code
	}
	return false
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.IsRetryable()
	}

	// Default heuristics for standard errors
	errorMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout", "connection refused", "connection reset",
		"temporary failure", "service unavailable", "too many requests",
		"network", "dns", "socket",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errorMsg, pattern) {
			return true
		}
	}

	return false
}
