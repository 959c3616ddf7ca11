package errors

import "fmt"

// ErrorCode represents internal error codes for cache operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors
	ErrCodeInvalidArgument ErrorCode = 1000

	// Store errors
	ErrCodeStoreUnavailable  ErrorCode = 2000
	ErrCodeTransactionFailed ErrorCode = 2001
	ErrCodeSchemaInvalid     ErrorCode = 2002
	ErrCodeInternal          ErrorCode = 2003
)

// CacheError represents a structured error with code and context
type CacheError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *CacheError) WithDetail(key string, value interface{}) *CacheError {
	e.Details[key] = value
	return e
}

// NewCacheError creates a new CacheError
func NewCacheError(code ErrorCode, message string, cause error) *CacheError {
	return &CacheError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *CacheError {
	return NewCacheError(ErrCodeInvalidArgument, message, cause)
}

func StoreUnavailable(message string, cause error) *CacheError {
	return NewCacheError(ErrCodeStoreUnavailable, message, cause)
}

func TransactionFailed(message string, cause error) *CacheError {
	return NewCacheError(ErrCodeTransactionFailed, message, cause)
}

func SchemaInvalid(message string) *CacheError {
	return NewCacheError(ErrCodeSchemaInvalid, message, nil)
}

func InternalError(message string, cause error) *CacheError {
	return NewCacheError(ErrCodeInternal, message, cause)
}

// IsCacheError checks if an error is a CacheError
func IsCacheError(err error) bool {
	_, ok := err.(*CacheError)
	return ok
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if ce, ok := err.(*CacheError); ok {
		return ce.Code
	}
	return ErrCodeInternal
}
