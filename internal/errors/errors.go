package errors

import "fmt"

// ErrorCode represents a quotemap error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"  // 404
	ErrBatchTooLarge  ErrorCode = "BATCH_TOO_LARGE" // 413
	ErrCancelled      ErrorCode = "CANCELLED"       // 499
	ErrStorage        ErrorCode = "STORAGE_FAILURE" // 502
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// Error represents a structured error with code, status, and details.
// It is the only error shape that crosses the worker and MCP boundaries.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for malformed payloads.
func NewInvalidRequest(msg string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidField creates a 400 error naming the offending field.
func NewInvalidField(field, msg string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: fmt.Sprintf("%s: %s", field, msg),
		Details: map[string]any{"field": field},
	}
}

// NewNotFound creates a 404 error for a missing dataset or post.
func NewNotFound(kind, identifier string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *Error {
	return &Error{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewBatchTooLarge creates a 413 error when a batch exceeds the configured limit.
func NewBatchTooLarge(max, actual int) *Error {
	return &Error{
		Code:    ErrBatchTooLarge,
		Status:  413,
		Message: fmt.Sprintf("batch exceeds maximum size: %d posts (max %d)", actual, max),
		Details: map[string]any{"max_posts": max, "actual_posts": actual},
	}
}

// NewCancelled creates an error for an operation stopped by its context.
func NewCancelled(op string) *Error {
	return &Error{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewStorage wraps a failure reported by the storage collaborator.
func NewStorage(err error) *Error {
	msg := "storage failure"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrStorage,
		Status:  502,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	if qErr, ok := err.(*Error); ok {
		return qErr.Code == code
	}
	return false
}
