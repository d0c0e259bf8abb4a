// Package errors provides coded errors for the Soma offline core.
// Codes cross the process boundary unchanged (REST responses, WebSocket
// events, CLI output), so UI clients can branch on them without parsing
// message text.
package errors

import "fmt"

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Store errors
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrStoreQuery       ErrorCode = "STORE_QUERY_FAILED"

	// Remote backend errors
	ErrRemoteUnreachable ErrorCode = "REMOTE_UNREACHABLE"
	ErrRemoteRejected    ErrorCode = "REMOTE_REJECTED"

	// Sync errors
	ErrSyncFailed       ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress   ErrorCode = "SYNC_IN_PROGRESS"
	ErrUnknownOperation ErrorCode = "UNKNOWN_OPERATION"
)

// AppError is an error with an attached code.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code, unwrapping as needed.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// CodeOf returns the code carried by err, walking the unwrap chain. Errors
// without a code map to ErrInternal.
func CodeOf(err error) ErrorCode {
	for e := err; e != nil; {
		if appErr, ok := e.(*AppError); ok {
			return appErr.Code
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	if err == nil {
		return ""
	}
	return ErrInternal
}
