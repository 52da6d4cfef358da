// Package core defines the guard error taxonomy.
package core

import "errors"

// ErrorCode represents a typed error code.
type ErrorCode string

const (
	CodeRequestSizeExceeded ErrorCode = "REQUEST_SIZE_EXCEEDED"
	CodeRateLimitExceeded   ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeSecurityThreat      ErrorCode = "SECURITY_THREAT_DETECTED"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeStoreUnavailable    ErrorCode = "STORE_UNAVAILABLE"
	CodeUnknownLimitType    ErrorCode = "UNKNOWN_LIMIT_TYPE"
)

// AppError is a typed application error.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error returns the error message.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap creates a new AppError.
func Wrap(code ErrorCode, msg string, err error) error {
	return &AppError{Code: code, Message: msg, Err: err}
}

// CodeOf returns the ErrorCode for an error.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ErrInvalidInput indicates validation failures.
var ErrInvalidInput = &AppError{Code: CodeInvalidInput, Message: "invalid input"}

// ErrStoreUnavailable indicates the shared counter store is unreachable.
var ErrStoreUnavailable = &AppError{Code: CodeStoreUnavailable, Message: "counter store unavailable"}
