package common

import "errors"

// Error codes shared across HTTP boundaries. Each code has a canonical HTTP
// status assigned where the AppError is constructed.
const (
	CodeValidation      = "VALIDATION"
	CodeConfigMissing   = "CONFIG_MISSING"
	CodeUpstreamError   = "UPSTREAM_ERROR"
	CodeUpstreamTimeout = "UPSTREAM_TIMEOUT"
	CodeInvalidSig      = "INVALID_SIGNATURE"
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeNotFound        = "NOT_FOUND"
)

// AppError carries an error code and the HTTP status it should surface as.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// AsAppError extracts an AppError from the chain, if present.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
