// Package errors defines custom error types and error handling utilities for the keytrust service.
// Every error carries a stable machine code and the HTTP status it maps to.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine readable error identifier
type ErrorCode string

const (
	CodeInvalidRequest        ErrorCode = "invalid_request"
	CodeUnauthenticated       ErrorCode = "unauthenticated"
	CodeForbidden             ErrorCode = "forbidden"
	CodeNotFound              ErrorCode = "not_found"
	CodeInternal              ErrorCode = "internal_error"
	CodeMalformedToken        ErrorCode = "malformed_token"
	CodeSignatureInvalid      ErrorCode = "signature_invalid"
	CodeTokenExpired          ErrorCode = "token_expired"
	CodeTokenNotYetValid      ErrorCode = "token_not_yet_valid"
	CodeTokenRevoked          ErrorCode = "token_revoked"
	CodeStoreUnavailable      ErrorCode = "store_unavailable"
	CodeCacheUnavailable      ErrorCode = "cache_unavailable"
	CodeRevocationUnavailable ErrorCode = "revocation_unavailable"
	CodeNoEligibleKey         ErrorCode = "no_eligible_key"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// AppError represents a structured error with additional metadata
type AppError interface {
	error

	// Code returns the machine readable error code
	Code() ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause returns a copy of the error wrapping cause
	WithCause(cause error) AppError

	// WithMetadata returns a copy of the error carrying an extra metadata entry
	WithMetadata(key string, value interface{}) AppError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() ErrorCode     { return e.code }
func (e *baseError) HTTPStatus() int     { return e.httpStatus }
func (e *baseError) Description() string { return e.description }
func (e *baseError) Unwrap() error       { return e.cause }

// Is reports whether target is an AppError with the same code.
func (e *baseError) Is(target error) bool {
	t, ok := target.(AppError)
	if !ok {
		return false
	}
	return t.Code() == e.code
}

func (e *baseError) clone() *baseError {
	c := *e
	c.metadata = make(map[string]interface{}, len(e.metadata))
	for k, v := range e.metadata {
		c.metadata[k] = v
	}
	return &c
}

func (e *baseError) WithCause(cause error) AppError {
	c := e.clone()
	c.cause = cause
	return c
}

func (e *baseError) WithMetadata(key string, value interface{}) AppError {
	c := e.clone()
	c.metadata[key] = value
	return c
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new AppError with the specified parameters
func NewError(code ErrorCode, httpStatus int, description string, message string) AppError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Predefined Errors
// ================================================================================

var (
	// ErrMalformedToken is returned when a token cannot be parsed or lacks required claims.
	ErrMalformedToken = NewError(CodeMalformedToken, http.StatusUnauthorized, "token is malformed", "")

	// ErrSignatureInvalid is returned when no trusted key verifies the signature.
	ErrSignatureInvalid = NewError(CodeSignatureInvalid, http.StatusUnauthorized, "token signature is not trusted", "")

	ErrTokenExpired      = NewError(CodeTokenExpired, http.StatusUnauthorized, "token has expired", "")
	ErrTokenNotYetValid  = NewError(CodeTokenNotYetValid, http.StatusUnauthorized, "token is not yet valid", "")
	ErrTokenRevoked      = NewError(CodeTokenRevoked, http.StatusUnauthorized, "token has been revoked", "")
	ErrUnauthenticated   = NewError(CodeUnauthenticated, http.StatusUnauthorized, "authentication required", "")
	ErrForbidden         = NewError(CodeForbidden, http.StatusForbidden, "insufficient permissions", "")
	ErrNotFound          = NewError(CodeNotFound, http.StatusNotFound, "resource not found", "")
	ErrInternal          = NewError(CodeInternal, http.StatusInternalServerError, "internal error", "")
	ErrNoEligibleKey     = NewError(CodeNoEligibleKey, http.StatusServiceUnavailable, "no eligible signing key", "")
	ErrCacheUnavailable  = NewError(CodeCacheUnavailable, http.StatusServiceUnavailable, "key cache unavailable", "")
	ErrStoreUnavailable  = NewError(CodeStoreUnavailable, http.StatusServiceUnavailable, "key store unavailable", "")
	ErrRevocationFailure = NewError(CodeRevocationUnavailable, http.StatusServiceUnavailable, "revocation store unavailable", "")
)

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) AppError {
	return NewError(CodeInvalidRequest, http.StatusBadRequest,
		"The request is missing a required parameter or is otherwise malformed.", message)
}

// StoreUnavailable wraps a storage driver error.
func StoreUnavailable(op string, cause error) AppError {
	return ErrStoreUnavailable.WithCause(cause).WithMetadata("op", op)
}

// CacheUnavailable wraps a cache backend error.
func CacheUnavailable(op string, cause error) AppError {
	return ErrCacheUnavailable.WithCause(cause).WithMetadata("op", op)
}

// RevocationUnavailable wraps a revocation backend error.
func RevocationUnavailable(op string, cause error) AppError {
	return ErrRevocationFailure.WithCause(cause).WithMetadata("op", op)
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// AsAppError walks the error chain looking for an AppError
func AsAppError(err error) (AppError, bool) {
	var appErr AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in the chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code()
	}
	return CodeInternal
}

// HTTPStatusOf maps any error to an HTTP status code
func HTTPStatusOf(err error) int {
	if appErr, ok := AsAppError(err); ok && appErr.HTTPStatus() != 0 {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsTokenRejection reports whether err rejects the presented token itself, as opposed
// to an infrastructure failure while checking it.
func IsTokenRejection(err error) bool {
	switch CodeOf(err) {
	case CodeMalformedToken, CodeSignatureInvalid, CodeTokenExpired,
		CodeTokenNotYetValid, CodeTokenRevoked, CodeUnauthenticated:
		return true
	}
	return false
}

// IsUnavailable reports whether err is a transient backend failure
func IsUnavailable(err error) bool {
	switch CodeOf(err) {
	case CodeStoreUnavailable, CodeCacheUnavailable, CodeRevocationUnavailable, CodeNoEligibleKey:
		return true
	}
	return false
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ToErrorResponse converts any error to an ErrorResponse. Internal causes are never exposed.
func ToErrorResponse(err error) *ErrorResponse {
	if appErr, ok := AsAppError(err); ok {
		return &ErrorResponse{
			Error:            string(appErr.Code()),
			ErrorDescription: appErr.Description(),
		}
	}
	return &ErrorResponse{
		Error:            string(CodeInternal),
		ErrorDescription: "An unexpected error occurred",
	}
}
