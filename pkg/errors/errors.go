// Package errors provides the error types shared by integrations and the
// command runner.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode classifies an error for reporting and status mapping.
type ErrorCode string

// Standard error codes
const (
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION_ERROR"
	CodeBadInput      ErrorCode = "BAD_INPUT"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	CodeForbidden     ErrorCode = "FORBIDDEN"
	CodeUpstream      ErrorCode = "UPSTREAM_ERROR"
	CodeInternalError ErrorCode = "INTERNAL_ERROR"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeRateLimited   ErrorCode = "RATE_LIMITED"
	CodeNotSupported  ErrorCode = "NOT_SUPPORTED"
)

// AppError represents a structured error raised by an integration.
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

// Error implements the error interface. Bad input and upstream errors
// render the bare message since they are shown to analysts verbatim.
func (e *AppError) Error() string {
	switch e.Code {
	case CodeBadInput, CodeUpstream:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail key-value pair to the error.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON returns the JSON representation of the error.
func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// New creates a new AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// Validation creates a validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message)
}

// BadInput creates an argument error. It is raised before any network call.
func BadInput(format string, args ...interface{}) *AppError {
	return New(CodeBadInput, fmt.Sprintf(format, args...))
}

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message)
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *AppError {
	return New(CodeForbidden, message)
}

// Internal creates an internal error.
func Internal(message string) *AppError {
	return New(CodeInternalError, message)
}

// Timeout creates a timeout error.
func Timeout(message string) *AppError {
	return New(CodeTimeout, message)
}

// NotSupported creates an error for an unknown command or operation.
func NotSupported(message string) *AppError {
	return New(CodeNotSupported, message)
}

// Upstream creates an error for a non-OK vendor API response.
func Upstream(status int, reason, body string) *AppError {
	msg := fmt.Sprintf("Error in API call [%d] - %s", status, reason)
	if body != "" {
		msg += "\n" + body
	}
	return &AppError{
		Code:       CodeUpstream,
		Message:    msg,
		HTTPStatus: status,
		Details: map[string]interface{}{
			"status": status,
			"reason": reason,
			"body":   body,
		},
	}
}

// codeToHTTPStatus maps error codes to HTTP status codes.
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeValidation, CodeBadInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotSupported:
		return http.StatusNotImplemented
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Is checks if the target error is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// As is a convenience passthrough to the standard library.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// StatusCode returns the vendor status code carried by an upstream error,
// or 0 when err did not come from a vendor response.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == CodeUpstream {
		return appErr.HTTPStatus
	}
	return 0
}

// Contains reports whether the rendered error contains substr. Vendors
// are inconsistent about status codes, so several integrations match on
// the message the way analysts see it.
func Contains(err error, substr string) bool {
	return err != nil && strings.Contains(err.Error(), substr)
}

// CommandFailure renders the message reported to the host when a command
// handler returns an error.
func CommandFailure(command string, err error) string {
	return fmt.Sprintf("Failed to execute %s command.\nError:\n%v", command, err)
}
