package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Error codes rendered to clients.
const (
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeGoogleSignInFailed   = "GOOGLE_SIGN_IN_FAILED"
	CodeSessionExpired       = "SESSION_EXPIRED"
	CodeUnavailable          = "DEPENDENCY_UNAVAILABLE"
	CodeInternal             = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

// NewAuthenticationFailed reports bad credentials at login. The cause is kept for logs only.
func NewAuthenticationFailed(err error) error {
	return &DomainError{
		Code:       CodeAuthenticationFailed,
		Message:    "invalid email or password",
		HTTPStatus: http.StatusUnauthorized,
		Err:        err,
	}
}

// NewGoogleSignInFailed reports a rejected identity-provider exchange.
func NewGoogleSignInFailed(err error) error {
	return &DomainError{
		Code:       CodeGoogleSignInFailed,
		Message:    "google sign-in failed",
		HTTPStatus: http.StatusUnauthorized,
		Details:    map[string]any{"error": "GoogleSignInError"},
		Err:        err,
	}
}

// NewSessionExpired reports a session that was signed out because it could not be refreshed.
func NewSessionExpired(redirect string) error {
	return NewDomainError(CodeSessionExpired, "session expired", http.StatusUnauthorized, map[string]any{"redirect": redirect})
}

func NewUnavailable(message string, details map[string]any) error {
	return NewDomainError(CodeUnavailable, message, http.StatusServiceUnavailable, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return NewDomainError(codeForStatus(fiberErr.Code), fiberErr.Message, fiberErr.Code, nil)
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidationFailed
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	}
	if status >= http.StatusInternalServerError {
		return CodeInternal
	}
	return "REQUEST_FAILED"
}
