package identityapi

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the token endpoint rejects a username/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRefreshTokenInvalid is returned when the refresh token is expired or blacklisted.
	ErrRefreshTokenInvalid = errors.New("refresh token not valid")

	// ErrMalformedResponse is returned when a response is not JSON or lacks required fields.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrTransient is returned for network failures and 5xx responses.
	ErrTransient = errors.New("identity api unavailable")

	// ErrUnexpectedStatus is returned for any other non-success status.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// StatusError carries the HTTP status behind a failed call.
type StatusError struct {
	Endpoint string
	Status   int
	Code     string
	kind     error
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s returned %d (%s)", e.kind, e.Endpoint, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: %s returned %d", e.kind, e.Endpoint, e.Status)
}

func (e *StatusError) Unwrap() error { return e.kind }
