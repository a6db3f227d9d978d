package auth

import (
	"errors"
	"fmt"
)

// AuthError represents authentication/authorization errors raised by
// the session core itself.
type AuthError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Common auth errors.
var (
	ErrNoRefreshToken    = &AuthError{"NO_REFRESH_TOKEN", "No refresh token stored", 401}
	ErrRefreshRejected   = &AuthError{"REFRESH_REJECTED", "Refresh token was rejected", 401}
	ErrMalformedResponse = &AuthError{"MALFORMED_RESPONSE", "Refresh response missing token fields", 401}
	ErrUnauthorized      = &AuthError{"UNAUTHORIZED", "Session expired", 401}
)

// NewAuthError creates a typed auth error.
func NewAuthError(errorType, message string, code int) *AuthError {
	return &AuthError{Type: errorType, Message: message, Code: code}
}

// APIError is a non-success HTTP response from the remote API, carrying
// the server-supplied message when one was present.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// NetworkError is a transport-level failure with no HTTP status. It is
// classified separately so that checkAuth never logs a user out over a
// flaky connection.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err is an authentication failure
// (HTTP 401/403 or a typed auth error with such a code). Classification
// is structural, never by message text; the decision it drives is "log
// out on auth failures, never on network errors".
func IsAuthFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code == 401 || authErr.Code == 403
	}
	return false
}

// IsNetworkFailure reports whether err is a transport-level failure.
func IsNetworkFailure(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
