package shared

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// AuthError is the value type for every recoverable authentication,
// authorization, verification and rate-limit failure. It carries the
// machine-readable code and the HTTP status returned at the boundary.
type AuthError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return e.Code + ": " + e.Message
}

// Authentication failures. Invalid credentials deliberately use one generic
// message so callers cannot distinguish a missing account from a bad password.
var (
	ErrInvalidCredentials = &AuthError{Code: "INVALID_CREDENTIALS", Message: "email/phone or credential is invalid", Status: http.StatusUnauthorized}
	ErrAccountLocked      = &AuthError{Code: "ACCOUNT_LOCKED", Message: "account temporarily locked after repeated failures", Status: http.StatusUnauthorized}
	ErrSessionRequired    = &AuthError{Code: "SESSION_REQUIRED", Message: "a valid session is required", Status: http.StatusUnauthorized}
)

// Authorization failures. The denied scope is safe to disclose because the
// caller is already authenticated at this point.
var (
	ErrPlatformAccessDenied  = &AuthError{Code: "PLATFORM_ACCESS_DENIED", Message: "insufficient platform role", Status: http.StatusForbidden}
	ErrWorkspaceAccessDenied = &AuthError{Code: "WORKSPACE_ACCESS_DENIED", Message: "insufficient workspace role", Status: http.StatusForbidden}
	ErrClientAccessDenied    = &AuthError{Code: "CLIENT_ACCESS_DENIED", Message: "insufficient client role", Status: http.StatusForbidden}
	ErrLocationAccessDenied  = &AuthError{Code: "LOCATION_ACCESS_DENIED", Message: "insufficient location role", Status: http.StatusForbidden}
)

// Verification failures.
var (
	ErrTokenNotFound    = &AuthError{Code: "TOKEN_NOT_FOUND", Message: "no pending verification for this subject", Status: http.StatusNotFound}
	ErrTokenExpired     = &AuthError{Code: "TOKEN_EXPIRED", Message: "verification code has expired", Status: http.StatusUnauthorized}
	ErrInvalidCode      = &AuthError{Code: "INVALID_CODE", Message: "verification code does not match", Status: http.StatusUnauthorized}
	ErrTooManyAttempts  = &AuthError{Code: "TOO_MANY_ATTEMPTS", Message: "verification failed too many times, request a new code", Status: http.StatusUnauthorized}
	ErrTokenAlreadyUsed = &AuthError{Code: "TOKEN_ALREADY_USED", Message: "verification code was already confirmed", Status: http.StatusUnauthorized}
)

// ErrRateLimitExceeded reports an attempt ceiling hit on any limited flow.
var ErrRateLimitExceeded = &AuthError{Code: "RATE_LIMIT_EXCEEDED", Message: "too many attempts, retry later", Status: http.StatusTooManyRequests}

// ErrResourceNotFound reports an addressed resource (workspace, client,
// location) that does not exist, as distinct from a denial.
var ErrResourceNotFound = &AuthError{Code: "RESOURCE_NOT_FOUND", Message: "resource does not exist", Status: http.StatusNotFound}

// AsAuthError unwraps err into an *AuthError when it is one.
func AsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
