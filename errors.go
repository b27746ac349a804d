package whisper

import (
	"errors"
	"net/http"

	"github.com/panyam/whisper/oauth2"
)

var (
	ErrNotFound            = errors.New("user not found")
	ErrWrongCredential     = errors.New("incorrect password")
	ErrDuplicateIdentity   = errors.New("identity already registered")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
	ErrUnsupportedProvider = errors.New("unsupported identity provider")

	// ErrUpstreamAuth is returned when the OAuth provider denies or fails the login.
	ErrUpstreamAuth = oauth2.ErrProviderFailure
)

// Error codes carried by AuthError
const (
	ErrCodeMissingField     = "missing_field"
	ErrCodeInvalidCreds     = "invalid_credentials"
	ErrCodeUserNotFound     = "user_not_found"
	ErrCodeUsernameTaken    = "username_taken"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeUpstream         = "upstream_failure"
	ErrCodeInternal         = "internal_error"
)

// AuthError is the user-facing form of an authentication failure
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
	cause   error
}

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.cause }

// Status maps the error code to the HTTP status the vault responds with.
func (e *AuthError) Status() int {
	switch e.Code {
	case ErrCodeMissingField:
		return http.StatusBadRequest
	case ErrCodeInvalidCreds:
		return http.StatusUnauthorized
	case ErrCodeUserNotFound:
		return http.StatusNotFound
	case ErrCodeUsernameTaken:
		return http.StatusConflict
	case ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AsAuthError classifies any error returned by the reconciler or a store.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	var out *AuthError
	switch {
	case errors.Is(err, ErrNotFound):
		out = NewAuthError(ErrCodeUserNotFound, "No account with that username", "username")
	case errors.Is(err, ErrWrongCredential):
		out = NewAuthError(ErrCodeInvalidCreds, "Incorrect password", "password")
	case errors.Is(err, ErrDuplicateIdentity):
		out = NewAuthError(ErrCodeUsernameTaken, "That username is already registered", "username")
	case errors.Is(err, ErrStoreUnavailable):
		out = NewAuthError(ErrCodeStoreUnavailable, "Service temporarily unavailable", "")
	case errors.Is(err, ErrUpstreamAuth):
		out = NewAuthError(ErrCodeUpstream, "Sign-in with the provider failed", "")
	default:
		out = NewAuthError(ErrCodeInternal, "Something went wrong", "")
	}
	out.cause = err
	return out
}
