package session

import (
	"errors"
	"fmt"
	"net/http"

	"fintrack/internal/api"
)

// Kind classifies authentication failures.
type Kind int

const (
	InvalidCredentials Kind = iota + 1
	ServerError
	ProfileFetchFailed
	SessionExpired
	RegistrationFailed
)

func (k Kind) String() string {
	switch k {
	case InvalidCredentials:
		return "invalid_credentials"
	case ServerError:
		return "server_error"
	case ProfileFetchFailed:
		return "profile_fetch_failed"
	case SessionExpired:
		return "session_expired"
	case RegistrationFailed:
		return "registration_failed"
	default:
		return "unknown"
	}
}

// AuthError is a failed login, restore or registration. Msg is meant for
// the user.
type AuthError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *AuthError) Error() string { return e.Msg }

func (e *AuthError) Unwrap() error { return e.Err }

var (
	// ErrNoSession is returned by accessors that need an authenticated user.
	ErrNoSession = errors.New("no active session")

	ErrSessionExpired = &AuthError{Kind: SessionExpired, Msg: "Your session has expired. Please log in again."}

	// ErrSuperseded is returned by a login or restore whose result was
	// discarded because the session was logged out while it ran.
	ErrSuperseded = errors.New("session changed while the request was in flight")

	ErrLoginInProgress = errors.New("a login is already in progress")
)

// IsKind reports whether err is an AuthError of kind k.
func IsKind(err error, k Kind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == k
}

const (
	msgNoAccessToken = "Login successful, but no authentication token was received."
	msgEmptyLogin    = "Login successful, but user profile could not be retrieved or is empty."
	msgEmptyRestore  = "User profile data received from server is empty or invalid."
	msgSignupFailed  = "Signup failed. Please try again."
)

func loginError(err error) *AuthError {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return &AuthError{Kind: ServerError, Msg: err.Error(), Err: err}
	}
	kind := ServerError
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		kind = InvalidCredentials
	}
	msg := apiErr.Detail
	if msg == "" {
		msg = fmt.Sprintf("Login failed: %d.", apiErr.StatusCode)
	}
	return &AuthError{Kind: kind, Msg: msg, Err: err}
}

func profileError(err error) *AuthError {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return &AuthError{Kind: ProfileFetchFailed, Msg: err.Error(), Err: err}
	}
	msg := apiErr.Detail
	if msg == "" {
		msg = fmt.Sprintf("Failed to fetch profile: %d.", apiErr.StatusCode)
	}
	return &AuthError{Kind: ProfileFetchFailed, Msg: msg, Err: err}
}

func registerError(err error) *AuthError {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return &AuthError{Kind: RegistrationFailed, Msg: err.Error(), Err: err}
	}
	msg := apiErr.Detail
	if msg == "" {
		msg = msgSignupFailed
	}
	return &AuthError{Kind: RegistrationFailed, Msg: msg, Err: err}
}
