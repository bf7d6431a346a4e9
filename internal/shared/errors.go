package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed            = fmt.Errorf("authentication failed")
	ErrAuthorizationRequired = fmt.Errorf("authorization required")
	ErrTokenExpired          = fmt.Errorf("access token expired")
	ErrNoRefreshToken        = fmt.Errorf("no refresh token available")
	ErrTimeout               = fmt.Errorf("operation timed out")

	// Storage errors
	ErrSecretNotFound = fmt.Errorf("secret not found")

	// API and service errors
	ErrAPIRequest       = fmt.Errorf("API request failed")
	ErrTransient        = fmt.Errorf("transient transport failure")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrSync             = fmt.Errorf("playlist sync failed")
	ErrAllFailed        = fmt.Errorf("every playlist failed")
	ErrPlaylistMismatch = fmt.Errorf("playlist contents differ after write")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// APIError describes a non-2xx response from the streaming service.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("spotify API error: %s %s: status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("spotify API error: %s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAPIRequest:
		return true
	case ErrPlaylistNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// TransientError is returned once the retry budget for a timeout, 5xx, or rate-limit failure is spent.
type TransientError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// SyncError reports a playlist whose convergence failed.
type SyncError struct {
	Playlist   string
	PlaylistID string
	Step       string
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %q (%s) failed during %s: %v", e.Playlist, e.PlaylistID, e.Step, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func (e *SyncError) Is(target error) bool { return target == ErrSync }

// Error kinds recorded on run records.
const (
	KindConfiguration         = "configuration"
	KindAuthExpired           = "auth_expired"
	KindAuthorizationRequired = "authorization_required"
	KindTransient             = "transient"
	KindSync                  = "sync"
	KindUnknown               = "unknown"
)

// ErrorKind classifies err into one of the error kinds. The most specific cause wins.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrMissingCredentials), errors.Is(err, ErrInvalidCredentials):
		return KindConfiguration
	case errors.Is(err, ErrAuthorizationRequired):
		return KindAuthorizationRequired
	case errors.Is(err, ErrTokenExpired):
		return KindAuthExpired
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrSync):
		return KindSync
	default:
		return KindUnknown
	}
}

// IsFatal reports whether err must abort the whole run rather than a single playlist.
func IsFatal(err error) bool {
	switch ErrorKind(err) {
	case KindConfiguration, KindAuthExpired, KindAuthorizationRequired:
		return true
	}
	return errors.Is(err, context.Canceled)
}
