package qbittorrent

import (
	"errors"
	"fmt"
)

// Common errors returned by the qBittorrent actuator.
var (
	// ErrAuthentication is returned when login is refused (bad credentials or banned IP).
	ErrAuthentication = errors.New("qBittorrent authentication failed")

	// ErrSessionRejected is returned when a request is refused with 401/403 on an established session.
	ErrSessionRejected = errors.New("qBittorrent session rejected")

	// ErrActuationFailed is returned when a limit request fails for any other reason.
	ErrActuationFailed = errors.New("qBittorrent limit change failed")

	// ErrConnectionFailed is returned when connection to qBittorrent fails.
	ErrConnectionFailed = errors.New("connection to qBittorrent failed")

	// ErrInvalidHost is returned when a target host is empty or malformed.
	ErrInvalidHost = errors.New("invalid qBittorrent host")
)

// APIError represents an unexpected WebAPI response
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qBittorrent API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("qBittorrent API error: status %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized checks if the error indicates the session is no longer valid
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// ActuationError is returned once every attempt to change a target's limits failed.
type ActuationError struct {
	Target     string
	Step       string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *ActuationError) Error() string {
	msg := fmt.Sprintf("set limits on %s failed at %s after %d attempts", e.Target, e.Step, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	return msg + ": " + e.Err.Error()
}

func (e *ActuationError) Unwrap() error {
	return e.Err
}
