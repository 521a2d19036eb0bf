package lucky

import (
	"errors"
	"fmt"
)

var (
	// ErrCollectionFailed is returned when a source could not be polled.
	ErrCollectionFailed = errors.New("collection failed")

	// ErrInvalidURL is returned when a source URL is empty or malformed.
	ErrInvalidURL = errors.New("invalid source url")
)

// APIError represents a non-200 response from a device
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("lucky API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("lucky API error: status %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized checks if the error indicates an authentication failure
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// CollectionError is returned once every attempt against a source failed.
type CollectionError struct {
	Source     string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *CollectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("collect from %s failed after %d attempts (status %d): %v", e.Source, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("collect from %s failed after %d attempts: %v", e.Source, e.Attempts, e.Err)
}

func (e *CollectionError) Unwrap() []error {
	return []error{ErrCollectionFailed, e.Err}
}
