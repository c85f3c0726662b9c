package domain

import (
	"errors"
	"fmt"
)

// ErrActivityNotFound is returned when an activity cannot be located.
var ErrActivityNotFound = errors.New("activity not found")

// AuthError reports a failed refresh-token exchange. Payload keeps the raw response for diagnostics.
type AuthError struct {
	Status  int
	Payload []byte
	Err     error
}

func (e *AuthError) Error() string {
	msg := "token refresh failed"
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is returned when the activities endpoint answers with an error object instead of a list.
type APIError struct {
	Page    int
	Status  int
	Message string
	Payload []byte
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("strava api error on page %d (status %d)", e.Page, e.Status)
	}
	return fmt.Sprintf("strava api error on page %d (status %d): %s", e.Page, e.Status, e.Message)
}

// ValidationError marks a single raw record that could not be mapped into an Activity.
type ValidationError struct {
	ExternalID int64
	Field      string
	Value      string
	Err        error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("activity %d: invalid %s %q", e.ExternalID, e.Field, e.Value)
	}
	return fmt.Sprintf("activity %d: invalid %s %q: %v", e.ExternalID, e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConflictError is returned by stores when an insert collides with an existing external id.
type ConflictError struct {
	ExternalID int64
	Err        error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("activity %d already stored", e.ExternalID)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// DecodeError is returned when an encoded route polyline cannot be decoded.
type DecodeError struct {
	ExternalID int64
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("activity %d: decode route: %v", e.ExternalID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
