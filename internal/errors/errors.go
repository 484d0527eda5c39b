// Package errors defines the playback error taxonomy. All engine-internal
// failures are converted to these values plus state transitions; nothing
// propagates out of the coordinator as a panic.
package errors

import (
	stderrors "errors"
	"fmt"
)

// PlaybackError is a classified error from the media layer or the
// coordinator itself.
type PlaybackError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Surface string    `json:"surface_id,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *PlaybackError) Error() string {
	if e.Surface != "" {
		return fmt.Sprintf("%s: %s (surface: %s)", e.Code, e.Message, e.Surface)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *PlaybackError) Unwrap() error {
	return e.Cause
}

// WithCause attaches the underlying error
func (e *PlaybackError) WithCause(cause error) *PlaybackError {
	e.Cause = cause
	return e
}

// PolicyBlocked creates a POLICY_BLOCKED error: play() was rejected by
// the platform autoplay policy. Recovered locally, never user-visible.
func PolicyBlocked(surfaceID string) *PlaybackError {
	return &PlaybackError{
		Code:    ErrPolicyBlocked,
		Message: "autoplay rejected by platform policy",
		Surface: surfaceID,
	}
}

// MediaDecode creates a MEDIA_DECODE_ERROR
func MediaDecode(surfaceID, message string) *PlaybackError {
	return &PlaybackError{
		Code:    ErrMediaDecode,
		Message: message,
		Surface: surfaceID,
	}
}

// MediaNetwork creates a MEDIA_NETWORK_ERROR
func MediaNetwork(surfaceID, message string) *PlaybackError {
	return &PlaybackError{
		Code:    ErrMediaNetwork,
		Message: message,
		Surface: surfaceID,
	}
}

// CapabilityUnavailable creates a CAPABILITY_UNAVAILABLE error
func CapabilityUnavailable(capability string) *PlaybackError {
	return &PlaybackError{
		Code:    ErrCapabilityUnavail,
		Message: fmt.Sprintf("%s is not available on this platform", capability),
	}
}

// NotRegistered creates a NOT_REGISTERED error
func NotRegistered(surfaceID string) *PlaybackError {
	return &PlaybackError{
		Code:    ErrNotRegistered,
		Message: "no surface registered with this id",
		Surface: surfaceID,
	}
}

// CoordinatorClosed creates a COORDINATOR_CLOSED error
func CoordinatorClosed() *PlaybackError {
	return &PlaybackError{
		Code:    ErrCoordinatorClosed,
		Message: "coordinator has been closed",
	}
}

// Internal creates an INTERNAL_ERROR
func Internal(message string) *PlaybackError {
	return &PlaybackError{
		Code:    ErrInternal,
		Message: message,
	}
}

// CodeOf extracts the ErrorCode from any error, defaulting to
// INTERNAL_ERROR for unclassified values and "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var pe *PlaybackError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ErrInternal
}

// IsPolicyBlocked reports whether err is an autoplay policy rejection.
func IsPolicyBlocked(err error) bool {
	return CodeOf(err) == ErrPolicyBlocked
}

// IsRetryable reports whether a new qualifying signal may retry playback
// after this error.
func IsRetryable(err error) bool {
	return CodeOf(err).Retryable()
}
