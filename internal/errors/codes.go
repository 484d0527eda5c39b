package errors

// ErrorCode represents the type of playback error
type ErrorCode string

const (
	ErrPolicyBlocked     ErrorCode = "POLICY_BLOCKED"
	ErrMediaDecode       ErrorCode = "MEDIA_DECODE_ERROR"
	ErrMediaNetwork      ErrorCode = "MEDIA_NETWORK_ERROR"
	ErrCapabilityUnavail ErrorCode = "CAPABILITY_UNAVAILABLE"
	ErrNotRegistered     ErrorCode = "NOT_REGISTERED"
	ErrDoubleRegistered  ErrorCode = "DOUBLE_REGISTRATION"
	ErrCoordinatorClosed ErrorCode = "COORDINATOR_CLOSED"
	ErrInternal          ErrorCode = "INTERNAL_ERROR"
)

// retryableCodes are recoverable without user action: a fresh qualifying
// visibility signal may retry them. Genuine media errors are not in this
// set; they require an explicit user retry.
var retryableCodes = map[ErrorCode]bool{
	ErrPolicyBlocked:     true,
	ErrCapabilityUnavail: true,
}

// Retryable reports whether playback may be retried automatically
// after this error code.
func (e ErrorCode) Retryable() bool {
	return retryableCodes[e]
}
