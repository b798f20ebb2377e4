package errors

import "fmt"

// Error codes for provider and store failures. The detector branches on these
// to decide whether a credential's pass is retried, skipped, or flagged.
const (
	CodeAuthExpired      = "auth_expired"
	CodeRateLimited      = "rate_limited"
	CodeTransient        = "transient"
	CodeStoreUnavailable = "store_unavailable"
	CodeSnapshotConflict = "snapshot_conflict"
	CodeActionFailed     = "action_failed"
)

// AuthExpiredError indicates a provider rejected the credential's token.
// The credential must be flagged for external remediation and skipped.
func AuthExpiredError(provider string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: fmt.Sprintf("%s rejected access token", provider),
		Code:    CodeAuthExpired,
		Cause:   cause,
	}
}

// RateLimitedError indicates the provider throttled us. The credential is
// skipped for the remainder of the tick, no in-tick retry.
func RateLimitedError(provider string) *AppError {
	return &AppError{
		Type:    ErrTypeRateLimit,
		Message: fmt.Sprintf("%s rate limit hit", provider),
		Code:    CodeRateLimited,
	}
}

// TransientError indicates a network failure or provider 5xx. Retried within
// the tick up to a small bounded count.
func TransientError(provider string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeConnection,
		Message: fmt.Sprintf("%s request failed", provider),
		Code:    CodeTransient,
		Cause:   cause,
	}
}

// StoreUnavailableError wraps a persistence backend failure.
func StoreUnavailableError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Code:    CodeStoreUnavailable,
		Cause:   cause,
	}
}

// SnapshotConflictError indicates a concurrent snapshot write was detected.
func SnapshotConflictError(credentialID string) *AppError {
	return &AppError{
		Type:    ErrTypeConflict,
		Message: "snapshot was modified by a concurrent pass",
		Code:    CodeSnapshotConflict,
		Context: map[string]interface{}{"credential_id": credentialID},
	}
}

// ActionFailedError wraps a response-action executor failure. Logged per
// automation, never propagated.
func ActionFailedError(kind string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: fmt.Sprintf("action %s failed", kind),
		Code:    CodeActionFailed,
		Cause:   cause,
	}
}

// IsAuthExpired reports whether err is a rejected-token provider error.
func IsAuthExpired(err error) bool {
	return IsType(err, ErrTypeAuth)
}

// IsRateLimited reports whether err is a provider throttle.
func IsRateLimited(err error) bool {
	return IsType(err, ErrTypeRateLimit)
}

// IsTransient reports whether err is worth retrying within the same tick.
func IsTransient(err error) bool {
	return IsType(err, ErrTypeConnection) || IsType(err, ErrTypeTimeout)
}

// IsConflict reports whether err is a concurrent snapshot write.
func IsConflict(err error) bool {
	return IsType(err, ErrTypeConflict)
}
