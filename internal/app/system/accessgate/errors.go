package accessgate

import "errors"

var (
	// ErrUnauthorized: the requester lacks CapabilityManageUsers.
	ErrUnauthorized = errors.New("requester may not manage users")

	// ErrInvalidOrExpiredToken: the action token is missing, expired, already
	// used, or bound to a different action, target, or requester.
	ErrInvalidOrExpiredToken = errors.New("action token is invalid or expired")

	// ErrUnknownIdentity: the target does not exist.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrProtectedIdentity: the target is privileged and cannot be disabled.
	ErrProtectedIdentity = errors.New("identity is protected")

	// ErrRevocationPartialFailure: the status changed but some sessions could
	// not be revoked. Attached to a successful ToggleResult as a warning.
	ErrRevocationPartialFailure = errors.New("session revocation incomplete")

	// ErrStoreUnavailable: a backing store failed; nothing was changed.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Stable error kinds used in API responses, audit records, and metrics.
const (
	KindUnauthorized             = "UNAUTHORIZED"
	KindInvalidOrExpiredToken    = "INVALID_OR_EXPIRED_TOKEN"
	KindUnknownIdentity          = "UNKNOWN_IDENTITY"
	KindProtectedIdentity        = "PROTECTED_IDENTITY"
	KindRevocationPartialFailure = "REVOCATION_PARTIAL_FAILURE"
	KindStoreUnavailable         = "STORE_UNAVAILABLE"
	KindInternal                 = "INTERNAL"
)

// Kind maps err onto its stable kind string. Errors outside the gate's set
// map to KindInternal; nil maps to "".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return KindInvalidOrExpiredToken
	case errors.Is(err, ErrUnknownIdentity):
		return KindUnknownIdentity
	case errors.Is(err, ErrProtectedIdentity):
		return KindProtectedIdentity
	case errors.Is(err, ErrRevocationPartialFailure):
		return KindRevocationPartialFailure
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	}
	return KindInternal
}
