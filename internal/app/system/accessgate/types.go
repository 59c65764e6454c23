// Package accessgate decides whether an identity may hold a session and
// performs the enable/disable transition on that permission.
//
// The gate never caches status across requests; every verdict reads the
// status store. Privileged identities can never be disabled.
package accessgate

import (
	"context"
	"strings"
)

// Action is the requested transition.
type Action string

const (
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
)

// ParseAction normalizes s into an Action.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionEnable:
		return ActionEnable, true
	case ActionDisable:
		return ActionDisable, true
	}
	return "", false
}

// Disables reports whether applying a leaves the identity disabled.
func (a Action) Disables() bool { return a == ActionDisable }

// ActionFor returns the action available for an identity in the given state.
func ActionFor(disabled bool) Action {
	if disabled {
		return ActionEnable
	}
	return ActionDisable
}

// Identity is the gate's view of a user.
type Identity struct {
	ID         string
	LoginID    string
	Name       string
	Email      string
	TenantID   string
	Privileged bool
	Disabled   bool
}

// Reason explains a deny verdict.
type Reason string

const (
	ReasonAccountDisabled  Reason = "ACCOUNT_DISABLED"
	ReasonUnknownIdentity  Reason = "UNKNOWN_IDENTITY"
	ReasonStoreUnavailable Reason = "STORE_UNAVAILABLE"
	ReasonSessionRevoked   Reason = "SESSION_REVOKED"
)

// Verdict is the result of a login or session check.
type Verdict struct {
	Allowed bool
	Reason  Reason
	UserID  string // empty when the identity could not be resolved
}

// Allow returns an allowing verdict.
func Allow(userID string) Verdict { return Verdict{Allowed: true, UserID: userID} }

// Deny returns a denying verdict.
func Deny(reason Reason, userID string) Verdict {
	return Verdict{Reason: reason, UserID: userID}
}

// CapabilityManageUsers is required to toggle identities.
const CapabilityManageUsers = "manage_users"

// Requester is the caller of a toggle.
type Requester struct {
	ID           string
	Capabilities []string
}

// Can reports whether the requester holds capability c.
func (r Requester) Can(c string) bool {
	for _, have := range r.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// ToggleRequest asks the gate to enable or disable Target.
type ToggleRequest struct {
	Target    string
	Action    Action
	Token     string
	Requester Requester
}

// ToggleResult describes a successful toggle.
type ToggleResult struct {
	Identity        Identity // post-write state
	Action          Action
	Changed         bool  // false when the identity was already in the requested state
	SessionsRevoked int64 // zero in async mode or when revocation failed
	RevocationErr   error // wraps ErrRevocationPartialFailure; the status change still holds
}

// Disabled reports the post-write flag.
func (r ToggleResult) Disabled() bool { return r.Identity.Disabled }

// Warning returns the kind of the non-fatal failure attached to the result, or "".
func (r ToggleResult) Warning() string {
	if r.RevocationErr == nil {
		return ""
	}
	return Kind(r.RevocationErr)
}

// StatusStore persists the disabled flag.
//
// SetDisabled must be a single atomic write that returns the post-write
// identity. It must refuse to disable a privileged identity by returning
// ErrProtectedIdentity, and report a missing identity with ErrUnknownIdentity.
type StatusStore interface {
	Lookup(ctx context.Context, id string) (Identity, bool, error)
	Resolve(ctx context.Context, loginOrID string) (Identity, bool, error)
	SetDisabled(ctx context.Context, id string, disabled bool) (Identity, error)
}

// SessionRevoker ends every session of a user.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) (int64, error)
	IsOpen(ctx context.Context, token string) (bool, error)
}

// TokenVerifier consumes one-shot action tokens.
type TokenVerifier interface {
	VerifyAndConsume(ctx context.Context, token string, action Action, target, presentedBy string) (bool, error)
}

// RevocationQueue records revocations that must be retried.
type RevocationQueue interface {
	Enqueue(ctx context.Context, userID string, cause error) error
}

// Observer receives gate outcomes for metrics.
type Observer interface {
	Verdict(point string, v Verdict)
	Toggle(action Action, outcome string)
	Revoked(n int64, err error)
}

type nopObserver struct{}

func (nopObserver) Verdict(string, Verdict) {}
func (nopObserver) Toggle(Action, string)   {}
func (nopObserver) Revoked(int64, error)    {}
