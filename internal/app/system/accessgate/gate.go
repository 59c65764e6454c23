package accessgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/stratagate/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// UnknownIdentityPolicy selects the login verdict for identities the status
// store does not know.
type UnknownIdentityPolicy int

const (
	// UnknownAllow lets unknown identities through; other login stages decide.
	UnknownAllow UnknownIdentityPolicy = iota
	// UnknownDeny turns unknown identities away with ReasonUnknownIdentity.
	UnknownDeny
)

// ParseUnknownIdentityPolicy parses "allow" or "deny". Empty means allow.
func ParseUnknownIdentityPolicy(s string) (UnknownIdentityPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow":
		return UnknownAllow, nil
	case "deny":
		return UnknownDeny, nil
	}
	return UnknownAllow, fmt.Errorf("unknown identity policy %q (want allow or deny)", s)
}

// Config wires a Gate.
type Config struct {
	Statuses StatusStore    // required
	Sessions SessionRevoker // required
	Tokens   TokenVerifier  // required

	// Retry receives revocations that failed; nil disables retries.
	Retry RevocationQueue

	UnknownIdentity UnknownIdentityPolicy

	// AsyncRevocation returns from Toggle once the status write commits and
	// revokes sessions in the background.
	AsyncRevocation bool

	Observer Observer
	Logger   *zap.Logger
}

// Gate is safe for concurrent use.
type Gate struct {
	statuses StatusStore
	sessions SessionRevoker
	tokens   TokenVerifier
	retry    RevocationQueue
	unknown  UnknownIdentityPolicy
	async    bool
	obs      Observer
	log      *zap.Logger
	locks    *keyedMutex
}

// New validates cfg and returns a Gate.
func New(cfg Config) (*Gate, error) {
	if cfg.Statuses == nil {
		return nil, errors.New("accessgate: status store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("accessgate: session revoker is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("accessgate: token verifier is required")
	}
	g := &Gate{
		statuses: cfg.Statuses,
		sessions: cfg.Sessions,
		tokens:   cfg.Tokens,
		retry:    cfg.Retry,
		unknown:  cfg.UnknownIdentity,
		async:    cfg.AsyncRevocation,
		obs:      cfg.Observer,
		log:      cfg.Logger,
		locks:    newKeyedMutex(),
	}
	if g.obs == nil {
		g.obs = nopObserver{}
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	return g, nil
}

// CheckLogin is the terminal login check, run after credentials verify.
// A disabled identity is always denied; a store failure denies as well.
func (g *Gate) CheckLogin(ctx context.Context, loginOrID string) Verdict {
	v := g.checkLogin(ctx, loginOrID)
	g.obs.Verdict("login", v)
	return v
}

func (g *Gate) checkLogin(ctx context.Context, loginOrID string) Verdict {
	ident, found, err := g.statuses.Resolve(ctx, loginOrID)
	if err != nil {
		g.log.Warn("login check: status lookup failed", zap.String("login", loginOrID), zap.Error(err))
		return Deny(ReasonStoreUnavailable, "")
	}
	if !found {
		if g.unknown == UnknownDeny {
			return Deny(ReasonUnknownIdentity, "")
		}
		return Allow("")
	}
	if ident.Disabled {
		return Deny(ReasonAccountDisabled, ident.ID)
	}
	return Allow(ident.ID)
}

// CheckSession re-checks an established session on each request. The session
// is rejected once its user is disabled or its record was revoked.
func (g *Gate) CheckSession(ctx context.Context, userID, token string) Verdict {
	v := g.checkSession(ctx, userID, token)
	g.obs.Verdict("session", v)
	return v
}

func (g *Gate) checkSession(ctx context.Context, userID, token string) Verdict {
	ident, found, err := g.statuses.Lookup(ctx, userID)
	if err != nil {
		g.log.Warn("session check: status lookup failed", zap.String("user_id", userID), zap.Error(err))
		return Deny(ReasonStoreUnavailable, userID)
	}
	if !found {
		return Deny(ReasonUnknownIdentity, userID)
	}
	if ident.Disabled {
		return Deny(ReasonAccountDisabled, userID)
	}
	if token == "" {
		return Deny(ReasonSessionRevoked, userID)
	}
	open, err := g.sessions.IsOpen(ctx, token)
	if err != nil {
		g.log.Warn("session check: session lookup failed", zap.String("user_id", userID), zap.Error(err))
		return Deny(ReasonStoreUnavailable, userID)
	}
	if !open {
		return Deny(ReasonSessionRevoked, userID)
	}
	return Allow(userID)
}

// Toggle applies req.Action to req.Target.
//
// Checks run in order: capability, action token, target resolution,
// privilege. The token is consumed as soon as it verifies, so a request
// that fails a later check still needs a fresh token. On disable, every
// session of the target is revoked after the write commits; a revocation
// failure keeps the write and is reported through ToggleResult.RevocationErr.
func (g *Gate) Toggle(ctx context.Context, req ToggleRequest) (ToggleResult, error) {
	res, err := g.toggle(ctx, req)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = Kind(err)
	case res.RevocationErr != nil:
		outcome = KindRevocationPartialFailure
	case !res.Changed:
		outcome = "unchanged"
	}
	g.obs.Toggle(req.Action, outcome)
	return res, err
}

func (g *Gate) toggle(ctx context.Context, req ToggleRequest) (ToggleResult, error) {
	if !req.Requester.Can(CapabilityManageUsers) {
		return ToggleResult{}, ErrUnauthorized
	}
	if _, ok := ParseAction(string(req.Action)); !ok {
		return ToggleResult{}, fmt.Errorf("%w: unknown action %q", ErrInvalidOrExpiredToken, req.Action)
	}

	ok, err := g.tokens.VerifyAndConsume(ctx, req.Token, req.Action, req.Target, req.Requester.ID)
	if err != nil {
		return ToggleResult{}, fmt.Errorf("consume action token: %w: %w", ErrStoreUnavailable, err)
	}
	if !ok {
		return ToggleResult{}, ErrInvalidOrExpiredToken
	}

	unlock := g.locks.Lock(req.Target)
	before, found, err := g.statuses.Lookup(ctx, req.Target)
	if err != nil {
		unlock()
		return ToggleResult{}, fmt.Errorf("lookup %s: %w: %w", req.Target, ErrStoreUnavailable, err)
	}
	if !found {
		unlock()
		return ToggleResult{}, ErrUnknownIdentity
	}
	if req.Action.Disables() && before.Privileged {
		unlock()
		return ToggleResult{}, ErrProtectedIdentity
	}

	after, err := g.statuses.SetDisabled(ctx, req.Target, req.Action.Disables())
	unlock()
	if err != nil {
		if errors.Is(err, ErrProtectedIdentity) || errors.Is(err, ErrUnknownIdentity) {
			return ToggleResult{}, err
		}
		return ToggleResult{}, fmt.Errorf("set disabled %s: %w: %w", req.Target, ErrStoreUnavailable, err)
	}

	res := ToggleResult{
		Identity: after,
		Action:   req.Action,
		Changed:  before.Disabled != after.Disabled,
	}
	g.log.Info("user status changed",
		zap.String("user_id", req.Target),
		zap.String("action", string(req.Action)),
		zap.Bool("changed", res.Changed),
		zap.String("actor_id", req.Requester.ID),
	)

	if !req.Action.Disables() {
		return res, nil
	}
	if g.async {
		go g.revokeDetached(ctx, req.Target)
		return res, nil
	}
	res.SessionsRevoked, res.RevocationErr = g.revoke(ctx, req.Target)
	return res, nil
}

// revoke ends all sessions for userID. A failure is queued for retry and
// returned wrapped in ErrRevocationPartialFailure.
func (g *Gate) revoke(ctx context.Context, userID string) (int64, error) {
	n, err := g.sessions.RevokeAll(ctx, userID)
	g.obs.Revoked(n, err)
	if err == nil {
		return n, nil
	}
	g.log.Error("session revocation failed", zap.String("user_id", userID), zap.Error(err))
	if g.retry != nil {
		if qerr := g.retry.Enqueue(ctx, userID, err); qerr != nil {
			g.log.Error("queue session revocation retry failed", zap.String("user_id", userID), zap.Error(qerr))
		}
	}
	return n, fmt.Errorf("%w: %w", ErrRevocationPartialFailure, err)
}

func (g *Gate) revokeDetached(parent context.Context, userID string) {
	ctx, cancel := timeouts.WithTimeout(context.WithoutCancel(parent), timeouts.Medium(), g.log, "revoke sessions")
	defer cancel()
	_, _ = g.revoke(ctx, userID)
}
