// Package actiontoken issues and consumes one-shot tokens that authorize a
// single enable or disable action on a single user.
//
// Tokens are 32 random bytes, base64url encoded. Only the SHA-256 of a token
// is stored. A token is bound to the action, the target user, and the user
// it was issued to, and is deleted on first successful use.
package actiontoken

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 24 * time.Hour

const tokenBytes = 32

// Record is the stored form of an issued token.
type Record struct {
	Hash      string
	Action    string
	TargetID  string
	IssuedTo  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store persists token records. Take must atomically delete and report the
// record matching every binding field whose expiry is after now.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Take(ctx context.Context, hash, action, targetID, presentedBy string, now time.Time) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Token is an issued token handed to the client.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer mints and verifies tokens against a Store.
type Issuer struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewIssuer returns an Issuer. A non-positive ttl means DefaultTTL.
func NewIssuer(store Store, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{store: store, ttl: ttl, now: time.Now}
}

// TTL returns the token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue mints a token allowing issuedTo to apply action to target once.
func (i *Issuer) Issue(ctx context.Context, action accessgate.Action, target, issuedTo string) (Token, error) {
	if _, ok := accessgate.ParseAction(string(action)); !ok {
		return Token{}, fmt.Errorf("issue token: unknown action %q", action)
	}
	if target == "" || issuedTo == "" {
		return Token{}, errors.New("issue token: target and issuer are required")
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(buf)

	now := i.now().UTC()
	rec := Record{
		Hash:      Hash(value),
		Action:    string(action),
		TargetID:  target,
		IssuedTo:  issuedTo,
		ExpiresAt: now.Add(i.ttl),
		CreatedAt: now,
	}
	if err := i.store.Put(ctx, rec); err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}
	return Token{Value: value, ExpiresAt: rec.ExpiresAt}, nil
}

// VerifyAndConsume reports whether token authorizes presentedBy to apply
// action to target, consuming it when it does. An empty token is never valid.
func (i *Issuer) VerifyAndConsume(ctx context.Context, token string, action accessgate.Action, target, presentedBy string) (bool, error) {
	if token == "" || target == "" || presentedBy == "" {
		return false, nil
	}
	return i.store.Take(ctx, Hash(token), string(action), target, presentedBy, i.now().UTC())
}

// Hash returns the stored form of a token value.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
