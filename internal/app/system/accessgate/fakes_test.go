package accessgate_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
)

// memStatuses is an in-memory StatusStore.
type memStatuses struct {
	mu      sync.Mutex
	users   map[string]accessgate.Identity
	err     error
	writes  int
	history []bool // disabled flag after each write, in commit order
}

func newMemStatuses(ids ...accessgate.Identity) *memStatuses {
	m := &memStatuses{users: make(map[string]accessgate.Identity)}
	for _, id := range ids {
		m.users[id.ID] = id
	}
	return m
}

func (m *memStatuses) Lookup(_ context.Context, id string) (accessgate.Identity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return accessgate.Identity{}, false, m.err
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *memStatuses) Resolve(ctx context.Context, loginOrID string) (accessgate.Identity, bool, error) {
	if u, ok, err := m.Lookup(ctx, loginOrID); err != nil || ok {
		return u, ok, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.LoginID, loginOrID) {
			return u, true, nil
		}
	}
	return accessgate.Identity{}, false, nil
}

func (m *memStatuses) SetDisabled(_ context.Context, id string, disabled bool) (accessgate.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return accessgate.Identity{}, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return accessgate.Identity{}, accessgate.ErrUnknownIdentity
	}
	if disabled && u.Privileged {
		return accessgate.Identity{}, accessgate.ErrProtectedIdentity
	}
	u.Disabled = disabled
	m.users[id] = u
	m.writes++
	m.history = append(m.history, disabled)
	return u, nil
}

func (m *memStatuses) disabled(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].Disabled
}

// memSessions is an in-memory SessionRevoker keyed by token.
type memSessions struct {
	mu      sync.Mutex
	byToken map[string]string // token -> user id
	err     error
	calls   int
}

func newMemSessions() *memSessions {
	return &memSessions{byToken: make(map[string]string)}
}

func (s *memSessions) open(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[token] = userID
}

func (s *memSessions) RevokeAll(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	var n int64
	for tok, uid := range s.byToken {
		if uid == userID {
			delete(s.byToken, tok)
			n++
		}
	}
	return n, nil
}

func (s *memSessions) IsOpen(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.byToken[token]
	return ok, nil
}

func (s *memSessions) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, uid := range s.byToken {
		if uid == userID {
			n++
		}
	}
	return n
}

// memQueue records enqueued retries.
type memQueue struct {
	mu    sync.Mutex
	users []string
}

func (q *memQueue) Enqueue(_ context.Context, userID string, _ error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.users = append(q.users, userID)
	return nil
}

func (q *memQueue) queued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.users...)
}

// failingTokens always fails with a store error.
type failingTokens struct{}

func (failingTokens) VerifyAndConsume(context.Context, string, accessgate.Action, string, string) (bool, error) {
	return false, errors.New("token store down")
}

// countingObserver tallies observations.
type countingObserver struct {
	mu       sync.Mutex
	verdicts map[string]int
	toggles  map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{verdicts: map[string]int{}, toggles: map[string]int{}}
}

func (o *countingObserver) Verdict(point string, v accessgate.Verdict) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := point + ":allow"
	if !v.Allowed {
		key = point + ":" + string(v.Reason)
	}
	o.verdicts[key]++
}

func (o *countingObserver) Toggle(action accessgate.Action, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.toggles[string(action)+":"+outcome]++
}

func (o *countingObserver) Revoked(int64, error) {}
