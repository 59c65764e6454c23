package actiontoken

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps tokens in process memory. Tokens do not survive a restart
// and are not shared between instances.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record)}
}

func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.Hash] = rec
	return nil
}

func (m *MemoryStore) Take(_ context.Context, hash, action, targetID, presentedBy string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[hash]
	if !ok {
		return false, nil
	}
	if rec.Action != action || rec.TargetID != targetID || rec.IssuedTo != presentedBy {
		return false, nil
	}
	if !rec.ExpiresAt.After(now) {
		return false, nil
	}
	delete(m.recs, hash)
	return true, nil
}

func (m *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, rec := range m.recs {
		if !rec.ExpiresAt.After(now) {
			delete(m.recs, h)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored tokens.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}
