// internal/app/store/ratelimit/store.go
package ratelimit

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"fmt"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection holds one counter document per login id.
const Collection = "login_lockouts"

// Attempt counts failed passwords for one login id within a window.
type Attempt struct {
	LoginID      string     `bson:"login_id"` // folded, see text.Fold
	AttemptCount int        `bson:"attempt_count"`
	WindowStart  time.Time  `bson:"window_start"`
	LockedUntil  *time.Time `bson:"locked_until"`
	LastAttempt  time.Time  `bson:"last_attempt"` // TTL anchor
	CreatedAt    time.Time  `bson:"created_at"`
}

// Lockout is the state of a login id as seen by the login handler.
type Lockout struct {
	Locked    bool
	Until     time.Time
	Remaining int
}

// Store locks a login id out after maxAttempts failed passwords inside window.
// Unlike the in-memory throttle it survives restarts and is shared between
// instances.
type Store struct {
	c           *mongo.Collection
	maxAttempts int
	window      time.Duration
	lockout     time.Duration
	now         func() time.Time
}

// New creates a Store. A non-positive maxAttempts disables lockouts.
func New(db *mongo.Database, maxAttempts int, window, lockout time.Duration) *Store {
	return &Store{
		c:           db.Collection(Collection),
		maxAttempts: maxAttempts,
		window:      window,
		lockout:     lockout,
		now:         time.Now,
	}
}

// Enabled reports whether failures are counted at all.
func (s *Store) Enabled() bool { return s != nil && s.maxAttempts > 0 }

func key(loginID string) string { return text.Fold(loginID) }

// Status reports whether loginID is currently locked out.
func (s *Store) Status(ctx context.Context, loginID string) (Lockout, error) {
	if !s.Enabled() {
		return Lockout{Remaining: -1}, nil
	}
	now := s.now()

	var a Attempt
	err := s.c.FindOne(ctx, bson.M{"login_id": key(loginID)}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Lockout{Remaining: s.maxAttempts}, nil
	}
	if err != nil {
		return Lockout{}, fmt.Errorf("read lockout: %w", err)
	}
	return s.stateOf(a, now), nil
}

func (s *Store) stateOf(a Attempt, now time.Time) Lockout {
	if a.LockedUntil != nil && now.Before(*a.LockedUntil) {
		return Lockout{Locked: true, Until: *a.LockedUntil}
	}
	if now.After(a.WindowStart.Add(s.window)) {
		return Lockout{Remaining: s.maxAttempts}
	}
	remaining := s.maxAttempts - a.AttemptCount
	if remaining < 0 {
		remaining = 0
	}
	return Lockout{Remaining: remaining}
}

// Fail records a failed password for loginID and returns the resulting state.
// The failure that reaches maxAttempts starts the lockout.
func (s *Store) Fail(ctx context.Context, loginID string) (Lockout, error) {
	if !s.Enabled() {
		return Lockout{Remaining: -1}, nil
	}
	k := key(loginID)
	now := s.now()

	// An expired window or lockout starts counting from zero.
	_, err := s.c.UpdateOne(ctx,
		bson.M{
			"login_id":     k,
			"window_start": bson.M{"$lt": now.Add(-s.window)},
			"$or": bson.A{
				bson.M{"locked_until": nil},
				bson.M{"locked_until": bson.M{"$lte": now}},
			},
		},
		bson.M{"$set": bson.M{"attempt_count": 0, "window_start": now, "locked_until": nil}},
	)
	if err != nil {
		return Lockout{}, fmt.Errorf("reset lockout window: %w", err)
	}

	a, err := s.increment(ctx, k, now)
	if wafflemongo.IsDup(err) {
		// lost the upsert race; the document exists now
		a, err = s.increment(ctx, k, now)
	}
	if err != nil {
		return Lockout{}, fmt.Errorf("record login failure: %w", err)
	}

	if a.AttemptCount >= s.maxAttempts && (a.LockedUntil == nil || !now.Before(*a.LockedUntil)) {
		until := now.Add(s.lockout)
		if _, err := s.c.UpdateOne(ctx, bson.M{"login_id": k}, bson.M{"$set": bson.M{"locked_until": until}}); err != nil {
			return Lockout{}, fmt.Errorf("start lockout: %w", err)
		}
		return Lockout{Locked: true, Until: until}, nil
	}
	return s.stateOf(a, now), nil
}

func (s *Store) increment(ctx context.Context, k string, now time.Time) (Attempt, error) {
	var a Attempt
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"login_id": k},
		bson.M{
			"$inc":         bson.M{"attempt_count": 1},
			"$set":         bson.M{"last_attempt": now},
			"$setOnInsert": bson.M{"window_start": now, "locked_until": nil, "created_at": now},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&a)
	return a, err
}

// Clear forgets all failures for loginID. Called after a successful login.
func (s *Store) Clear(ctx context.Context, loginID string) error {
	if !s.Enabled() {
		return nil
	}
	if _, err := s.c.DeleteOne(ctx, bson.M{"login_id": key(loginID)}); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}
