// internal/app/store/revocations/store.go
package revocations

import (
	"context"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Pending is a user whose sessions still need to be revoked after a failed
// attempt. There is at most one per user.
type Pending struct {
	UserID        string    `bson:"user_id"`
	Attempts      int       `bson:"attempts"`
	LastError     string    `bson:"last_error,omitempty"`
	NextAttemptAt time.Time `bson:"next_attempt_at"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

// Store is the pending_revocations queue.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

var _ accessgate.RevocationQueue = (*Store)(nil)

// New creates a Store on db.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("pending_revocations"), now: time.Now}
}

// Enqueue schedules userID for an immediate retry. Enqueuing a user already
// in the queue refreshes the error and pulls the next attempt forward
// without resetting the attempt count.
func (s *Store) Enqueue(ctx context.Context, userID string, cause error) error {
	now := s.now().UTC()
	set := bson.M{"next_attempt_at": now, "updated_at": now}
	if cause != nil {
		set["last_error"] = cause.Error()
	}
	_, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"user_id": userID, "attempts": 0, "created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// Due returns up to limit entries whose next attempt is at or before now,
// oldest first.
func (s *Store) Due(ctx context.Context, now time.Time, limit int64) ([]Pending, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "next_attempt_at", Value: 1}}).
		SetLimit(limit)
	cur, err := s.c.Find(ctx, bson.M{"next_attempt_at": bson.M{"$lte": now}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Pending
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Done removes userID from the queue.
func (s *Store) Done(ctx context.Context, userID string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"user_id": userID})
	return err
}

// Reschedule records a failed attempt and sets the next one.
func (s *Store) Reschedule(ctx context.Context, userID string, attempts int, next time.Time, cause error) error {
	set := bson.M{
		"attempts":        attempts,
		"next_attempt_at": next,
		"updated_at":      s.now().UTC(),
	}
	if cause != nil {
		set["last_error"] = cause.Error()
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{"$set": set})
	return err
}

// Get returns the entry for userID, or nil if none is queued.
func (s *Store) Get(ctx context.Context, userID string) (*Pending, error) {
	var p Pending
	err := s.c.FindOne(ctx, bson.M{"user_id": userID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Count returns the queue length.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{})
}
