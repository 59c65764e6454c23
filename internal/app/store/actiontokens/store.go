// internal/app/store/actiontokens/store.go
package actiontokens

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/actiontoken"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// doc is the stored form of an action token. Only the hash of the token
// value is kept.
type doc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Hash      string             `bson:"token_hash"`
	Action    string             `bson:"action"`
	TargetID  string             `bson:"target_id"`
	IssuedTo  string             `bson:"issued_to"`
	ExpiresAt time.Time          `bson:"expires_at"`
	CreatedAt time.Time          `bson:"created_at"`
}

// Store keeps action tokens in the action_tokens collection. A TTL index on
// expires_at lets MongoDB drop stale tokens on its own; PurgeExpired covers
// the gap until the TTL monitor runs.
type Store struct {
	c *mongo.Collection
}

var _ actiontoken.Store = (*Store)(nil)

// New creates a Store on db.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("action_tokens")}
}

// Put inserts rec.
func (s *Store) Put(ctx context.Context, rec actiontoken.Record) error {
	_, err := s.c.InsertOne(ctx, doc{
		ID:        primitive.NewObjectID(),
		Hash:      rec.Hash,
		Action:    rec.Action,
		TargetID:  rec.TargetID,
		IssuedTo:  rec.IssuedTo,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	})
	return err
}

// Take deletes and reports the token matching every binding. Concurrent
// callers race on a single FindOneAndDelete, so at most one wins.
func (s *Store) Take(ctx context.Context, hash, action, targetID, presentedBy string, now time.Time) (bool, error) {
	filter := bson.M{
		"token_hash": hash,
		"action":     action,
		"target_id":  targetID,
		"issued_to":  presentedBy,
		"expires_at": bson.M{"$gt": now},
	}
	opts := options.FindOneAndDelete().SetProjection(bson.M{"_id": 1})
	err := s.c.FindOneAndDelete(ctx, filter, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PurgeExpired removes tokens whose expiry is at or before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
