// internal/app/store/sessions/store.go
package sessions

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Session end reasons
const (
	EndReasonLogout   = "logout"   // User explicitly logged out
	EndReasonExpired  = "expired"  // Session expired via TTL
	EndReasonInactive = "inactive" // Closed due to inactivity
	EndReasonRevoked  = "revoked"  // Closed because the account was disabled
)

// Session is the server-side record behind a session cookie. The cookie holds
// the token; a session is open while LogoutAt is nil and ExpiresAt is ahead.
type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Token     string             `bson:"token"`
	UserID    primitive.ObjectID `bson:"user_id"`
	IPAddress string             `bson:"ip_address,omitempty"`
	UserAgent string             `bson:"user_agent,omitempty"`

	LoginAt      time.Time  `bson:"login_at"`
	LogoutAt     *time.Time `bson:"logout_at,omitempty"`
	LastActivity time.Time  `bson:"last_activity"`
	EndReason    string     `bson:"end_reason,omitempty"`

	ExpiresAt time.Time `bson:"expires_at"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store manages session records in MongoDB.
type Store struct {
	c *mongo.Collection
}

// New creates a new session Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sessions")}
}

func openFilter() bson.M {
	return bson.M{
		"logout_at":  nil,
		"expires_at": bson.M{"$gt": time.Now()},
	}
}

// Create creates a new session.
func (s *Store) Create(ctx context.Context, session Session) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.LoginAt.IsZero() {
		session.LoginAt = now
	}
	if session.LastActivity.IsZero() {
		session.LastActivity = now
	}
	_, err := s.c.InsertOne(ctx, session)
	return err
}

// IsOpen reports whether token names an open session.
func (s *Store) IsOpen(ctx context.Context, token string) (bool, error) {
	filter := openFilter()
	filter["token"] = token
	n, err := s.c.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close ends a session with a reason. The record is kept for audit.
func (s *Store) Close(ctx context.Context, token string, reason string) error {
	now := time.Now()
	_, err := s.c.UpdateOne(ctx,
		bson.M{"token": token, "logout_at": nil},
		bson.M{"$set": bson.M{
			"logout_at":  now,
			"end_reason": reason,
			"updated_at": now,
		}},
	)
	return err
}

// CloseByUser closes all open sessions for a user and returns how many it closed.
func (s *Store) CloseByUser(ctx context.Context, userID primitive.ObjectID, reason string) (int64, error) {
	now := time.Now()
	res, err := s.c.UpdateMany(ctx,
		bson.M{"user_id": userID, "logout_at": nil},
		bson.M{"$set": bson.M{
			"logout_at":  now,
			"end_reason": reason,
			"updated_at": now,
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// RevokeAll closes every open session of a user. A malformed id has no
// sessions.
func (s *Store) RevokeAll(ctx context.Context, userID string) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, nil
	}
	return s.CloseByUser(ctx, oid, EndReasonRevoked)
}

// TouchInterval is the resolution of last_activity. Touch skips the write
// while the recorded activity is more recent than this.
const TouchInterval = time.Minute

// Touch records activity on an open session. It writes at most once per
// TouchInterval per session.
func (s *Store) Touch(ctx context.Context, token string) error {
	now := time.Now()
	_, err := s.c.UpdateOne(ctx,
		bson.M{
			"token":         token,
			"logout_at":     nil,
			"last_activity": bson.M{"$lt": now.Add(-TouchInterval)},
		},
		bson.M{"$set": bson.M{"last_activity": now, "updated_at": now}},
	)
	return err
}

// GetActiveByUser retrieves all open sessions for a user, most recent first.
func (s *Store) GetActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]Session, error) {
	filter := openFilter()
	filter["user_id"] = userID
	cursor, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CloseInactiveSessions closes sessions that haven't had activity within the threshold.
// Returns the number of sessions closed.
func (s *Store) CloseInactiveSessions(ctx context.Context, threshold time.Duration) (int64, error) {
	now := time.Now()
	result, err := s.c.UpdateMany(ctx,
		bson.M{
			"logout_at":     nil,
			"last_activity": bson.M{"$lt": now.Add(-threshold)},
		},
		bson.M{"$set": bson.M{
			"logout_at":  now,
			"end_reason": EndReasonInactive,
			"updated_at": now,
		}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}
