// internal/app/store/users/status.go
package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/status"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// identityProjection is the subset of a user the access gate reads.
var identityProjection = bson.M{
	"_id":         1,
	"full_name":   1,
	"login_id":    1,
	"email":       1,
	"status":      1,
	"super_admin": 1,
	"tenant_id":   1,
}

func identityOf(u *models.User) accessgate.Identity {
	id := accessgate.Identity{
		ID:         u.ID.Hex(),
		LoginID:    u.Login(),
		Name:       u.FullName,
		TenantID:   u.TenantID,
		Privileged: u.SuperAdmin,
		Disabled:   u.IsDisabled(),
	}
	if u.Email != nil {
		id.Email = *u.Email
	}
	return id
}

func (s *Store) findIdentity(ctx context.Context, filter bson.M) (accessgate.Identity, bool, error) {
	var u models.User
	err := s.c.FindOne(ctx, filter, options.FindOne().SetProjection(identityProjection)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return accessgate.Identity{}, false, nil
	}
	if err != nil {
		return accessgate.Identity{}, false, err
	}
	return identityOf(&u), true, nil
}

// Lookup loads the gate's view of a user by hex ObjectID. A malformed id is
// reported as not found.
func (s *Store) Lookup(ctx context.Context, id string) (accessgate.Identity, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return accessgate.Identity{}, false, nil
	}
	return s.findIdentity(ctx, bson.M{"_id": oid})
}

// Resolve accepts either a hex ObjectID or a login ID.
func (s *Store) Resolve(ctx context.Context, loginOrID string) (accessgate.Identity, bool, error) {
	if oid, err := primitive.ObjectIDFromHex(loginOrID); err == nil {
		ident, found, err := s.findIdentity(ctx, bson.M{"_id": oid})
		if err != nil || found {
			return ident, found, err
		}
	}
	if loginOrID == "" {
		return accessgate.Identity{}, false, nil
	}
	return s.findIdentity(ctx, bson.M{"login_id_ci": text.Fold(loginOrID)})
}

// SetDisabled writes the status flag in one atomic update and returns the
// post-write identity. Disabling filters out super admins, so a concurrent
// promotion can never be overwritten.
func (s *Store) SetDisabled(ctx context.Context, id string, disabled bool) (accessgate.Identity, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return accessgate.Identity{}, accessgate.ErrUnknownIdentity
	}

	filter := bson.M{"_id": oid}
	if disabled {
		filter["super_admin"] = bson.M{"$ne": true}
	}
	update := bson.M{"$set": bson.M{
		"status":     status.For(disabled),
		"updated_at": time.Now(),
	}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(identityProjection)

	var u models.User
	err = s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if !disabled {
			return accessgate.Identity{}, accessgate.ErrUnknownIdentity
		}
		_, found, lerr := s.Lookup(ctx, id)
		if lerr != nil {
			return accessgate.Identity{}, lerr
		}
		if found {
			return accessgate.Identity{}, accessgate.ErrProtectedIdentity
		}
		return accessgate.Identity{}, accessgate.ErrUnknownIdentity
	}
	if err != nil {
		return accessgate.Identity{}, err
	}
	return identityOf(&u), nil
}

// IDCursor streams user IDs without loading the full set.
type IDCursor struct {
	cur *mongo.Cursor
	id  string
	err error
}

// Next advances the cursor. It returns false at the end or on error.
func (c *IDCursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.cur.Next(ctx) {
		return false
	}
	var doc struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := c.cur.Decode(&doc); err != nil {
		c.err = err
		return false
	}
	c.id = doc.ID.Hex()
	return true
}

// ID returns the current user ID.
func (c *IDCursor) ID() string { return c.id }

// Err returns the first error seen while iterating.
func (c *IDCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *IDCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }

// ListByStatus returns a cursor over the IDs of users with the given flag,
// optionally scoped to a tenant, in _id order.
func (s *Store) ListByStatus(ctx context.Context, disabled bool, tenantID string) (*IDCursor, error) {
	filter := bson.M{"status": status.For(disabled)}
	if tenantID != "" {
		filter["tenant_id"] = tenantID
	}
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetBatchSize(500)
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return &IDCursor{cur: cur}, nil
}
