// internal/app/store/users/fetcher.go
package userstore

import (
	"context"
	"errors"

	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/normalize"
	"github.com/dalemusser/stratagate/internal/app/system/timeouts"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// sessionUserProjection is what the session middleware needs per request.
var sessionUserProjection = bson.M{
	"full_name":   1,
	"login_id":    1,
	"role":        1,
	"super_admin": 1,
	"tenant_id":   1,
}

// Fetcher is the auth.UserFetcher backed by the user collection. It does not
// look at status: the session manager asks the access gate for that.
type Fetcher struct {
	store  *Store
	logger *zap.Logger
}

func NewFetcher(db *mongo.Database, logger *zap.Logger) *Fetcher {
	return &Fetcher{store: New(db), logger: logger}
}

// FetchUser returns nil for malformed IDs, missing users and store errors.
// Only the last is logged.
func (f *Fetcher) FetchUser(ctx context.Context, userID string) *auth.SessionUser {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), f.logger, "fetch session user")
	defer cancel()

	var u models.User
	err = f.store.c.FindOne(ctx, bson.M{"_id": oid},
		options.FindOne().SetProjection(sessionUserProjection)).Decode(&u)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil
	case err != nil:
		f.logger.Warn("fetch session user failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return sessionUserOf(&u)
}

func sessionUserOf(u *models.User) *auth.SessionUser {
	return &auth.SessionUser{
		ID:         u.ID.Hex(),
		Name:       u.FullName,
		LoginID:    u.Login(),
		Role:       normalize.Role(u.Role),
		TenantID:   u.TenantID,
		SuperAdmin: u.SuperAdmin,
	}
}
