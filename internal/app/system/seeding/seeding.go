// internal/app/system/seeding/seeding.go
package seeding

import (
	"context"
	"errors"
	"fmt"

	settingsstore "github.com/dalemusser/stratagate/internal/app/store/settings"
	userstore "github.com/dalemusser/stratagate/internal/app/store/users"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Admin describes the privileged account to guarantee at startup. An empty
// LoginID skips admin seeding.
type Admin struct {
	LoginID      string
	Name         string
	PasswordHash string // bcrypt; empty means trust login (dev only)
}

// SeedAll writes default data that the service expects to exist.
func SeedAll(ctx context.Context, db *mongo.Database, admin Admin, logger *zap.Logger) error {
	if err := seedListSettings(ctx, db, logger); err != nil {
		return fmt.Errorf("seed list settings: %w", err)
	}
	if admin.LoginID != "" {
		if err := seedSuperAdmin(ctx, db, admin, logger); err != nil {
			return fmt.Errorf("seed super admin: %w", err)
		}
	}
	return nil
}

func seedListSettings(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	created, err := settingsstore.New(db).EnsureGlobal(ctx)
	if err != nil {
		return err
	}
	if created {
		logger.Info("seeded global user list settings")
	}
	return nil
}

// seedSuperAdmin promotes an existing user or creates a new one. The super
// admin flag is only ever set here.
func seedSuperAdmin(ctx context.Context, db *mongo.Database, admin Admin, logger *zap.Logger) error {
	users := userstore.New(db)

	existing, err := users.GetByLoginID(ctx, admin.LoginID)
	switch {
	case err == nil:
		if existing.SuperAdmin && existing.Status == "active" {
			logger.Debug("super admin already configured", zap.String("login_id", admin.LoginID))
			return nil
		}
		if err := users.SetSuperAdmin(ctx, existing.ID); err != nil {
			return err
		}
		logger.Info("promoted existing user to super admin",
			zap.String("login_id", admin.LoginID),
			zap.String("user_id", existing.ID.Hex()))
		return nil
	case !errors.Is(err, mongo.ErrNoDocuments):
		return err
	}

	name := admin.Name
	if name == "" {
		name = "Admin"
	}
	in := userstore.CreateInput{
		FullName:   name,
		LoginID:    admin.LoginID,
		Role:       models.RoleAdmin,
		SuperAdmin: true,
		AuthMethod: models.AuthMethodTrust,
	}
	if admin.PasswordHash != "" {
		in.AuthMethod = models.AuthMethodPassword
		in.PasswordHash = &admin.PasswordHash
	}

	u, err := users.CreateFromInput(ctx, in)
	if err != nil {
		return err
	}
	logger.Info("created super admin",
		zap.String("login_id", admin.LoginID),
		zap.String("user_id", u.ID.Hex()),
		zap.String("auth_method", u.AuthMethod))
	return nil
}
