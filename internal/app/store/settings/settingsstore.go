// internal/app/store/settings/settingsstore.go
package settingsstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratagate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GlobalTenant is the tenant key of the document that applies when a tenant
// has no settings of its own.
const GlobalTenant = ""

// Store provides access to the user_list_settings collection, one document
// per tenant.
type Store struct {
	c *mongo.Collection
}

// New creates a new settings store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("user_list_settings")}
}

// Defaults returns the settings used when nothing is stored.
func Defaults() *models.UserListSettings {
	return &models.UserListSettings{DisabledNotice: models.DefaultDisabledNotice}
}

// Get returns the document stored for tenantID, if any.
func (s *Store) Get(ctx context.Context, tenantID string) (*models.UserListSettings, bool, error) {
	var settings models.UserListSettings
	err := s.c.FindOne(ctx, bson.M{"tenant_id": tenantID}).Decode(&settings)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &settings, true, nil
}

// Effective returns the tenant's settings, falling back to the global
// document and then to Defaults.
func (s *Store) Effective(ctx context.Context, tenantID string) (*models.UserListSettings, error) {
	if tenantID != GlobalTenant {
		settings, found, err := s.Get(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if found {
			return settings, nil
		}
	}
	settings, found, err := s.Get(ctx, GlobalTenant)
	if err != nil {
		return nil, err
	}
	if !found {
		d := Defaults()
		d.TenantID = tenantID
		return d, nil
	}
	return settings, nil
}

// Save upserts the settings for settings.TenantID.
func (s *Store) Save(ctx context.Context, settings models.UserListSettings) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"tenant_id":                settings.TenantID,
			"hide_disabled_by_default": settings.HideDisabledByDefault,
			"disabled_notice":          settings.DisabledNotice,
			"notify_user_on_disable":   settings.NotifyUserOnDisable,
			"notify_user_on_enable":    settings.NotifyUserOnEnable,
			"updated_at":               now,
			"updated_by_id":            settings.UpdatedByID,
			"updated_by_name":          settings.UpdatedByName,
		},
		"$setOnInsert": bson.M{
			"_id": primitive.NewObjectID(),
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.c.UpdateOne(ctx, bson.M{"tenant_id": settings.TenantID}, update, opts)
	return err
}

// EnsureGlobal writes the default global document when none exists and
// reports whether it did.
func (s *Store) EnsureGlobal(ctx context.Context) (bool, error) {
	d := Defaults()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"tenant_id": GlobalTenant},
		bson.M{"$setOnInsert": bson.M{
			"_id":                      primitive.NewObjectID(),
			"tenant_id":                GlobalTenant,
			"hide_disabled_by_default": d.HideDisabledByDefault,
			"disabled_notice":          d.DisabledNotice,
			"notify_user_on_disable":   false,
			"notify_user_on_enable":    false,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}
