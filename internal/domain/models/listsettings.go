// internal/domain/models/listsettings.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultDisabledNotice is shown on the login page after a disabled account is turned away.
const DefaultDisabledNotice = "Account disabled"

// UserListSettings holds the admin-editable preferences for the user list and
// the disabled-login notice. One document per tenant; TenantID "" is the global
// document that applies when a tenant has none of its own.
type UserListSettings struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	TenantID string             `bson:"tenant_id" json:"tenant_id"`

	// HideDisabledByDefault hides disabled users from the list unless the
	// viewer flips the per-request override.
	HideDisabledByDefault bool `bson:"hide_disabled_by_default" json:"hide_disabled_by_default"`

	// DisabledNotice is sanitized HTML shown at /login?disabled=1.
	DisabledNotice string `bson:"disabled_notice,omitempty" json:"disabled_notice"`

	// Opt-in email notifications sent after a successful toggle.
	NotifyUserOnDisable bool `bson:"notify_user_on_disable" json:"notify_user_on_disable"`
	NotifyUserOnEnable  bool `bson:"notify_user_on_enable" json:"notify_user_on_enable"`

	UpdatedAt     *time.Time          `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
	UpdatedByID   *primitive.ObjectID `bson:"updated_by_id,omitempty" json:"updated_by_id,omitempty"`
	UpdatedByName string              `bson:"updated_by_name,omitempty" json:"updated_by_name,omitempty"`
}

// Notice returns the configured notice or the default one.
func (s *UserListSettings) Notice() string {
	if s.DisabledNotice == "" {
		return DefaultDisabledNotice
	}
	return s.DisabledNotice
}
