// internal/domain/models/user.go
package models

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an identity that may hold sessions.
//
// Gate fields:
//   - Status: "active" or "disabled". Only the access gate flips it after creation.
//   - SuperAdmin: privileged identities can never be disabled. Only seeding sets it.
//   - TenantID: scopes list preferences in multi-tenant deployments (empty = global)
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"-"` // lowercase, diacritics-stripped

	LoginID    *string `bson:"login_id" json:"login_id"`       // User identifier (lowercase)
	LoginIDCI  *string `bson:"login_id_ci" json:"-"`           // Folded for case/diacritic-insensitive matching
	Email      *string `bson:"email" json:"email,omitempty"`   // Contact email (lowercase, optional)
	AuthMethod string  `bson:"auth_method" json:"auth_method"` // password, trust

	PasswordHash *string `bson:"password_hash,omitempty" json:"-"` // bcrypt hash (never in JSON)

	Role       string `bson:"role" json:"role"`
	Status     string `bson:"status" json:"status"`
	SuperAdmin bool   `bson:"super_admin,omitempty" json:"super_admin"`
	TenantID   string `bson:"tenant_id,omitempty" json:"tenant_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// User roles
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleUser      = "user"
)

// AllRoles returns all valid user roles.
func AllRoles() []string {
	return []string{
		RoleAdmin,
		RoleDeveloper,
		RoleUser,
	}
}

// IsValidRole checks if a role is valid.
func IsValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// IsDisabled reports whether the user's status is disabled.
func (u *User) IsDisabled() bool {
	return u.Status == "disabled"
}

// Login returns the login ID or an empty string.
func (u *User) Login() string {
	if u.LoginID == nil {
		return ""
	}
	return *u.LoginID
}
