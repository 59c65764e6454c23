package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/status"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserFixture describes a user inserted directly into the users collection.
type UserFixture struct {
	Name         string
	LoginID      string
	Email        string
	Role         string
	TenantID     string
	Disabled     bool
	SuperAdmin   bool
	PasswordHash string
}

// InsertUser writes f to the users collection and returns its ID.
func InsertUser(t *testing.T, db *mongo.Database, f UserFixture) primitive.ObjectID {
	t.Helper()
	if f.Role == "" {
		f.Role = "user"
	}
	if f.Name == "" {
		f.Name = f.LoginID
	}
	id := primitive.NewObjectID()
	now := time.Now()
	doc := bson.M{
		"_id":          id,
		"full_name":    f.Name,
		"full_name_ci": text.Fold(f.Name),
		"login_id":     f.LoginID,
		"login_id_ci":  text.Fold(f.LoginID),
		"auth_method":  "password",
		"role":         f.Role,
		"status":       status.For(f.Disabled),
		"super_admin":  f.SuperAdmin,
		"created_at":   now,
		"updated_at":   now,
	}
	if f.TenantID != "" {
		doc["tenant_id"] = f.TenantID
	}
	if f.Email != "" {
		doc["email"] = f.Email
	}
	if f.PasswordHash != "" {
		doc["password_hash"] = f.PasswordHash
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.Collection("users").InsertOne(ctx, doc); err != nil {
		t.Fatalf("insert user fixture: %v", err)
	}
	return id
}

// UserStatus reads the stored status of a user.
func UserStatus(t *testing.T, db *mongo.Database, id primitive.ObjectID) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var doc struct {
		Status string `bson:"status"`
	}
	if err := db.Collection("users").FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		t.Fatalf("read user status: %v", err)
	}
	return doc.Status
}
