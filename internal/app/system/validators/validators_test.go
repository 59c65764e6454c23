package validators

import (
	"errors"
	"slices"
	"testing"

	"github.com/dalemusser/stratagate/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func TestEnsureAll_CreatesCollections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatal(err)
	}
	for _, spec := range specs() {
		if !slices.Contains(names, spec.name) {
			t.Errorf("collection %s missing after EnsureAll", spec.name)
		}
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 2; i++ {
		if err := EnsureAll(ctx, db, zap.NewNop()); err != nil {
			t.Fatalf("EnsureAll() run %d error = %v", i+1, err)
		}
	}
}

func TestIsCommandError(t *testing.T) {
	exists := []int32{codeNamespaceExists}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unrelated", errors.New("boom"), false},
		{"code", mongo.CommandError{Code: 48, Message: "x"}, true},
		{"other code", mongo.CommandError{Code: 11000, Message: "dup"}, false},
		{"message", errors.New("Collection already exists. NS: gate.users"), true},
		{"wrapped code", errors.Join(errors.New("ctx"), mongo.CommandError{Code: 48}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCommandError(tt.err, exists, "already exists", "namespace exists"); got != tt.want {
				t.Errorf("isCommandError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnsupported(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{mongo.CommandError{Code: 59}, true},
		{mongo.CommandError{Code: 115}, true},
		{mongo.CommandError{Message: "Feature not supported: collMod"}, true},
		{errors.New("NO SUCH COMMAND"), true},
		{mongo.CommandError{Code: 121, Message: "Document failed validation"}, false},
	}
	for _, tt := range tests {
		if got := unsupported(tt.err); got != tt.want {
			t.Errorf("unsupported(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestUsersValidator_RejectsDisabledSuperAdmin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}

	base := func(status string, super bool) bson.M {
		return bson.M{
			"full_name":   "Root",
			"role":        "admin",
			"status":      status,
			"auth_method": "password",
			"super_admin": super,
		}
	}

	users := db.Collection("users")
	if _, err := users.InsertOne(ctx, base("active", true)); err != nil {
		t.Fatalf("active super admin should be accepted: %v", err)
	}
	if _, err := users.InsertOne(ctx, base("disabled", false)); err != nil {
		t.Fatalf("disabled regular user should be accepted: %v", err)
	}
	_, err := users.InsertOne(ctx, base("disabled", true))
	var we mongo.WriteException
	if !errors.As(err, &we) {
		t.Fatalf("disabled super admin should fail validation, got %v", err)
	}
}

func TestLoginLockoutsValidator(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}

	_, err := db.Collection("login_lockouts").InsertOne(ctx, bson.M{"login_id": "", "attempt_count": -1})
	var we mongo.WriteException
	if !errors.As(err, &we) {
		t.Fatalf("malformed lockout should fail validation, got %v", err)
	}
}
