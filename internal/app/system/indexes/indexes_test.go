package indexes_test

import (
	"testing"

	"github.com/dalemusser/stratagate/internal/app/system/indexes"
	"github.com/dalemusser/stratagate/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func indexNames(t *testing.T, coll *mongo.Collection) map[string]bson.M {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		t.Fatalf("list indexes: %v", err)
	}
	var specs []bson.M
	if err := cur.All(ctx, &specs); err != nil {
		t.Fatalf("decode indexes: %v", err)
	}
	out := make(map[string]bson.M, len(specs))
	for _, s := range specs {
		out[s["name"].(string)] = s
	}
	return out
}

func TestEnsureAll_CreatesIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)

	tests := []struct {
		collection string
		name       string
		unique     bool
		ttl        bool
	}{
		{"users", "uniq_users_login_ci", true, false},
		{"sessions", "uniq_session_token", true, false},
		{"sessions", "ttl_session_expires", false, true},
		{"action_tokens", "uniq_action_token_hash", true, false},
		{"action_tokens", "ttl_action_token_expires", false, true},
		{"user_list_settings", "uniq_list_settings_tenant", true, false},
		{"pending_revocations", "uniq_pending_revocation_user", true, false},
		{"audit_logs", "idx_audit_created", false, false},
		{"login_lockouts", "uniq_login_lockout_login", true, false},
		{"login_lockouts", "ttl_login_lockout_last_attempt", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.collection+"/"+tt.name, func(t *testing.T) {
			specs := indexNames(t, db.Collection(tt.collection))
			spec, ok := specs[tt.name]
			if !ok {
				t.Fatalf("index %s missing; have %v", tt.name, specs)
			}
			if unique, _ := spec["unique"].(bool); unique != tt.unique {
				t.Errorf("unique = %v, want %v", unique, tt.unique)
			}
			if _, hasTTL := spec["expireAfterSeconds"]; hasTTL != tt.ttl {
				t.Errorf("ttl = %v, want %v", hasTTL, tt.ttl)
			}
		})
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// SetupTestDB already ran EnsureAll once.
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("second EnsureAll: %v", err)
	}
}

func TestUsersLoginIndex_AllowsMissingLogin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := db.Collection("users")
	if _, err := users.InsertOne(ctx, bson.M{"full_name": "No Login 1"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := users.InsertOne(ctx, bson.M{"full_name": "No Login 2"}); err != nil {
		t.Fatalf("second user without login should be allowed: %v", err)
	}

	if _, err := users.InsertOne(ctx, bson.M{"login_id_ci": "dup"}); err != nil {
		t.Fatal(err)
	}
	_, err := users.InsertOne(ctx, bson.M{"login_id_ci": "dup"})
	if !mongo.IsDuplicateKeyError(err) {
		t.Errorf("duplicate login should be rejected, got %v", err)
	}
}
