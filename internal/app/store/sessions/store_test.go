package sessions

import (
	"testing"
	"time"

	"github.com/dalemusser/stratagate/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func openSession(token string, userID primitive.ObjectID) Session {
	return Session{
		Token:     token,
		UserID:    userID,
		IPAddress: "192.168.1.1",
		UserAgent: "Mozilla/5.0",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sess := openSession("test-token-123", primitive.NewObjectID())
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var got Session
	if err := db.Collection("sessions").FindOne(ctx, bson.M{"token": "test-token-123"}).Decode(&got); err != nil {
		t.Fatalf("read session: %v", err)
	}
	if got.UserID != sess.UserID || got.IPAddress != sess.IPAddress {
		t.Errorf("stored session = %+v", got)
	}
	if got.LoginAt.IsZero() || got.LastActivity.IsZero() {
		t.Error("Create() did not default LoginAt and LastActivity")
	}
}

func TestStore_Create_DuplicateToken(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	uid := primitive.NewObjectID()
	if err := store.Create(ctx, openSession("dup", uid)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(ctx, openSession("dup", uid)); !mongo.IsDuplicateKeyError(err) {
		t.Errorf("Create() duplicate error = %v, want duplicate key", err)
	}
}

func TestStore_IsOpen(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	uid := primitive.NewObjectID()
	_ = store.Create(ctx, openSession("live", uid))
	expired := openSession("expired", uid)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	_ = store.Create(ctx, expired)
	_ = store.Create(ctx, openSession("closed", uid))
	if err := store.Close(ctx, "closed", EndReasonLogout); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	tests := []struct {
		token string
		want  bool
	}{
		{"live", true},
		{"expired", false},
		{"closed", false},
		{"missing", false},
	}
	for _, tt := range tests {
		got, err := store.IsOpen(ctx, tt.token)
		if err != nil {
			t.Fatalf("IsOpen(%q) error = %v", tt.token, err)
		}
		if got != tt.want {
			t.Errorf("IsOpen(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestStore_RevokeAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	target := primitive.NewObjectID()
	other := primitive.NewObjectID()
	_ = store.Create(ctx, openSession("t1", target))
	_ = store.Create(ctx, openSession("t2", target))
	_ = store.Create(ctx, openSession("o1", other))

	n, err := store.RevokeAll(ctx, target.Hex())
	if err != nil {
		t.Fatalf("RevokeAll() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RevokeAll() = %d, want 2", n)
	}

	if open, _ := store.IsOpen(ctx, "t1"); open {
		t.Error("revoked session still open")
	}
	if open, _ := store.IsOpen(ctx, "o1"); !open {
		t.Error("other user's session was closed")
	}

	var doc Session
	if err := db.Collection("sessions").FindOne(ctx, bson.M{"token": "t2"}).Decode(&doc); err != nil {
		t.Fatalf("read session: %v", err)
	}
	if doc.EndReason != EndReasonRevoked || doc.LogoutAt == nil {
		t.Errorf("revoked session = %+v, want end_reason %q", doc, EndReasonRevoked)
	}

	// Second call finds nothing left to close.
	n, err = store.RevokeAll(ctx, target.Hex())
	if err != nil || n != 0 {
		t.Errorf("second RevokeAll() = (%d, %v), want (0, nil)", n, err)
	}

	if n, err := store.RevokeAll(ctx, "not-an-id"); n != 0 || err != nil {
		t.Errorf("RevokeAll(malformed) = (%d, %v)", n, err)
	}
}

func TestStore_GetActiveByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	uid := primitive.NewObjectID()
	_ = store.Create(ctx, openSession("a", uid))
	_ = store.Create(ctx, openSession("b", uid))
	_ = store.Close(ctx, "b", EndReasonLogout)

	active, err := store.GetActiveByUser(ctx, uid)
	if err != nil {
		t.Fatalf("GetActiveByUser() error = %v", err)
	}
	if len(active) != 1 || active[0].Token != "a" {
		t.Errorf("GetActiveByUser() = %v, want [a]", active)
	}
}

func TestStore_CloseInactiveSessions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	uid := primitive.NewObjectID()
	stale := openSession("stale", uid)
	stale.LastActivity = time.Now().Add(-2 * time.Hour)
	_ = store.Create(ctx, stale)
	_ = store.Create(ctx, openSession("fresh", uid))

	n, err := store.CloseInactiveSessions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CloseInactiveSessions() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CloseInactiveSessions() = %d, want 1", n)
	}
	if open, _ := store.IsOpen(ctx, "fresh"); !open {
		t.Error("fresh session closed")
	}
}

func lastActivity(t *testing.T, db *mongo.Database, token string) time.Time {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	var doc Session
	if err := db.Collection("sessions").FindOne(ctx, bson.M{"token": token}).Decode(&doc); err != nil {
		t.Fatalf("read session %q: %v", token, err)
	}
	return doc.LastActivity
}

func TestStore_Touch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	uid := primitive.NewObjectID()
	idle := openSession("idle", uid)
	idle.LastActivity = time.Now().Add(-10 * time.Minute)
	_ = store.Create(ctx, idle)
	recent := openSession("recent", uid)
	recent.LastActivity = time.Now().Add(-10 * time.Second)
	_ = store.Create(ctx, recent)

	before := lastActivity(t, db, "recent")
	for _, token := range []string{"idle", "recent", "missing"} {
		if err := store.Touch(ctx, token); err != nil {
			t.Fatalf("Touch(%q) error = %v", token, err)
		}
	}

	if got := lastActivity(t, db, "idle"); time.Since(got) > time.Minute {
		t.Errorf("idle last_activity = %v, want refreshed", got)
	}
	if got := lastActivity(t, db, "recent"); !got.Equal(before) {
		t.Errorf("recent last_activity = %v, want unchanged %v", got, before)
	}
}

// A session that keeps being used outlives the idle sweep.
func TestStore_TouchKeepsSessionOpen(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	uid := primitive.NewObjectID()
	for _, token := range []string{"active", "abandoned"} {
		s := openSession(token, uid)
		s.LastActivity = time.Now().Add(-45 * time.Minute)
		_ = store.Create(ctx, s)
	}

	if err := store.Touch(ctx, "active"); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	n, err := store.CloseInactiveSessions(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("CloseInactiveSessions() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CloseInactiveSessions() = %d, want 1", n)
	}
	if open, _ := store.IsOpen(ctx, "active"); !open {
		t.Error("active session closed by idle sweep")
	}
	if open, _ := store.IsOpen(ctx, "abandoned"); open {
		t.Error("abandoned session still open")
	}
}
