package login

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	errorsfeature "github.com/dalemusser/stratagate/internal/app/features/errors"
	"github.com/dalemusser/stratagate/internal/app/store/ratelimit"
	"github.com/dalemusser/stratagate/internal/app/store/sessions"
	settingsstore "github.com/dalemusser/stratagate/internal/app/store/settings"
	userstore "github.com/dalemusser/stratagate/internal/app/store/users"
	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/actiontoken"
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/throttle"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"github.com/dalemusser/stratagate/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct-horse-battery"

type fakeChecker struct {
	mu      sync.Mutex
	verdict *accessgate.Verdict
	calls   []string
}

func (f *fakeChecker) CheckLogin(_ context.Context, id string) accessgate.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.verdict != nil {
		return *f.verdict
	}
	return accessgate.Allow(id)
}

func (f *fakeChecker) deny(reason accessgate.Reason) {
	v := accessgate.Deny(reason, "")
	f.verdict = &v
}

type fixture struct {
	db    *mongo.Database
	h     *Handler
	gate  *fakeChecker
	smgr  *auth.SessionManager
	alice primitive.ObjectID
}

func hash(t *testing.T, pw string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(b)
}

func newFixture(t *testing.T, limiter *throttle.Limiter, lockouts func(*mongo.Database) *ratelimit.Store) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	smgr, err := auth.NewSessionManager("test-session-key-that-is-32-chars-long", "", "", time.Hour, false, logger)
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}

	var ls *ratelimit.Store
	if lockouts != nil {
		ls = lockouts(db)
	}

	f := &fixture{db: db, gate: &fakeChecker{}, smgr: smgr}
	f.h = NewHandler(db, smgr, f.gate, limiter, ls, nil, errorsfeature.NewErrorLogger(logger), Options{}, logger)
	f.alice = testutil.InsertUser(t, db, testutil.UserFixture{
		Name:         "Alice",
		LoginID:      "alice",
		Email:        "alice@example.com",
		PasswordHash: hash(t, testPassword),
	})
	return f
}

func (f *fixture) post(req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	Routes(f.h).ServeHTTP(rec, req)
	return rec
}

func formLogin(loginID, password, ret string) *http.Request {
	form := "login_id=" + loginID + "&password=" + password
	if ret != "" {
		form += "&return=" + ret
	}
	return testutil.NewFormRequest(http.MethodPost, "/", form)
}

func openSessions(t *testing.T, db *mongo.Database, userID primitive.ObjectID) int64 {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	n, err := db.Collection("sessions").CountDocuments(ctx, bson.M{"user_id": userID, "logout_at": nil})
	if err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	return n
}

func hasCookie(rec *testutil.ResponseRecorder, name string) bool {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name && c.MaxAge >= 0 {
			return true
		}
	}
	return false
}

func TestLogin_Success(t *testing.T) {
	tests := []struct {
		name string
		ret  string
		want string
	}{
		{"default landing", "", "/admin/users"},
		{"safe return", "/admin/users/abc", "/admin/users/abc"},
		{"offsite return ignored", "https://evil.example/", "/admin/users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			rec := f.post(formLogin("Alice", testPassword, tt.ret))
			rec.AssertRedirect(t, tt.want)

			if !hasCookie(rec, f.smgr.SessionName()) {
				t.Error("session cookie not set")
			}
			if n := openSessions(t, f.db, f.alice); n != 1 {
				t.Errorf("open sessions = %d, want 1", n)
			}
			if len(f.gate.calls) != 1 || f.gate.calls[0] != f.alice.Hex() {
				t.Errorf("gate calls = %v, want [%s]", f.gate.calls, f.alice.Hex())
			}
		})
	}
}

func TestLogin_SuccessJSON(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.post(testutil.NewJSONRequest(t, http.MethodPost, "/", map[string]string{
		"login_id": "alice",
		"password": testPassword,
	}))
	rec.AssertStatus(t, http.StatusOK)

	var body map[string]string
	rec.DecodeJSON(t, &body)
	if body["user_id"] != f.alice.Hex() || body["redirect"] != "/admin/users" {
		t.Errorf("body = %v", body)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	tests := []struct {
		name    string
		loginID string
		pw      string
	}{
		{"unknown user", "mallory", testPassword},
		{"wrong password", "alice", "nope-nope-nope"},
		{"empty password", "alice", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			rec := f.post(testutil.NewJSONRequest(t, http.MethodPost, "/", map[string]string{
				"login_id": tt.loginID,
				"password": tt.pw,
			}))
			rec.AssertStatus(t, http.StatusUnauthorized)
			rec.AssertContains(t, codeInvalidCredentials)
			if len(f.gate.calls) != 0 {
				t.Error("gate consulted before credentials verified")
			}
			if n := openSessions(t, f.db, f.alice); n != 0 {
				t.Errorf("open sessions = %d, want 0", n)
			}
		})
	}
}

func TestLogin_MissingLoginID(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.post(formLogin("", "x", ""))
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "Enter your login ID.")
}

func TestLogin_GateDenies(t *testing.T) {
	t.Run("form redirects to notice", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.gate.deny(accessgate.ReasonAccountDisabled)
		rec := f.post(formLogin("alice", testPassword, ""))
		rec.AssertRedirect(t, DisabledPath)
		if hasCookie(rec, f.smgr.SessionName()) {
			t.Error("denied login must not set a live session cookie")
		}
		if n := openSessions(t, f.db, f.alice); n != 0 {
			t.Errorf("open sessions = %d, want 0", n)
		}
	})

	t.Run("json gets 403", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.gate.deny(accessgate.ReasonAccountDisabled)
		rec := f.post(testutil.NewJSONRequest(t, http.MethodPost, "/", map[string]string{
			"login_id": "alice",
			"password": testPassword,
		}))
		rec.AssertStatus(t, http.StatusForbidden)
		rec.AssertContains(t, codeAccountDisabled)
	})

	t.Run("store unavailable", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.gate.deny(accessgate.ReasonStoreUnavailable)
		rec := f.post(formLogin("alice", testPassword, ""))
		rec.AssertStatus(t, http.StatusServiceUnavailable)
	})
}

func TestLogin_RealGate(t *testing.T) {
	f := newFixture(t, nil, nil)
	gate, err := accessgate.New(accessgate.Config{
		Statuses: userstore.New(f.db),
		Sessions: sessions.New(f.db),
		Tokens:   actiontoken.NewIssuer(actiontoken.NewMemoryStore(), time.Minute),
	})
	if err != nil {
		t.Fatalf("accessgate.New() error = %v", err)
	}
	f.h.gate = gate

	bob := testutil.InsertUser(t, f.db, testutil.UserFixture{
		LoginID:      "bob",
		Disabled:     true,
		PasswordHash: hash(t, testPassword),
	})

	// wrong password on a disabled account still reads as bad credentials
	rec := f.post(formLogin("bob", "wrong-password", ""))
	rec.AssertStatus(t, http.StatusUnauthorized)

	rec = f.post(formLogin("bob", testPassword, ""))
	rec.AssertRedirect(t, DisabledPath)
	if n := openSessions(t, f.db, bob); n != 0 {
		t.Errorf("disabled user got %d sessions", n)
	}

	rec = f.post(formLogin("alice", testPassword, ""))
	rec.AssertRedirect(t, "/admin/users")
}

func TestLogin_Lockout(t *testing.T) {
	f := newFixture(t, nil, func(db *mongo.Database) *ratelimit.Store {
		return ratelimit.New(db, 2, time.Minute, time.Minute)
	})

	f.post(formLogin("alice", "wrong-one", "")).AssertStatus(t, http.StatusUnauthorized)
	f.post(formLogin("alice", "wrong-two", "")).AssertStatus(t, http.StatusUnauthorized)

	rec := f.post(formLogin("alice", testPassword, ""))
	rec.AssertStatus(t, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After not set")
	}
	if len(f.gate.calls) != 0 {
		t.Error("locked out login reached the gate")
	}
}

func TestLogin_LockoutClearedOnSuccess(t *testing.T) {
	f := newFixture(t, nil, func(db *mongo.Database) *ratelimit.Store {
		return ratelimit.New(db, 3, time.Minute, time.Minute)
	})

	f.post(formLogin("alice", "wrong-one", ""))
	f.post(formLogin("alice", testPassword, "")).AssertRedirect(t, "/admin/users")

	ctx, cancel := testutil.TestContext()
	defer cancel()
	st, err := f.h.lockouts.Status(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.Remaining != 3 {
		t.Errorf("Remaining = %d, want 3 after success", st.Remaining)
	}
}

func TestLogin_Throttled(t *testing.T) {
	f := newFixture(t, throttle.New(1, 1), nil)

	f.post(formLogin("alice", "wrong", "")).AssertStatus(t, http.StatusUnauthorized)
	rec := f.post(formLogin("alice", testPassword, ""))
	rec.AssertStatus(t, http.StatusTooManyRequests)
	rec.AssertContains(t, "Too many attempts")
}

func TestShowLogin(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := testutil.NewRecorder()
	Routes(f.h).ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/?return=/admin/users"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `name="login_id"`)
	if strings.Contains(rec.Body.String(), models.DefaultDisabledNotice) {
		t.Error("notice shown without ?disabled=1")
	}

	rec = testutil.NewRecorder()
	Routes(f.h).ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/?disabled=1"))
	rec.AssertContains(t, models.DefaultDisabledNotice)
}

func TestShowLogin_CustomNoticeSanitized(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	err := settingsstore.New(f.db).Save(ctx, models.UserListSettings{
		DisabledNotice: `Contact <b>IT</b><script>alert(1)</script>`,
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rec := testutil.NewRecorder()
	Routes(f.h).ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/?disabled=1"))
	rec.AssertContains(t, "<b>IT</b>")
	if strings.Contains(rec.Body.String(), "<script>") {
		t.Error("notice was not sanitized")
	}
}
