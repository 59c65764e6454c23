package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/gorilla/securecookie"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const testKey = "this-is-a-32-character-long-key!"

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	sm, err := NewSessionManager(testKey, "test-session", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return sm
}

// signedInRequest creates a session cookie for userID and returns a request
// that carries it.
func signedInRequest(t *testing.T, sm *SessionManager, userID primitive.ObjectID, token string) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := sm.CreateSession(rec, httptest.NewRequest(http.MethodPost, "/login", nil), userID, "admin", token); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

type stubFetcher struct {
	user *SessionUser
}

func (f stubFetcher) FetchUser(_ context.Context, userID string) *SessionUser {
	if f.user == nil {
		return nil
	}
	u := *f.user
	u.ID = userID
	return &u
}

type stubGate struct {
	verdict accessgate.Verdict
	gotUser string
	gotTok  string
}

func (g *stubGate) CheckSession(_ context.Context, userID, token string) accessgate.Verdict {
	g.gotUser, g.gotTok = userID, token
	return g.verdict
}

type recordingToucher struct {
	tokens []string
	err    error
}

func (t *recordingToucher) Touch(_ context.Context, token string) error {
	t.tokens = append(t.tokens, token)
	return t.err
}

func captureUser(got **SessionUser) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := CurrentUser(r); ok {
			*got = u
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewSessionManager(t *testing.T) {
	tests := []struct {
		name       string
		sessionKey string
		secure     bool
		wantErr    bool
	}{
		{"valid key dev mode", testKey, false, false},
		{"valid key prod mode", testKey, true, false},
		{"empty key", "", false, true},
		{"weak key dev mode", "short", false, false},
		{"weak key prod mode", "short", true, true},
		{"default key prod mode", "dev-only-session-key-not-for-production", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSessionManager(tt.sessionKey, "test-session", "", time.Hour, tt.secure, zap.NewNop())
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				var cfgErr *SessionConfigError
				if err != nil && !errors.As(err, &cfgErr) {
					t.Errorf("error type = %T, want *SessionConfigError", err)
				}
				return
			}
			if err != nil || sm == nil {
				t.Fatalf("NewSessionManager() = %v, %v", sm, err)
			}
		})
	}
}

func TestSessionManager_DefaultName(t *testing.T) {
	sm, err := NewSessionManager(testKey, "", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if sm.SessionName() != "stratagate-session" {
		t.Errorf("SessionName() = %q, want %q", sm.SessionName(), "stratagate-session")
	}
	if sm.store.Options.SameSite != http.SameSiteLaxMode {
		t.Error("cookie should be SameSite=Lax")
	}
	if !sm.store.Options.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
}

func TestSessionUser_UserID(t *testing.T) {
	oid := primitive.NewObjectID()
	if got := (&SessionUser{ID: oid.Hex()}).UserID(); got != oid {
		t.Errorf("UserID() = %v, want %v", got, oid)
	}
	if got := (&SessionUser{ID: "bad"}).UserID(); got != primitive.NilObjectID {
		t.Errorf("UserID() for malformed id = %v, want NilObjectID", got)
	}
	if got := (&SessionUser{Token: "tok"}).SessionToken(); got != "tok" {
		t.Errorf("SessionToken() = %q", got)
	}
}

func TestCurrentUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := CurrentUser(req); ok {
		t.Error("CurrentUser should be empty on a bare request")
	}

	req = WithTestUser(req, &SessionUser{ID: "u1", Role: "admin"})
	u, ok := CurrentUser(req)
	if !ok || u.ID != "u1" {
		t.Errorf("CurrentUser() = %+v, %v", u, ok)
	}
}

func TestCreateSession_RequiresToken(t *testing.T) {
	sm := newTestManager(t)
	rec := httptest.NewRecorder()
	err := sm.CreateSession(rec, httptest.NewRequest(http.MethodPost, "/login", nil), primitive.NewObjectID(), "user", "")
	if err == nil {
		t.Fatal("expected error for empty token")
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("no cookie should be written without a token")
	}
}

func TestGenerateSessionToken(t *testing.T) {
	a, err := GenerateSessionToken()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateSessionToken()
	if a == b {
		t.Error("tokens should differ")
	}
	if len(a) != 43 {
		t.Errorf("len = %d, want 43", len(a))
	}
}

func TestLoadSessionUser_Anonymous(t *testing.T) {
	sm := newTestManager(t)
	var got *SessionUser
	rec := httptest.NewRecorder()
	sm.LoadSessionUser(captureUser(&got)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got != nil {
		t.Errorf("expected no user, got %+v", got)
	}
}

func TestLoadSessionUser_FetchesFreshUser(t *testing.T) {
	sm := newTestManager(t)
	sm.SetUserFetcher(stubFetcher{user: &SessionUser{Name: "Alice", Role: "admin", TenantID: "t1"}})
	gate := &stubGate{verdict: accessgate.Allow("")}
	sm.SetSessionGate(gate, nil)

	oid := primitive.NewObjectID()
	req := signedInRequest(t, sm, oid, "tok-a")

	var got *SessionUser
	sm.LoadSessionUser(captureUser(&got)).ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("expected user in context")
	}
	if got.ID != oid.Hex() || got.Name != "Alice" || got.TenantID != "t1" || got.Token != "tok-a" {
		t.Errorf("user = %+v", got)
	}
	if gate.gotUser != oid.Hex() || gate.gotTok != "tok-a" {
		t.Errorf("gate saw (%q, %q)", gate.gotUser, gate.gotTok)
	}
}

func TestLoadSessionUser_GateDenies(t *testing.T) {
	sm := newTestManager(t)
	sm.SetUserFetcher(stubFetcher{user: &SessionUser{Name: "Bob", Role: "user"}})

	var rejected accessgate.Reason
	var rejectedUser string
	sm.SetSessionGate(&stubGate{verdict: accessgate.Deny(accessgate.ReasonAccountDisabled, "")},
		func(_ *http.Request, userID string, reason accessgate.Reason) {
			rejectedUser, rejected = userID, reason
		})

	oid := primitive.NewObjectID()
	req := signedInRequest(t, sm, oid, "tok-b")

	var got *SessionUser
	rec := httptest.NewRecorder()
	sm.LoadSessionUser(captureUser(&got)).ServeHTTP(rec, req)

	if got != nil {
		t.Errorf("denied session should not carry a user, got %+v", got)
	}
	if rejected != accessgate.ReasonAccountDisabled || rejectedUser != oid.Hex() {
		t.Errorf("onReject got (%q, %q)", rejectedUser, rejected)
	}

	// The rewritten cookie no longer authenticates.
	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	sm.SetSessionGate(nil, nil)
	got = nil
	sm.LoadSessionUser(captureUser(&got)).ServeHTTP(httptest.NewRecorder(), next)
	if got != nil {
		t.Error("cleared cookie should not authenticate")
	}
}

func TestLoadSessionUser_UserGone(t *testing.T) {
	sm := newTestManager(t)
	sm.SetUserFetcher(stubFetcher{})
	gate := &stubGate{verdict: accessgate.Allow("")}
	sm.SetSessionGate(gate, nil)

	var got *SessionUser
	sm.LoadSessionUser(captureUser(&got)).ServeHTTP(httptest.NewRecorder(),
		signedInRequest(t, sm, primitive.NewObjectID(), "tok"))
	if got != nil {
		t.Error("missing user should not be injected")
	}
	if gate.gotUser != "" {
		t.Error("gate should not be consulted for a missing user")
	}
}

func TestLoadSessionUser_TouchesAllowedSessions(t *testing.T) {
	tests := []struct {
		name      string
		verdict   accessgate.Verdict
		touchErr  error
		wantTouch bool
	}{
		{"allowed", accessgate.Allow(""), nil, true},
		{"allowed touch fails", accessgate.Allow(""), errors.New("mongo down"), true},
		{"denied", accessgate.Deny(accessgate.ReasonSessionRevoked, ""), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := newTestManager(t)
			sm.SetUserFetcher(stubFetcher{user: &SessionUser{Name: "Alice", Role: "user"}})
			sm.SetSessionGate(&stubGate{verdict: tt.verdict}, nil)
			toucher := &recordingToucher{err: tt.touchErr}
			sm.SetActivityToucher(toucher)

			req := signedInRequest(t, sm, primitive.NewObjectID(), "tok-live")
			var got *SessionUser
			sm.LoadSessionUser(captureUser(&got)).ServeHTTP(httptest.NewRecorder(), req)

			touched := len(toucher.tokens) == 1 && toucher.tokens[0] == "tok-live"
			if touched != tt.wantTouch {
				t.Errorf("touched = %v (%q), want %v", touched, toucher.tokens, tt.wantTouch)
			}
			if (got != nil) != tt.wantTouch {
				t.Errorf("user present = %v, want %v", got != nil, tt.wantTouch)
			}
		})
	}
}

func TestLoadSessionUser_NoFetcher(t *testing.T) {
	sm := newTestManager(t)
	oid := primitive.NewObjectID()

	var got *SessionUser
	sm.LoadSessionUser(captureUser(&got)).ServeHTTP(httptest.NewRecorder(), signedInRequest(t, sm, oid, "tok"))
	if got == nil || got.ID != oid.Hex() || got.Role != "admin" {
		t.Errorf("user = %+v", got)
	}
}

func TestDestroySession(t *testing.T) {
	sm := newTestManager(t)
	req := signedInRequest(t, sm, primitive.NewObjectID(), "tok")

	rec := httptest.NewRecorder()
	sm.DestroySession(rec, req)

	headers := rec.Header().Values("Set-Cookie")
	if len(headers) != 1 {
		t.Fatalf("Set-Cookie headers = %q, want exactly one", headers)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected an expiring cookie, got %+v", cookies)
	}

	// The expired cookie carries no identity.
	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(&http.Cookie{Name: cookies[0].Name, Value: cookies[0].Value})
	var got *SessionUser
	sm.LoadSessionUser(captureUser(&got)).ServeHTTP(httptest.NewRecorder(), next)
	if got != nil {
		t.Errorf("user after DestroySession = %+v, want none", got)
	}
}

func TestRequireSignedIn(t *testing.T) {
	sm := newTestManager(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := sm.RequireSignedIn(ok)

	tests := []struct {
		name       string
		user       *SessionUser
		accept     string
		wantStatus int
		wantLoc    string
	}{
		{"signed in", &SessionUser{ID: "u1"}, "", http.StatusOK, ""},
		{"browser", nil, "text/html", http.StatusSeeOther, "/login?return=%2Fadmin%2Fusers%3Fpage%3D2"},
		{"api", nil, "application/json", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/users?page=2", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if tt.user != nil {
				req = WithTestUser(req, tt.user)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantLoc != "" && rec.Header().Get("Location") != tt.wantLoc {
				t.Errorf("Location = %q, want %q", rec.Header().Get("Location"), tt.wantLoc)
			}
			if tt.wantStatus == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("expected JSON error body, got %q", rec.Body.String())
			}
		})
	}
}

func TestIsDefaultKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"dev-only-session-key", true},
		{"please-CHANGE-ME-now", true},
		{"my-password-key", true},
		{"k7Qv2R9xL0pW3mN8tY5sB1cF6hJ4dG0z", false},
	}
	for _, tt := range tests {
		if got := isDefaultKey(tt.key); got != tt.want {
			t.Errorf("isDefaultKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestClassifySessionError(t *testing.T) {
	if typ, cat := classifySessionError(nil); typ != sessionErrUnknown || cat != "none" {
		t.Errorf("nil = (%v, %q)", typ, cat)
	}
	if typ, _ := classifySessionError(errors.New("boom")); typ != sessionErrBackend {
		t.Errorf("plain error = %v, want backend", typ)
	}

	// A cookie signed with another key fails to decode.
	other := securecookie.New([]byte("another-key-another-key-another!"), nil)
	encoded, err := other.Encode("test-session", map[any]any{"x": 1})
	if err != nil {
		t.Fatal(err)
	}
	mine := securecookie.New([]byte(testKey), nil)
	var dst map[any]any
	decodeErr := mine.Decode("test-session", encoded, &dst)
	if decodeErr == nil {
		t.Fatal("expected decode error")
	}
	if typ, cat := classifySessionError(decodeErr); typ == sessionErrBackend || typ == sessionErrUnknown {
		t.Errorf("decode failure = (%v, %q), want a decode classification", typ, cat)
	}
}

func TestCurrentURI(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/users?only_disabled=1", nil)
	if got := currentURI(req); got != "/admin/users?only_disabled=1" {
		t.Errorf("currentURI() = %q", got)
	}
}
