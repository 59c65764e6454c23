package auth

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/jsonutil"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type sessionErrorType int

const (
	sessionErrUnknown   sessionErrorType = iota
	sessionErrExpired                    // timestamp expired - normal
	sessionErrTampered                   // MAC invalid - potential attack
	sessionErrCorrupted                  // decode/decrypt failed - corruption or key rotation
	sessionErrBackend                    // store/backend failure
)

const (
	isAuthKey       = "is_authenticated"
	userIDKey       = "user_id"
	userRoleKey     = "user_role"
	sessionTokenKey = "session_token"

	defaultSessionName = "stratagate-session"
)

// SessionManager owns the signed cookie store and the middleware that turns
// a cookie into a SessionUser. Every request is checked against the access
// gate when one is configured, so a disabled account loses access on its
// next request.
type SessionManager struct {
	store       *sessions.CookieStore
	logger      *zap.Logger
	name        string
	userFetcher UserFetcher
	gate        SessionGate
	onReject    RejectFunc
	activity    ActivityToucher
}

// NewSessionManager creates a SessionManager.
//
// sessionKey must be at least 32 characters and not a placeholder when secure
// is true; in development a weak key only logs a warning. An empty name
// falls back to "stratagate-session".
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, &SessionConfigError{Message: "session key is empty; provide ≥32 random chars"}
	}

	weak := len(sessionKey) < 32 || isDefaultKey(sessionKey)
	if weak && secure {
		return nil, &SessionConfigError{
			Message: "session key is too weak for production; provide ≥32 random chars (not the default dev key)",
		}
	}
	if weak {
		logger.Warn("session key is weak; 32+ random chars required in production",
			zap.Int("length", len(sessionKey)),
			zap.Bool("is_default", isDefaultKey(sessionKey)))
	}

	if name == "" {
		name = defaultSessionName
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	logger.Info("session manager initialized",
		zap.Bool("secure", secure),
		zap.String("name", name),
		zap.String("domain", domain))

	return &SessionManager{
		store:  store,
		logger: logger,
		name:   name,
	}, nil
}

// SessionConfigError is returned when session configuration is invalid.
type SessionConfigError struct {
	Message string
}

func (e *SessionConfigError) Error() string {
	return e.Message
}

// SessionName returns the configured session cookie name.
func (sm *SessionManager) SessionName() string {
	return sm.name
}

// SetUserFetcher sets the source of fresh user data. Call it after the
// database is connected.
func (sm *SessionManager) SetUserFetcher(uf UserFetcher) {
	sm.userFetcher = uf
}

// SetSessionGate installs the per-request access check. onReject, if not
// nil, is called after a rejected session has been cleared.
func (sm *SessionManager) SetSessionGate(g SessionGate, onReject RejectFunc) {
	sm.gate = g
	sm.onReject = onReject
}

// SetActivityToucher installs the recorder of session activity. Sessions
// that pass the gate are touched on each request so the idle sweep keeps
// them open.
func (sm *SessionManager) SetActivityToucher(t ActivityToucher) {
	sm.activity = t
}

// ActivityToucher records that a tracked session is in use. Implementations
// are expected to rate-limit their own writes.
type ActivityToucher interface {
	Touch(ctx context.Context, token string) error
}

// UserFetcher loads the current profile of a signed-in user. It returns nil
// when the user no longer exists.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID string) *SessionUser
}

// SessionGate decides whether an established session may continue.
type SessionGate interface {
	CheckSession(ctx context.Context, userID, token string) accessgate.Verdict
}

// RejectFunc observes a session the gate refused.
type RejectFunc func(r *http.Request, userID string, reason accessgate.Reason)

// SessionUser is the authenticated user carried in the request context.
type SessionUser struct {
	ID         string
	Name       string
	LoginID    string
	Role       string
	TenantID   string
	SuperAdmin bool
	Token      string // tracked session token
}

// UserID returns the user's ID as an ObjectID, or NilObjectID if malformed.
func (u *SessionUser) UserID() primitive.ObjectID {
	oid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return primitive.NilObjectID
	}
	return oid
}

// SessionToken returns the tracked session token of the current session.
func (u *SessionUser) SessionToken() string {
	return u.Token
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag from the request context.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// LoadSessionUser injects the signed-in user into the request context.
//
// With a UserFetcher configured the profile is reloaded on every request and
// the session gate, if any, is consulted. A missing user or a denied verdict
// clears the cookie and the request continues anonymously.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			sm.logSessionError(r, err)
		}

		if isAuth, _ := sess.Values[isAuthKey].(bool); !isAuth {
			next.ServeHTTP(w, r)
			return
		}

		userID := getString(sess, userIDKey)
		token := getString(sess, sessionTokenKey)
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		if sm.userFetcher == nil {
			r = withUser(r, &SessionUser{
				ID:    userID,
				Role:  getString(sess, userRoleKey),
				Token: token,
			})
			next.ServeHTTP(w, r)
			return
		}

		u := sm.userFetcher.FetchUser(r.Context(), userID)
		if u == nil {
			sm.logger.Info("session invalidated: user not found",
				zap.String("user_id", userID),
				zap.String("path", r.URL.Path))
			sm.clear(w, r, sess)
			next.ServeHTTP(w, r)
			return
		}

		if sm.gate != nil {
			v := sm.gate.CheckSession(r.Context(), userID, token)
			if !v.Allowed {
				sm.logger.Info("session rejected",
					zap.String("user_id", userID),
					zap.String("reason", string(v.Reason)),
					zap.String("path", r.URL.Path))
				sm.clear(w, r, sess)
				if sm.onReject != nil {
					sm.onReject(r, userID, v.Reason)
				}
				next.ServeHTTP(w, r)
				return
			}
		}

		sm.touch(r, userID, token)
		u.Token = token
		next.ServeHTTP(w, withUser(r, u))
	})
}

func (sm *SessionManager) touch(r *http.Request, userID, token string) {
	if sm.activity == nil || token == "" {
		return
	}
	if err := sm.activity.Touch(r.Context(), token); err != nil {
		sm.logger.Warn("failed to record session activity",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func (sm *SessionManager) logSessionError(r *http.Request, err error) {
	errType, category := classifySessionError(err)
	switch errType {
	case sessionErrExpired:
		sm.logger.Debug("session expired, starting fresh session",
			zap.String("category", category),
			zap.String("path", r.URL.Path))
	case sessionErrTampered:
		sm.logger.Warn("session MAC validation failed (possible tampering)",
			zap.String("category", category),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()))
	case sessionErrCorrupted:
		sm.logger.Info("session decode failed, starting fresh session",
			zap.String("category", category),
			zap.String("path", r.URL.Path))
	default:
		sm.logger.Error("session store error, starting fresh session",
			zap.Error(err),
			zap.String("category", category),
			zap.String("path", r.URL.Path))
	}
}

func (sm *SessionManager) clear(w http.ResponseWriter, r *http.Request, sess *sessions.Session) {
	signOut(sess)
	_ = sess.Save(r, w)
}

func signOut(sess *sessions.Session) {
	sess.Values[isAuthKey] = false
	delete(sess.Values, userIDKey)
	delete(sess.Values, userRoleKey)
	delete(sess.Values, sessionTokenKey)
}

// RequireSignedIn rejects anonymous requests. Browsers are sent to /login
// with a return address; API callers get a JSON 401.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		unauthenticated(w, r)
	})
}

func unauthenticated(w http.ResponseWriter, r *http.Request) {
	if wantsHTML(r) {
		ret := url.QueryEscape(currentURI(r))
		http.Redirect(w, r, "/login?return="+ret, http.StatusSeeOther)
		return
	}
	jsonutil.Unauthorized(w, "unauthorized")
}

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// WithTestUser injects a SessionUser into the request context for testing.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func currentURI(r *http.Request) string {
	u := *r.URL
	return u.RequestURI()
}

// isDefaultKey reports whether key looks like a placeholder.
func isDefaultKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range []string{
		"dev-only",
		"change-me",
		"placeholder",
		"default",
		"example",
		"insecure",
		"test-key",
		"secret123",
		"password",
	} {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// classifySessionError buckets a cookie decode error for logging.
func classifySessionError(err error) (sessionErrorType, string) {
	if err == nil {
		return sessionErrUnknown, "none"
	}

	scErr, ok := err.(securecookie.Error)
	if !ok {
		return sessionErrBackend, "unknown"
	}
	if !scErr.IsDecode() {
		return sessionErrBackend, "backend"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "expired timestamp"):
		return sessionErrExpired, "expired"
	case strings.Contains(msg, "mac") || strings.Contains(msg, "hash"):
		return sessionErrTampered, "mac_invalid"
	case strings.Contains(msg, "decrypt"):
		return sessionErrCorrupted, "decrypt_failed"
	case strings.Contains(msg, "base64") || strings.Contains(msg, "decode"):
		return sessionErrCorrupted, "decode_failed"
	}
	return sessionErrCorrupted, "decode_other"
}
