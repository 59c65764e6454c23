// internal/app/features/login/login.go
package login

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	errorsfeature "github.com/dalemusser/stratagate/internal/app/features/errors"
	"github.com/dalemusser/stratagate/internal/app/store/ratelimit"
	"github.com/dalemusser/stratagate/internal/app/store/sessions"
	settingsstore "github.com/dalemusser/stratagate/internal/app/store/settings"
	userstore "github.com/dalemusser/stratagate/internal/app/store/users"
	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/auditlog"
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/authutil"
	"github.com/dalemusser/stratagate/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratagate/internal/app/system/jsonutil"
	"github.com/dalemusser/stratagate/internal/app/system/network"
	"github.com/dalemusser/stratagate/internal/app/system/throttle"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Error codes returned to JSON clients and shown on the form.
const (
	codeInvalidRequest     = "invalid_request"
	codeInvalidCredentials = "invalid_credentials"
	codeAccountDisabled    = "account_disabled"
	codeLockedOut          = "locked_out"
	codeRateLimited        = "rate_limited"
	codeUnavailable        = "service_unavailable"
)

// DisabledPath is where a browser lands after the gate turns a login away.
const DisabledPath = "/login?disabled=1"

// LoginChecker is the access gate's login check. It runs after the
// credentials are known to be good and has the final word.
type LoginChecker interface {
	CheckLogin(ctx context.Context, loginOrID string) accessgate.Verdict
}

// Options tunes the login flow.
type Options struct {
	// TrustLogin lets trust-method accounts in without a password. Dev only.
	TrustLogin bool
	// SessionTTL bounds the tracked session record.
	SessionTTL time.Duration
	// DefaultReturn is the landing page when no safe return URL was given.
	DefaultReturn string
}

// Handler provides login handlers.
type Handler struct {
	users       *userstore.Store
	settings    *settingsstore.Store
	sessions    *sessions.Store
	lockouts    *ratelimit.Store // nil disables per-login lockouts
	limiter     *throttle.Limiter
	gate        LoginChecker
	sessionMgr  *auth.SessionManager
	auditLogger *auditlog.Logger
	errLog      *errorsfeature.ErrorLogger
	opts        Options
	logger      *zap.Logger
}

// NewHandler creates a new login Handler.
func NewHandler(
	db *mongo.Database,
	sessionMgr *auth.SessionManager,
	gate LoginChecker,
	limiter *throttle.Limiter,
	lockouts *ratelimit.Store,
	auditLogger *auditlog.Logger,
	errLog *errorsfeature.ErrorLogger,
	opts Options,
	logger *zap.Logger,
) *Handler {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.DefaultReturn == "" {
		opts.DefaultReturn = "/admin/users"
	}
	if limiter == nil {
		limiter = throttle.New(0, 0)
	}
	return &Handler{
		users:       userstore.New(db),
		settings:    settingsstore.New(db),
		sessions:    sessions.New(db),
		lockouts:    lockouts,
		limiter:     limiter,
		gate:        gate,
		sessionMgr:  sessionMgr,
		auditLogger: auditLogger,
		errLog:      errLog,
		opts:        opts,
		logger:      logger,
	}
}

// Routes returns a chi.Router with login routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.showLogin)
	r.Post("/", h.handleLogin)
	return r
}

// pageVM is the view model for the login page.
type pageVM struct {
	Error     string
	Notice    template.HTML
	LoginID   string
	ReturnURL string
	CSRF      template.HTML
}

var pageTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Sign in</title></head>
<body>
  <main>
    <h1>Sign in</h1>
    {{if .Notice}}<div class="notice" role="alert">{{.Notice}}</div>{{end}}
    {{if .Error}}<p class="error" role="alert">{{.Error}}</p>{{end}}
    <form method="post" action="/login">
      {{.CSRF}}
      <input type="hidden" name="return" value="{{.ReturnURL}}">
      <label>Login ID <input name="login_id" value="{{.LoginID}}" autocomplete="username" required></label>
      <label>Password <input type="password" name="password" autocomplete="current-password"></label>
      <button type="submit">Sign in</button>
    </form>
  </main>
</body>
</html>`))

var errorText = map[string]string{
	codeInvalidRequest:     "Enter your login ID.",
	codeInvalidCredentials: "Invalid login ID or password.",
	codeLockedOut:          "Too many failed attempts. Try again later.",
	codeRateLimited:        "Too many attempts. Slow down and try again.",
	codeUnavailable:        "Sign-in is temporarily unavailable.",
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, vm pageVM) {
	vm.CSRF = csrf.TemplateField(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if tok := csrf.Token(r); tok != "" {
		w.Header().Set("X-CSRF-Token", tok)
	}
	w.WriteHeader(status)
	if err := pageTmpl.Execute(w, vm); err != nil {
		h.errLog.Log(r, "render login page", err)
	}
}

// showLogin renders the sign-in form. After a disabled account was turned
// away it also shows the configured notice.
func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	vm := pageVM{ReturnURL: query.Get(r, "return")}
	if query.Get(r, "disabled") == "1" {
		vm.Notice = h.disabledNotice(r.Context())
	}
	h.render(w, r, http.StatusOK, vm)
}

func (h *Handler) disabledNotice(ctx context.Context) template.HTML {
	s, err := h.settings.Effective(ctx, "")
	if err != nil {
		h.logger.Warn("load disabled notice", zap.Error(err))
		s = settingsstore.Defaults()
	}
	return htmlsanitize.Notice(s.Notice())
}

type loginInput struct {
	LoginID  string `json:"login_id"`
	Password string `json:"password"`
	Return   string `json:"return"`
}

func readInput(r *http.Request) (loginInput, error) {
	var in loginInput
	if jsonutil.IsJSON(r) {
		if err := jsonutil.Decode(r, &in); err != nil {
			return in, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return in, err
		}
		in.LoginID = r.PostForm.Get("login_id")
		in.Password = r.PostForm.Get("password")
		in.Return = r.PostForm.Get("return")
	}
	in.LoginID = strings.TrimSpace(in.LoginID)
	if in.LoginID == "" {
		return in, errors.New("login_id is required")
	}
	return in, nil
}

// fail answers a rejected attempt. JSON callers get {error}, browsers the form
// again with a message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, in loginInput, status int, code string) {
	if jsonutil.IsJSON(r) {
		jsonutil.Error(w, status, code)
		return
	}
	h.render(w, r, status, pageVM{Error: errorText[code], LoginID: in.LoginID, ReturnURL: in.Return})
}

// handleLogin verifies credentials and only then consults the access gate.
// A wrong password never reveals that the account is disabled.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in, err := readInput(r)
	if err != nil {
		h.fail(w, r, in, http.StatusBadRequest, codeInvalidRequest)
		return
	}

	if !h.limiter.Allow(network.GetClientIP(r)) {
		h.auditLogger.LoginRateLimited(ctx, r, in.LoginID)
		w.Header().Set("Retry-After", "60")
		h.fail(w, r, in, http.StatusTooManyRequests, codeRateLimited)
		return
	}

	if h.lockouts.Enabled() {
		lock, err := h.lockouts.Status(ctx, in.LoginID)
		if err != nil {
			h.logger.Warn("lockout check failed; continuing", zap.Error(err))
		} else if lock.Locked {
			h.auditLogger.LoginRateLimited(ctx, r, in.LoginID)
			w.Header().Set("Retry-After", fmt.Sprint(int(time.Until(lock.Until).Seconds())+1))
			h.fail(w, r, in, http.StatusTooManyRequests, codeLockedOut)
			return
		}
	}

	user, err := h.users.GetByLoginID(ctx, in.LoginID)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		authutil.VerifyCredentials(nil, in.Password, false)
		h.auditLogger.LoginFailedUserNotFound(ctx, r, in.LoginID)
		h.fail(w, r, in, http.StatusUnauthorized, codeInvalidCredentials)
		return
	case err != nil:
		h.errLog.Log(r, "login user lookup failed", err)
		h.fail(w, r, in, http.StatusServiceUnavailable, codeUnavailable)
		return
	}

	if !authutil.VerifyCredentials(user, in.Password, h.opts.TrustLogin) {
		if _, err := h.lockouts.Fail(ctx, in.LoginID); err != nil {
			h.logger.Warn("record login failure", zap.Error(err))
		}
		h.auditLogger.LoginFailedWrongPassword(ctx, r, user.ID, in.LoginID)
		h.fail(w, r, in, http.StatusUnauthorized, codeInvalidCredentials)
		return
	}

	if v := h.gate.CheckLogin(ctx, user.ID.Hex()); !v.Allowed {
		h.deny(w, r, in, user, v)
		return
	}

	if err := h.lockouts.Clear(ctx, in.LoginID); err != nil {
		h.logger.Warn("clear login lockout", zap.Error(err))
	}

	if err := h.createTrackedSession(w, r, user); err != nil {
		h.errLog.Log(r, "create session failed", err)
		h.fail(w, r, in, http.StatusServiceUnavailable, codeUnavailable)
		return
	}

	h.auditLogger.LoginSuccess(ctx, r, user.ID, user.AuthMethod, in.LoginID)
	h.logger.Info("user logged in",
		zap.String("user_id", user.ID.Hex()),
		zap.String("login_id", in.LoginID))

	dest := urlutil.SafeReturn(in.Return, "", h.opts.DefaultReturn)
	if jsonutil.IsJSON(r) {
		jsonutil.OK(w, map[string]string{
			"user_id":  user.ID.Hex(),
			"role":     user.Role,
			"redirect": dest,
		})
		return
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

// deny turns away a login the gate refused. Any cookie the browser still
// carries is cleared so a stale session cannot stand in for the login.
func (h *Handler) deny(w http.ResponseWriter, r *http.Request, in loginInput, user *models.User, v accessgate.Verdict) {
	h.sessionMgr.DestroySession(w, r)
	h.auditLogger.LoginDenied(r.Context(), r, user.ID, in.LoginID, v.Reason)

	switch v.Reason {
	case accessgate.ReasonStoreUnavailable:
		h.fail(w, r, in, http.StatusServiceUnavailable, codeUnavailable)
	case accessgate.ReasonAccountDisabled:
		if jsonutil.IsJSON(r) {
			jsonutil.Error(w, http.StatusForbidden, codeAccountDisabled)
			return
		}
		http.Redirect(w, r, DisabledPath, http.StatusSeeOther)
	default:
		h.fail(w, r, in, http.StatusUnauthorized, codeInvalidCredentials)
	}
}

// createTrackedSession persists the server-side session record first and
// then writes the cookie that points at it. Without the record the access
// gate would reject the cookie on the next request, so a store failure fails
// the login.
func (h *Handler) createTrackedSession(w http.ResponseWriter, r *http.Request, user *models.User) error {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return fmt.Errorf("generate session token: %w", err)
	}

	now := time.Now()
	if err := h.sessions.Create(r.Context(), sessions.Session{
		Token:        token,
		UserID:       user.ID,
		IPAddress:    network.GetClientIP(r),
		UserAgent:    r.UserAgent(),
		LoginAt:      now,
		LastActivity: now,
		ExpiresAt:    now.Add(h.opts.SessionTTL),
	}); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	if err := h.sessionMgr.CreateSession(w, r, user.ID, user.Role, token); err != nil {
		if cerr := h.sessions.Close(r.Context(), token, sessions.EndReasonLogout); cerr != nil {
			h.logger.Warn("close orphaned session", zap.Error(cerr))
		}
		return fmt.Errorf("write session cookie: %w", err)
	}
	return nil
}
