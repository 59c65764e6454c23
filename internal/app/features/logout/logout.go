// internal/app/features/logout/logout.go
package logout

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/stratagate/internal/app/store/sessions"
	"github.com/dalemusser/stratagate/internal/app/system/auditlog"
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/jsonutil"
	"github.com/dalemusser/stratagate/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// LoginPath is where browsers land after signing out.
const LoginPath = "/login"

// Handler signs users out.
type Handler struct {
	sessionMgr    *auth.SessionManager
	auditLogger   *auditlog.Logger
	sessionsStore *sessions.Store
	logger        *zap.Logger
}

func NewHandler(
	sessionMgr *auth.SessionManager,
	auditLogger *auditlog.Logger,
	sessionsStore *sessions.Store,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessionMgr:    sessionMgr,
		auditLogger:   auditLogger,
		sessionsStore: sessionsStore,
		logger:        logger,
	}
}

// Routes mounts POST and GET (for plain links) on /.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(h.sessionMgr.RequireSignedIn)
	r.Post("/", h.handleLogout)
	r.Get("/", h.handleLogout)
	return r
}

// handleLogout closes the caller's tracked session and expires the cookie.
// With all=1 every open session of the caller is closed, signing them out
// on other devices too.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := auth.CurrentUser(r); ok {
		h.auditLogger.Logout(r.Context(), r, user.ID)

		ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "logout")
		closed := h.closeSessions(ctx, user, query.Get(r, "all") == "1")
		cancel()

		w.Header().Set("X-Sessions-Closed", strconv.FormatInt(closed, 10))
	}

	h.sessionMgr.DestroySession(w, r)

	if jsonutil.IsJSON(r) {
		jsonutil.NoContent(w)
		return
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

// closeSessions marks records closed rather than deleting them so the gate
// sees them as ended. Failures are logged; the cookie is cleared regardless.
func (h *Handler) closeSessions(ctx context.Context, user *auth.SessionUser, everywhere bool) int64 {
	if everywhere {
		n, err := h.sessionsStore.CloseByUser(ctx, user.UserID(), sessions.EndReasonLogout)
		if err != nil {
			h.logger.Warn("failed to close user sessions", zap.String("user_id", user.ID), zap.Error(err))
		}
		return n
	}

	token := user.SessionToken()
	if token == "" {
		return 0
	}
	if err := h.sessionsStore.Close(ctx, token, sessions.EndReasonLogout); err != nil {
		h.logger.Warn("failed to close session", zap.String("user_id", user.ID), zap.Error(err))
		return 0
	}
	return 1
}
