// internal/app/features/useradmin/useradmin.go
package useradmin

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"net/http"

	errorsfeature "github.com/dalemusser/stratagate/internal/app/features/errors"
	auditstore "github.com/dalemusser/stratagate/internal/app/store/audit"
	"github.com/dalemusser/stratagate/internal/app/store/sessions"
	settingsstore "github.com/dalemusser/stratagate/internal/app/store/settings"
	userstore "github.com/dalemusser/stratagate/internal/app/store/users"
	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/actiontoken"
	"github.com/dalemusser/stratagate/internal/app/system/auditlog"
	"github.com/dalemusser/stratagate/internal/app/system/authz"
	"github.com/dalemusser/stratagate/internal/app/system/mailer"
	"github.com/dalemusser/stratagate/internal/app/system/throttle"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const pageSize = 25

// Toggler applies enable/disable transitions.
type Toggler interface {
	Toggle(ctx context.Context, req accessgate.ToggleRequest) (accessgate.ToggleResult, error)
}

// TokenIssuer mints one-shot action tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, action accessgate.Action, target, issuedTo string) (actiontoken.Token, error)
}

// Notifier emails users about status changes.
type Notifier interface {
	Disabled(r mailer.Recipient, notice string)
	Enabled(r mailer.Recipient)
}

// Options are the deployment-wide switches that apply on top of the stored
// per-tenant settings.
type Options struct {
	NotifyOnDisable bool
	NotifyOnEnable  bool
}

// Handler serves the user administration pages and API.
type Handler struct {
	gate        Toggler
	tokens      TokenIssuer
	users       *userstore.Store
	settings    *settingsstore.Store
	audit       *auditstore.Store
	sessions    *sessions.Store
	auditLogger *auditlog.Logger
	notifier    Notifier
	opts        Options
	errLog      *errorsfeature.ErrorLogger
	logger      *zap.Logger
}

// NewHandler creates a user admin Handler. notifier may be nil.
func NewHandler(
	db *mongo.Database,
	gate Toggler,
	tokens TokenIssuer,
	auditLogger *auditlog.Logger,
	notifier Notifier,
	opts Options,
	errLog *errorsfeature.ErrorLogger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		gate:        gate,
		tokens:      tokens,
		users:       userstore.New(db),
		settings:    settingsstore.New(db),
		audit:       auditstore.New(db),
		sessions:    sessions.New(db),
		auditLogger: auditLogger,
		notifier:    notifier,
		opts:        opts,
		errLog:      errLog,
		logger:      logger,
	}
}

// actorKey limits by the signed-in admin, falling back to nothing.
func actorKey(r *http.Request) string {
	return authz.Requester(r).ID
}

// Routes mounts the admin pages under /admin/users.
func Routes(h *Handler, limiter *throttle.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(authz.RequireCapability(accessgate.CapabilityManageUsers))

	r.Get("/", h.list)
	r.With(limiter.Middleware(actorKey)).Post("/action", h.action)
	r.Get("/{id}", h.show)
	r.Get("/{id}/history", h.history)
	return r
}

// APIRoutes mounts the REST toggle endpoints under /api/users.
func APIRoutes(h *Handler, limiter *throttle.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(authz.RequireCapability(accessgate.CapabilityManageUsers))
	r.Use(limiter.Middleware(actorKey))

	r.Post("/{id}/{action}", h.apiToggle)
	r.Post("/{id}/{action}/token", h.apiIssueToken)
	return r
}
