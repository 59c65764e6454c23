// internal/app/features/usersettings/usersettings.go
package usersettings

import (
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/stratagate/internal/app/features/errors"
	settingsstore "github.com/dalemusser/stratagate/internal/app/store/settings"
	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/auditlog"
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/authz"
	"github.com/dalemusser/stratagate/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratagate/internal/app/system/jsonutil"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// MaxNoticeLength bounds the disabled notice before sanitizing.
const MaxNoticeLength = 4000

// Handler serves the user list preferences of a tenant.
type Handler struct {
	settings    *settingsstore.Store
	auditLogger *auditlog.Logger
	errLog      *errorsfeature.ErrorLogger
	logger      *zap.Logger
}

// NewHandler creates a user settings Handler.
func NewHandler(db *mongo.Database, auditLogger *auditlog.Logger, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		settings:    settingsstore.New(db),
		auditLogger: auditLogger,
		errLog:      errLog,
		logger:      logger,
	}
}

// Routes mounts GET and POST on /admin/settings/users.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(authz.RequireCapability(accessgate.CapabilityManageUsers))
	r.Get("/", h.show)
	r.Post("/", h.update)
	return r
}

// SettingsVM is the settings response. Inherited is true when the tenant
// has no document of its own and the global one applies.
type SettingsVM struct {
	TenantID              string     `json:"tenant"`
	Inherited             bool       `json:"inherited"`
	HideDisabledByDefault bool       `json:"hide_disabled_by_default"`
	DisabledNotice        string     `json:"disabled_notice"`
	NotifyUserOnDisable   bool       `json:"notify_user_on_disable"`
	NotifyUserOnEnable    bool       `json:"notify_user_on_enable"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
	UpdatedByName         string     `json:"updated_by_name,omitempty"`
}

func scopeTenant(r *http.Request) string {
	if u, ok := auth.CurrentUser(r); ok && u.TenantID != "" {
		return u.TenantID
	}
	return query.Get(r, "tenant")
}

func (h *Handler) load(r *http.Request, tenant string) (SettingsVM, error) {
	s, err := h.settings.Effective(r.Context(), tenant)
	if err != nil {
		return SettingsVM{}, err
	}
	return SettingsVM{
		TenantID:              tenant,
		Inherited:             s.TenantID != tenant,
		HideDisabledByDefault: s.HideDisabledByDefault,
		DisabledNotice:        s.DisabledNotice,
		NotifyUserOnDisable:   s.NotifyUserOnDisable,
		NotifyUserOnEnable:    s.NotifyUserOnEnable,
		UpdatedAt:             s.UpdatedAt,
		UpdatedByName:         s.UpdatedByName,
	}, nil
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	vm, err := h.load(r, scopeTenant(r))
	if err != nil {
		h.errLog.Log(r, "failed to load user settings", err)
		jsonutil.ErrorKind(w, http.StatusServiceUnavailable, "service temporarily unavailable", accessgate.KindStoreUnavailable)
		return
	}
	jsonutil.OK(w, vm)
}

// updateInput fields are optional; a missing field keeps its current value.
type updateInput struct {
	HideDisabledByDefault *bool   `json:"hide_disabled_by_default"`
	DisabledNotice        *string `json:"disabled_notice"`
	NotifyUserOnDisable   *bool   `json:"notify_user_on_disable"`
	NotifyUserOnEnable    *bool   `json:"notify_user_on_enable"`
}

func checkbox(r *http.Request, name string) *bool {
	v := r.PostFormValue(name) == "on" || r.PostFormValue(name) == "true" || r.PostFormValue(name) == "1"
	return &v
}

func readInput(r *http.Request) (updateInput, bool, error) {
	var in updateInput
	if jsonutil.IsJSON(r) {
		return in, true, jsonutil.Decode(r, &in)
	}
	if err := r.ParseForm(); err != nil {
		return in, false, err
	}
	// unchecked boxes are absent from a form post, so every field is set
	notice := r.PostFormValue("disabled_notice")
	in.DisabledNotice = &notice
	in.HideDisabledByDefault = checkbox(r, "hide_disabled_by_default")
	in.NotifyUserOnDisable = checkbox(r, "notify_user_on_disable")
	in.NotifyUserOnEnable = checkbox(r, "notify_user_on_enable")
	return in, false, nil
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := scopeTenant(r)

	in, isJSON, err := readInput(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid request body")
		return
	}
	if in.DisabledNotice != nil && len(*in.DisabledNotice) > MaxNoticeLength {
		jsonutil.ValidationError(w, map[string]string{"disabled_notice": "notice is too long"})
		return
	}

	current, err := h.settings.Effective(ctx, tenant)
	if err != nil {
		h.errLog.Log(r, "failed to load user settings", err)
		jsonutil.ErrorKind(w, http.StatusServiceUnavailable, "service temporarily unavailable", accessgate.KindStoreUnavailable)
		return
	}

	next := models.UserListSettings{
		TenantID:              tenant,
		HideDisabledByDefault: current.HideDisabledByDefault,
		DisabledNotice:        current.DisabledNotice,
		NotifyUserOnDisable:   current.NotifyUserOnDisable,
		NotifyUserOnEnable:    current.NotifyUserOnEnable,
	}
	if in.HideDisabledByDefault != nil {
		next.HideDisabledByDefault = *in.HideDisabledByDefault
	}
	if in.DisabledNotice != nil {
		next.DisabledNotice = htmlsanitize.Sanitize(*in.DisabledNotice)
	}
	if in.NotifyUserOnDisable != nil {
		next.NotifyUserOnDisable = *in.NotifyUserOnDisable
	}
	if in.NotifyUserOnEnable != nil {
		next.NotifyUserOnEnable = *in.NotifyUserOnEnable
	}

	actor, _ := auth.CurrentUser(r)
	if oid := actor.UserID(); !oid.IsZero() {
		next.UpdatedByID = &oid
	}
	next.UpdatedByName = actor.Name

	if err := h.settings.Save(ctx, next); err != nil {
		h.errLog.Log(r, "failed to save user settings", err)
		jsonutil.ErrorKind(w, http.StatusServiceUnavailable, "service temporarily unavailable", accessgate.KindStoreUnavailable)
		return
	}
	h.auditLogger.SettingsUpdated(ctx, r, actor.ID, tenant)
	h.logger.Info("user list settings updated",
		zap.String("tenant_id", tenant),
		zap.String("actor_id", actor.ID),
		zap.Bool("hide_disabled_by_default", next.HideDisabledByDefault))

	if !isJSON {
		http.Redirect(w, r, "/admin/settings/users?success=1", http.StatusSeeOther)
		return
	}
	vm, err := h.load(r, tenant)
	if err != nil {
		h.errLog.Log(r, "failed to reload user settings", err)
		jsonutil.NoContent(w)
		return
	}
	jsonutil.OK(w, vm)
}
