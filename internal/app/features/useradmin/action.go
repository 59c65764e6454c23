package useradmin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/authz"
	"github.com/dalemusser/stratagate/internal/app/system/jsonutil"
	"github.com/dalemusser/stratagate/internal/app/system/mailer"
	"github.com/dalemusser/stratagate/internal/app/system/status"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	// TokenHeader carries the action token on API toggles.
	TokenHeader = "X-Action-Token"
	// WarningHeader reports a non-fatal failure on a successful toggle.
	WarningHeader = "X-Gate-Warning"

	kindBadRequest = "BAD_REQUEST"
	listPath       = "/admin/users"
)

type actionInput struct {
	UserID string `json:"user_id"`
	Action string `json:"action"`
	Token  string `json:"token"`
	Return string `json:"return"`
}

// ResultVM confirms a toggle. NextToken authorizes the opposite action so a
// JSON client can undo without reloading the list.
type ResultVM struct {
	UserID          string     `json:"user_id"`
	Action          string     `json:"action"`
	Status          string     `json:"status"`
	Changed         bool       `json:"changed"`
	SessionsRevoked int64      `json:"sessions_revoked"`
	Warning         string     `json:"warning,omitempty"`
	NextToken       string     `json:"next_token,omitempty"`
	NextExpiresAt   *time.Time `json:"next_token_expires_at,omitempty"`
}

func readActionInput(r *http.Request) (actionInput, error) {
	var in actionInput
	if jsonutil.IsJSON(r) {
		err := jsonutil.Decode(r, &in)
		return in, err
	}
	if err := r.ParseForm(); err != nil {
		return in, err
	}
	in.UserID = r.PostFormValue("user_id")
	in.Action = r.PostFormValue("action")
	in.Token = r.PostFormValue("token")
	in.Return = r.PostFormValue("return")
	return in, nil
}

// action handles POST /admin/users/action from forms and JSON clients.
// Errors are always JSON, never a redirect.
func (h *Handler) action(w http.ResponseWriter, r *http.Request) {
	in, err := readActionInput(r)
	if err != nil {
		jsonutil.ErrorKind(w, http.StatusBadRequest, "invalid request body", kindBadRequest)
		return
	}
	act, ok := accessgate.ParseAction(in.Action)
	if !ok || in.UserID == "" {
		jsonutil.ErrorKind(w, http.StatusBadRequest, "user_id and a valid action are required", kindBadRequest)
		return
	}

	res, err := h.toggle(r, in.UserID, act, in.Token)
	if err != nil {
		h.writeToggleError(w, r, err)
		return
	}
	if warning := res.Warning(); warning != "" {
		w.Header().Set(WarningHeader, warning)
	}

	if in.Return != "" {
		http.Redirect(w, r, urlutil.SafeReturn(in.Return, "", listPath), http.StatusSeeOther)
		return
	}
	jsonutil.OK(w, h.result(r, res))
}

// apiToggle handles POST /api/users/{id}/{action}.
func (h *Handler) apiToggle(w http.ResponseWriter, r *http.Request) {
	act, ok := accessgate.ParseAction(chi.URLParam(r, "action"))
	if !ok {
		jsonutil.ErrorKind(w, http.StatusBadRequest, "action must be enable or disable", kindBadRequest)
		return
	}

	res, err := h.toggle(r, chi.URLParam(r, "id"), act, r.Header.Get(TokenHeader))
	if err != nil {
		h.writeToggleError(w, r, err)
		return
	}
	if warning := res.Warning(); warning != "" {
		w.Header().Set(WarningHeader, warning)
	}
	jsonutil.NoContent(w)
}

// apiIssueToken handles POST /api/users/{id}/{action}/token. No token is
// minted for a missing user or for disabling a protected one.
func (h *Handler) apiIssueToken(w http.ResponseWriter, r *http.Request) {
	act, ok := accessgate.ParseAction(chi.URLParam(r, "action"))
	if !ok {
		jsonutil.ErrorKind(w, http.StatusBadRequest, "action must be enable or disable", kindBadRequest)
		return
	}
	u, err := h.loadUser(r)
	if err != nil {
		h.writeToggleError(w, r, err)
		return
	}
	if u.SuperAdmin && act.Disables() {
		h.writeToggleError(w, r, accessgate.ErrProtectedIdentity)
		return
	}

	tok, err := h.tokens.Issue(r.Context(), act, u.ID.Hex(), actorKey(r))
	if err != nil {
		h.errLog.Log(r, "failed to issue action token", err)
		h.writeToggleError(w, r, accessgate.ErrStoreUnavailable)
		return
	}
	jsonutil.Created(w, map[string]any{
		"user_id":    u.ID.Hex(),
		"action":     string(act),
		"token":      tok.Value,
		"expires_at": tok.ExpiresAt,
	})
}

// toggle runs the gate for the signed-in admin and records the outcome.
func (h *Handler) toggle(r *http.Request, target string, act accessgate.Action, token string) (accessgate.ToggleResult, error) {
	ctx := r.Context()
	req := authz.Requester(r)

	res, err := h.gate.Toggle(ctx, accessgate.ToggleRequest{
		Target:    target,
		Action:    act,
		Token:     token,
		Requester: req,
	})
	if err != nil {
		h.auditLogger.ToggleRejected(ctx, r, req.ID, target, act, accessgate.Kind(err))
		return res, err
	}

	h.auditLogger.UserToggled(ctx, r, req.ID, res)
	if res.Changed {
		h.notify(ctx, res)
	}
	return res, nil
}

func (h *Handler) result(r *http.Request, res accessgate.ToggleResult) ResultVM {
	vm := ResultVM{
		UserID:          res.Identity.ID,
		Action:          string(res.Action),
		Status:          status.For(res.Disabled()),
		Changed:         res.Changed,
		SessionsRevoked: res.SessionsRevoked,
		Warning:         res.Warning(),
	}
	next := accessgate.ActionFor(res.Disabled())
	if res.Identity.Privileged && next.Disables() {
		return vm
	}
	tok, err := h.tokens.Issue(r.Context(), next, res.Identity.ID, actorKey(r))
	if err != nil {
		h.logger.Warn("failed to issue follow-up token", zap.String("user_id", res.Identity.ID), zap.Error(err))
		return vm
	}
	vm.NextToken = tok.Value
	vm.NextExpiresAt = &tok.ExpiresAt
	return vm
}

// notify emails the user when the tenant or the deployment asks for it.
func (h *Handler) notify(ctx context.Context, res accessgate.ToggleResult) {
	if h.notifier == nil || res.Identity.Email == "" {
		return
	}
	settings, err := h.settings.Effective(ctx, res.Identity.TenantID)
	if err != nil {
		h.logger.Warn("notification skipped: settings unavailable", zap.Error(err))
		return
	}
	to := mailer.Recipient{Name: res.Identity.Name, Email: res.Identity.Email}
	if res.Disabled() {
		if h.opts.NotifyOnDisable || settings.NotifyUserOnDisable {
			h.notifier.Disabled(to, settings.Notice())
		}
		return
	}
	if h.opts.NotifyOnEnable || settings.NotifyUserOnEnable {
		h.notifier.Enabled(to)
	}
}

// statusFor maps an error kind onto its HTTP status and message.
func statusFor(kind string) (int, string) {
	switch kind {
	case accessgate.KindUnauthorized:
		return http.StatusForbidden, "you may not manage users"
	case accessgate.KindInvalidOrExpiredToken:
		return http.StatusForbidden, "the action token is invalid or expired; reload and try again"
	case accessgate.KindUnknownIdentity:
		return http.StatusNotFound, "user not found"
	case accessgate.KindProtectedIdentity:
		return http.StatusConflict, "this user is protected and cannot be disabled"
	case accessgate.KindStoreUnavailable:
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

// writeToggleError is the single place gate errors become HTTP responses.
func (h *Handler) writeToggleError(w http.ResponseWriter, r *http.Request, err error) {
	kind := accessgate.Kind(err)
	code, msg := statusFor(kind)
	if code >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		h.errLog.LogWithFields(r, "user admin request failed", err,
			zap.String("kind", kind),
			zap.String("target_id", chi.URLParam(r, "id")))
	}
	jsonutil.ErrorKind(w, code, msg, kind)
}
