package useradmin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/jsonutil"
	"github.com/dalemusser/stratagate/internal/app/system/normalize"
	"github.com/dalemusser/stratagate/internal/app/system/queryfilter"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// rowVM is one user in the list. Token authorizes Action on this user for
// the viewing admin only.
type rowVM struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	LoginID        string     `json:"login_id"`
	Email          string     `json:"email,omitempty"`
	Role           string     `json:"role"`
	Status         string     `json:"status"`
	SuperAdmin     bool       `json:"super_admin"`
	TenantID       string     `json:"tenant_id,omitempty"`
	Action         string     `json:"action,omitempty"`
	Token          string     `json:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	Protected      bool       `json:"protected,omitempty"`
}

// ListVM is the users list response.
type ListVM struct {
	Mode                  string  `json:"mode"`
	HideDisabledByDefault bool    `json:"hide_disabled_by_default"`
	Override              bool    `json:"toggle_override"`
	OnlyDisabled          bool    `json:"only_disabled"`
	TenantID              string  `json:"tenant,omitempty"`
	Search                string  `json:"search,omitempty"`
	Page                  int     `json:"page"`
	TotalPages            int     `json:"total_pages"`
	Total                 int64   `json:"total"`
	Users                 []rowVM `json:"users"`
}

// scopeTenant returns the tenant an admin works in. Admins bound to a
// tenant never see another; global admins may pick one with ?tenant=.
func scopeTenant(r *http.Request) string {
	if u, ok := auth.CurrentUser(r); ok && u.TenantID != "" {
		return u.TenantID
	}
	return query.Get(r, "tenant")
}

// list shows users filtered by the tenant preference and the per-request
// switches. The override is never persisted.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := scopeTenant(r)
	params := queryfilter.ParseParams(r.URL.Query())
	search := normalize.QueryParam(query.Get(r, "search"))

	page := 1
	if p, err := strconv.Atoi(query.Get(r, "page")); err == nil && p > 0 {
		page = p
	}

	settings, err := h.settings.Effective(ctx, tenant)
	if err != nil {
		h.writeToggleError(w, r, fmt.Errorf("load list settings: %w: %w", accessgate.ErrStoreUnavailable, err))
		return
	}
	mode := queryfilter.Resolve(settings.HideDisabledByDefault, params.Override, params.OnlyDisabled)

	base := bson.M{}
	if tenant != "" {
		base["tenant_id"] = tenant
	}
	if search != "" {
		fold := text.Fold(search)
		base["full_name_ci"] = bson.M{"$gte": fold, "$lt": fold + "\uffff"}
	}
	filter := mode.Apply(base)

	total, err := h.users.Count(ctx, filter)
	if err != nil {
		h.writeToggleError(w, r, fmt.Errorf("count users: %w: %w", accessgate.ErrStoreUnavailable, err))
		return
	}
	totalPages := int((total + pageSize - 1) / pageSize)
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "full_name_ci", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(pageSize)
	users, err := h.users.Find(ctx, filter, opts)
	if err != nil {
		h.writeToggleError(w, r, fmt.Errorf("list users: %w: %w", accessgate.ErrStoreUnavailable, err))
		return
	}

	actor := actorKey(r)
	rows := make([]rowVM, 0, len(users))
	for i := range users {
		row, err := h.row(r, &users[i], actor)
		if err != nil {
			h.writeToggleError(w, r, err)
			return
		}
		rows = append(rows, row)
	}

	jsonutil.OK(w, ListVM{
		Mode:                  mode.String(),
		HideDisabledByDefault: settings.HideDisabledByDefault,
		Override:              params.Override,
		OnlyDisabled:          params.OnlyDisabled,
		TenantID:              tenant,
		Search:                search,
		Page:                  page,
		TotalPages:            totalPages,
		Total:                 total,
		Users:                 rows,
	})
}

// row builds the view of u with a fresh token for its available action.
// Disabling a super admin is never offered.
func (h *Handler) row(r *http.Request, u *models.User, actorID string) (rowVM, error) {
	row := rowVM{
		ID:         u.ID.Hex(),
		Name:       u.FullName,
		LoginID:    u.Login(),
		Role:       normalize.Role(u.Role),
		Status:     u.Status,
		SuperAdmin: u.SuperAdmin,
		TenantID:   u.TenantID,
	}
	if u.Email != nil {
		row.Email = *u.Email
	}

	act := accessgate.ActionFor(u.IsDisabled())
	if u.SuperAdmin && act.Disables() {
		row.Protected = true
		return row, nil
	}

	tok, err := h.tokens.Issue(r.Context(), act, row.ID, actorID)
	if err != nil {
		return rowVM{}, fmt.Errorf("issue token: %w: %w", accessgate.ErrStoreUnavailable, err)
	}
	row.Action = string(act)
	row.Token = tok.Value
	row.TokenExpiresAt = &tok.ExpiresAt
	return row, nil
}

// loadUser reads the user named by the {id} URL parameter, keeping tenant
// admins inside their tenant.
func (h *Handler) loadUser(r *http.Request) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		return nil, accessgate.ErrUnknownIdentity
	}
	u, err := h.users.GetByID(r.Context(), oid)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, accessgate.ErrUnknownIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w: %w", accessgate.ErrStoreUnavailable, err)
	}
	if actor, ok := auth.CurrentUser(r); ok && actor.TenantID != "" && actor.TenantID != u.TenantID {
		return nil, accessgate.ErrUnknownIdentity
	}
	return u, nil
}

// sessionVM is one open session of a user.
type sessionVM struct {
	LoginAt      time.Time `json:"login_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
}

// showVM is one user with a fresh token and the sessions a disable would end.
type showVM struct {
	rowVM
	Sessions []sessionVM `json:"sessions"`
}

// show returns one user with a fresh token.
func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	u, err := h.loadUser(r)
	if err != nil {
		h.writeToggleError(w, r, err)
		return
	}
	row, err := h.row(r, u, actorKey(r))
	if err != nil {
		h.writeToggleError(w, r, err)
		return
	}
	active, err := h.sessions.GetActiveByUser(r.Context(), u.ID)
	if err != nil {
		h.writeToggleError(w, r, fmt.Errorf("load sessions: %w: %w", accessgate.ErrStoreUnavailable, err))
		return
	}

	vm := showVM{rowVM: row, Sessions: make([]sessionVM, 0, len(active))}
	for _, s := range active {
		vm.Sessions = append(vm.Sessions, sessionVM{
			LoginAt:      s.LoginAt,
			LastActivity: s.LastActivity,
			ExpiresAt:    s.ExpiresAt,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
		})
	}
	jsonutil.OK(w, vm)
}

const historyLimit = 50

// history returns the most recent audit events about one user.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	u, err := h.loadUser(r)
	if err != nil {
		h.writeToggleError(w, r, err)
		return
	}
	events, err := h.audit.GetByUser(r.Context(), u.ID, historyLimit)
	if err != nil {
		h.writeToggleError(w, r, fmt.Errorf("load history: %w: %w", accessgate.ErrStoreUnavailable, err))
		return
	}
	jsonutil.OK(w, map[string]any{
		"user_id": u.ID.Hex(),
		"events":  events,
	})
}
