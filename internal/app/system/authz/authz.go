// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/jsonutil"
)

// roleCapabilities maps a role to the capabilities it grants. Roles not
// listed grant nothing.
var roleCapabilities = map[string][]string{
	"admin": {accessgate.CapabilityManageUsers},
}

// CapabilitiesFor returns the capabilities granted to a role. A super admin
// holds every capability regardless of role.
func CapabilitiesFor(role string, superAdmin bool) []string {
	if superAdmin {
		return []string{accessgate.CapabilityManageUsers}
	}
	caps := roleCapabilities[strings.ToLower(strings.TrimSpace(role))]
	return append([]string(nil), caps...)
}

// Requester builds the access gate's view of the caller. An anonymous
// request yields a Requester with no ID and no capabilities.
func Requester(r *http.Request) accessgate.Requester {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return accessgate.Requester{}
	}
	return accessgate.Requester{
		ID:           user.ID,
		Capabilities: CapabilitiesFor(user.Role, user.SuperAdmin),
	}
}

// Can reports whether the current user holds capability c.
func Can(r *http.Request, c string) bool {
	return Requester(r).Can(c)
}

// RequireCapability rejects callers lacking c with a JSON 403, or a 401 when
// nobody is signed in.
func RequireCapability(c string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsLoggedIn(r) {
				jsonutil.Unauthorized(w, "unauthorized")
				return
			}
			if !Can(r, c) {
				jsonutil.Error(w, http.StatusForbidden, accessgate.KindUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsLoggedIn reports whether there is a user in the request context.
func IsLoggedIn(r *http.Request) bool {
	_, ok := auth.CurrentUser(r)
	return ok
}
