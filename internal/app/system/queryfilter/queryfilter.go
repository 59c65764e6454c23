// Package queryfilter decides which users an admin list shows, based on the
// tenant's hide-disabled preference and two per-request switches.
package queryfilter

import (
	"net/url"
	"strings"

	"github.com/dalemusser/stratagate/internal/app/system/status"
	"go.mongodb.org/mongo-driver/bson"
)

// Mode is the effective list filter.
type Mode int

const (
	ShowAll Mode = iota
	HideDisabled
	OnlyDisabled
)

func (m Mode) String() string {
	switch m {
	case HideDisabled:
		return "hide_disabled"
	case OnlyDisabled:
		return "only_disabled"
	}
	return "show_all"
}

// Resolve combines the tenant default with the request switches.
// onlyDisabled wins outright. Otherwise override flips the tenant default.
func Resolve(hideByDefault, override, onlyDisabled bool) Mode {
	if onlyDisabled {
		return OnlyDisabled
	}
	if hideByDefault != override {
		return HideDisabled
	}
	return ShowAll
}

// Match reports whether a user with the given flag is listed under m.
func (m Mode) Match(disabled bool) bool {
	switch m {
	case HideDisabled:
		return !disabled
	case OnlyDisabled:
		return disabled
	}
	return true
}

// Apply returns a copy of base restricted to m. base is not modified. A
// status predicate already in base is kept and combined with $and.
func (m Mode) Apply(base bson.M) bson.M {
	out := bson.M{}
	for k, v := range base {
		out[k] = v
	}

	var pred any
	switch m {
	case HideDisabled:
		pred = bson.M{"$ne": status.Disabled}
	case OnlyDisabled:
		pred = status.Disabled
	default:
		return out
	}

	if existing, ok := out["status"]; ok {
		delete(out, "status")
		and := clauses(out["$and"])
		out["$and"] = append(and, bson.M{"status": existing}, bson.M{"status": pred})
		return out
	}
	out["status"] = pred
	return out
}

// clauses copies an existing $and into a fresh array. A value of a shape
// it does not know is nested as its own $and so the restriction survives.
func clauses(prior any) bson.A {
	switch p := prior.(type) {
	case nil:
		return bson.A{}
	case bson.A:
		return append(bson.A{}, p...)
	case []any:
		return append(bson.A{}, p...)
	case []bson.M:
		out := make(bson.A, 0, len(p)+2)
		for _, c := range p {
			out = append(out, c)
		}
		return out
	case []bson.D:
		out := make(bson.A, 0, len(p)+2)
		for _, c := range p {
			out = append(out, c)
		}
		return out
	default:
		return bson.A{bson.M{"$and": prior}}
	}
}

// Params are the per-request switches.
type Params struct {
	Override     bool
	OnlyDisabled bool
}

// ParseParams reads toggle_override and only_disabled from a query string.
func ParseParams(q url.Values) Params {
	return Params{
		Override:     truthy(q.Get("toggle_override")),
		OnlyDisabled: truthy(q.Get("only_disabled")),
	}
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
