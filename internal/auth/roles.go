package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spec-kit/gift-exchange/internal/domain"
)

// Outcome is the Route Guard verdict for one navigation.
type Outcome int

const (
	Allow Outcome = iota
	RedirectLogin
	RedirectNotAuthorized
	RedirectLanding
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectNotAuthorized:
		return "redirect_not_authorized"
	case RedirectLanding:
		return "redirect_landing"
	default:
		return "unknown"
	}
}

// Decision is the Route Guard result. Location is empty when the outcome is Allow.
type Decision struct {
	Outcome  Outcome
	Location string
}

// ProtectedRoute gates every path under Prefix to the listed roles.
type ProtectedRoute struct {
	Prefix string
	Roles  []domain.Role
}

func (r ProtectedRoute) matches(path string) bool {
	return path == r.Prefix || strings.HasPrefix(path, strings.TrimRight(r.Prefix, "/")+"/")
}

func (r ProtectedRoute) permits(role domain.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// RouteTable is the static route to role mapping. It is built once and never mutated.
type RouteTable struct {
	Public            []string
	Protected         []ProtectedRoute
	LoginPath         string
	RegisterPath      string
	LandingPath       string
	NotAuthorizedPath string
	CallbackParam     string
}

// DefaultRouteTable returns the gift-exchange route table.
func DefaultRouteTable() RouteTable {
	both := []domain.Role{domain.RoleUser, domain.RoleAdmin}
	return RouteTable{
		Public: []string{"/", "/login", "/register", "/not-authorized", "/forgot-password"},
		Protected: []ProtectedRoute{
			{Prefix: "/admin", Roles: []domain.Role{domain.RoleAdmin}},
			{Prefix: "/dashboard", Roles: both},
			{Prefix: "/groups", Roles: both},
			{Prefix: "/wishlists", Roles: both},
			{Prefix: "/profile", Roles: both},
		},
		LoginPath:         "/login",
		RegisterPath:      "/register",
		LandingPath:       "/dashboard",
		NotAuthorizedPath: "/not-authorized",
		CallbackParam:     "callbackUrl",
	}
}

// Validate rejects tables that cannot be evaluated deterministically.
func (t RouteTable) Validate() error {
	var errs []error
	if t.LoginPath == "" || t.LandingPath == "" || t.NotAuthorizedPath == "" {
		errs = append(errs, errors.New("login, landing and not-authorized paths are required"))
	}
	if t.CallbackParam == "" {
		errs = append(errs, errors.New("callback parameter is required"))
	}

	seen := make(map[string]struct{}, len(t.Protected))
	for i, route := range t.Protected {
		if route.Prefix == "" || !strings.HasPrefix(route.Prefix, "/") {
			errs = append(errs, fmt.Errorf("protected route %d: prefix %q must start with /", i, route.Prefix))
			continue
		}
		if _, dup := seen[route.Prefix]; dup {
			errs = append(errs, fmt.Errorf("protected route %d: duplicate prefix %q", i, route.Prefix))
		}
		seen[route.Prefix] = struct{}{}
		if len(route.Roles) == 0 {
			errs = append(errs, fmt.Errorf("protected route %q: no roles", route.Prefix))
		}
	}
	return errors.Join(errs...)
}

// Evaluate decides one navigation. rawQuery is the original query string
// (without '?') and is preserved in the login callback. A nil view is an
// unauthenticated caller.
func (t RouteTable) Evaluate(path, rawQuery string, view *domain.SessionView) Decision {
	if view.Authenticated() && (path == t.LoginPath || path == t.RegisterPath) {
		return Decision{Outcome: RedirectLanding, Location: t.LandingPath}
	}

	if t.isPublic(path) {
		return Decision{Outcome: Allow}
	}

	if route, ok := t.match(path); ok {
		if view == nil || view.Error == domain.SessionErrorRefreshExpired {
			return t.loginRedirect(path, rawQuery)
		}
		if !route.permits(view.User.Role) {
			return Decision{Outcome: RedirectNotAuthorized, Location: t.NotAuthorizedPath}
		}
		return Decision{Outcome: Allow}
	}

	if !view.Authenticated() {
		return t.loginRedirect(path, rawQuery)
	}
	return Decision{Outcome: Allow}
}

// LoginRedirect is the login location that returns the caller to path afterwards.
func (t RouteTable) LoginRedirect(path, rawQuery string) string {
	return t.loginRedirect(path, rawQuery).Location
}

func (t RouteTable) isPublic(path string) bool {
	for _, p := range t.Public {
		if p == path {
			return true
		}
	}
	return false
}

func (t RouteTable) match(path string) (ProtectedRoute, bool) {
	for _, route := range t.Protected {
		if route.matches(path) {
			return route, true
		}
	}
	return ProtectedRoute{}, false
}

func (t RouteTable) loginRedirect(path, rawQuery string) Decision {
	original := path
	if rawQuery != "" {
		original += "?" + rawQuery
	}
	return Decision{
		Outcome:  RedirectLogin,
		Location: t.LoginPath + "?" + t.CallbackParam + "=" + url.QueryEscape(original),
	}
}
