package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/gift-exchange/internal/domain"
)

func viewWith(role domain.Role, tag domain.SessionError) *domain.SessionView {
	return &domain.SessionView{
		AccessToken: "a1",
		Error:       tag,
		User:        domain.Identity{ID: "1", Role: role},
	}
}

func TestRouteTable_Evaluate(t *testing.T) {
	table := DefaultRouteTable()
	require.NoError(t, table.Validate())

	tests := []struct {
		name     string
		path     string
		query    string
		view     *domain.SessionView
		want     Outcome
		location string
	}{
		{name: "protected without session", path: "/dashboard", want: RedirectLogin, location: "/login?callbackUrl=%2Fdashboard"},
		{name: "protected as user", path: "/dashboard", view: viewWith(domain.RoleUser, ""), want: Allow},
		{name: "admin as user", path: "/admin", view: viewWith(domain.RoleUser, ""), want: RedirectNotAuthorized, location: "/not-authorized"},
		{name: "admin subpath as admin", path: "/admin/users", view: viewWith(domain.RoleAdmin, ""), want: Allow},
		{name: "login while authenticated", path: "/login", view: viewWith(domain.RoleUser, ""), want: RedirectLanding, location: "/dashboard"},
		{name: "register while authenticated", path: "/register", view: viewWith(domain.RoleAdmin, ""), want: RedirectLanding, location: "/dashboard"},
		{name: "login with expired refresh", path: "/login", view: viewWith(domain.RoleUser, domain.SessionErrorRefreshExpired), want: Allow},
		{name: "public without session", path: "/forgot-password", want: Allow},
		{name: "public is exact match", path: "/login/extra", want: RedirectLogin, location: "/login?callbackUrl=%2Flogin%2Fextra"},
		{name: "protected with expired refresh", path: "/groups/7", view: viewWith(domain.RoleUser, domain.SessionErrorRefreshExpired), want: RedirectLogin, location: "/login?callbackUrl=%2Fgroups%2F7"},
		{name: "protected with refresh error is role checked", path: "/wishlists", view: viewWith(domain.RoleUser, domain.SessionErrorRefreshAccessToken), want: Allow},
		{name: "prefix is segment aware", path: "/administrator", view: viewWith(domain.RoleUser, ""), want: Allow},
		{name: "unmatched without session", path: "/settings", query: "tab=email", want: RedirectLogin, location: "/login?callbackUrl=%2Fsettings%3Ftab%3Demail"},
		{name: "unmatched with refresh error", path: "/settings", view: viewWith(domain.RoleUser, domain.SessionErrorRefreshAccessToken), want: RedirectLogin, location: "/login?callbackUrl=%2Fsettings"},
		{name: "unmatched authenticated", path: "/settings", view: viewWith(domain.RoleUser, ""), want: Allow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := table.Evaluate(tc.path, tc.query, tc.view)
			assert.Equal(t, tc.want, got.Outcome)
			assert.Equal(t, tc.location, got.Location)
		})
	}
}

func TestRouteTable_FirstPrefixWins(t *testing.T) {
	table := DefaultRouteTable()
	table.Protected = append([]ProtectedRoute{{Prefix: "/groups/secret", Roles: []domain.Role{domain.RoleAdmin}}}, table.Protected...)
	require.NoError(t, table.Validate())

	got := table.Evaluate("/groups/secret/1", "", viewWith(domain.RoleUser, ""))
	assert.Equal(t, RedirectNotAuthorized, got.Outcome)

	got = table.Evaluate("/groups/1", "", viewWith(domain.RoleUser, ""))
	assert.Equal(t, Allow, got.Outcome)
}

func TestRouteTable_Validate(t *testing.T) {
	table := DefaultRouteTable()
	table.Protected = append(table.Protected,
		ProtectedRoute{Prefix: "/admin", Roles: []domain.Role{domain.RoleAdmin}},
		ProtectedRoute{Prefix: "", Roles: []domain.Role{domain.RoleUser}},
		ProtectedRoute{Prefix: "/orphan"},
	)

	err := table.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate prefix "/admin"`)
	assert.Contains(t, err.Error(), "must start with /")
	assert.Contains(t, err.Error(), `protected route "/orphan": no roles`)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "redirect_login", RedirectLogin.String())
	assert.Equal(t, "redirect_not_authorized", RedirectNotAuthorized.String())
	assert.Equal(t, "redirect_landing", RedirectLanding.String())
}
