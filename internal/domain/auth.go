package domain

import "time"

// SessionError tags a Token Record that failed to refresh or to be created.
type SessionError string

const (
	SessionErrorNone               SessionError = ""
	SessionErrorRefreshAccessToken SessionError = "RefreshAccessTokenError"
	SessionErrorRefreshExpired     SessionError = "RefreshTokenExpired"
	SessionErrorGoogleSignIn       SessionError = "GoogleSignInError"
)

// ForcesSignOut reports whether a session carrying this tag must be signed out.
func (e SessionError) ForcesSignOut() bool {
	return e == SessionErrorRefreshAccessToken || e == SessionErrorRefreshExpired
}

// TokenRecord is the opaque session token held by the Token Store.
type TokenRecord struct {
	SessionID            string       `json:"sid"`
	AccessToken          string       `json:"access_token"`
	RefreshToken         string       `json:"refresh_token"`
	AccessTokenExpiresAt time.Time    `json:"access_token_expires_at"`
	IssuedAt             time.Time    `json:"issued_at"`
	Identity             Identity     `json:"identity"`
	Error                SessionError `json:"error,omitempty"`
}

// AccessTokenValid reports whether the access token is still inside its validity window.
func (r TokenRecord) AccessTokenValid(now time.Time) bool {
	return now.Before(r.AccessTokenExpiresAt)
}

// WithIdentityPatch returns a copy of the record with the patch merged into its identity.
func (r TokenRecord) WithIdentityPatch(p IdentityPatch) TokenRecord {
	r.Identity = p.Apply(r.Identity)
	return r
}

// SessionView is the read-only projection of one Token Record.
type SessionView struct {
	AccessToken string       `json:"access_token"`
	Error       SessionError `json:"error,omitempty"`
	User        Identity     `json:"user"`
	IsVerified  bool         `json:"is_verified"`
}

// Authenticated reports whether the view belongs to a session with no error tag.
func (v *SessionView) Authenticated() bool {
	return v != nil && v.Error == SessionErrorNone
}

// Project derives the Session View from a Token Record. It never refreshes.
func Project(r TokenRecord) SessionView {
	return SessionView{
		AccessToken: r.AccessToken,
		Error:       r.Error,
		User:        r.Identity,
		IsVerified:  r.Identity.IsVerified,
	}
}

// SignOutReason records why a session ended.
type SignOutReason string

const (
	SignOutUser           SignOutReason = "signout"
	SignOutSessionExpired SignOutReason = "SessionExpired"
	SignOutInactivity     SignOutReason = "inactivity"
)

// LoginPath is where the client lands after a sign-out for this reason.
func (r SignOutReason) LoginPath(loginPath string) string {
	if r == SignOutSessionExpired {
		return loginPath + "?error=" + string(SignOutSessionExpired)
	}
	return loginPath
}

// RefreshOutcome is a successful refresh shared between instances.
type RefreshOutcome struct {
	AccessToken string    `json:"access"`
	ExpiresAt   time.Time `json:"expires_at"`
}
