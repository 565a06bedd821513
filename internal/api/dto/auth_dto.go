package dto

import "github.com/spec-kit/gift-exchange/internal/domain"

// LoginRequest payload for password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GoogleSignInRequest payload for the id_token exchange.
type GoogleSignInRequest struct {
	IDToken string `json:"id_token"`
}

// SessionUpdateRequest is a partial identity update. Absent fields are left unchanged.
type SessionUpdateRequest struct {
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	Email      *string `json:"email"`
	IsVerified *bool   `json:"is_verified"`
}

// Patch converts the request to an identity patch.
func (r SessionUpdateRequest) Patch() domain.IdentityPatch {
	return domain.IdentityPatch{
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email,
		IsVerified: r.IsVerified,
	}
}

// UserResponse is the public identity of a session.
type UserResponse struct {
	ID         string      `json:"id"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name"`
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
	IsVerified bool        `json:"is_verified"`
}

// SessionResponse is the session view rendered to the browser.
type SessionResponse struct {
	AccessToken string              `json:"access_token"`
	Error       domain.SessionError `json:"error,omitempty"`
	User        UserResponse        `json:"user"`
	IsVerified  bool                `json:"is_verified"`
}

// NewUserResponse maps an identity.
func NewUserResponse(id domain.Identity) UserResponse {
	return UserResponse{
		ID:         id.ID,
		FirstName:  id.FirstName,
		LastName:   id.LastName,
		Email:      id.Email,
		Role:       id.Role,
		IsVerified: id.IsVerified,
	}
}

// NewSessionResponse maps a view. It returns nil for a nil view.
func NewSessionResponse(view *domain.SessionView) *SessionResponse {
	if view == nil {
		return nil
	}
	return &SessionResponse{
		AccessToken: view.AccessToken,
		Error:       view.Error,
		User:        NewUserResponse(view.User),
		IsVerified:  view.IsVerified,
	}
}
