package domain

// Role is the caller role carried in the identity record.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Identity holds the denormalized user attributes of a Token Record.
type Identity struct {
	ID         string `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	IsVerified bool   `json:"is_verified"`
}

// IdentityPatch is a partial identity update. Nil fields are left unchanged.
type IdentityPatch struct {
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Role       *Role   `json:"role,omitempty"`
	IsVerified *bool   `json:"is_verified,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p IdentityPatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil && p.Role == nil && p.IsVerified == nil
}

// Apply merges the patch into a copy of the identity.
func (p IdentityPatch) Apply(id Identity) Identity {
	if p.FirstName != nil {
		id.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		id.LastName = *p.LastName
	}
	if p.Email != nil {
		id.Email = *p.Email
	}
	if p.Role != nil {
		id.Role = *p.Role
	}
	if p.IsVerified != nil {
		id.IsVerified = *p.IsVerified
	}
	return id
}
