package dto

import "github.com/Pnishada/service-desk/internal/domain"

// LoginRequest payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the token pair and the identity record.
type LoginResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    UserPayload `json:"user"`
}

// RefreshRequest payload.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse payload.
type RefreshResponse struct {
	Access string `json:"access"`
}

// UserPayload is the wire shape of an identity record.
type UserPayload struct {
	ID       int64            `json:"id"`
	Username string           `json:"username"`
	FullName string           `json:"full_name"`
	Email    string           `json:"email"`
	Role     string           `json:"role"`
	Branch   domain.EntityRef `json:"branch"`
	IsActive *bool            `json:"is_active,omitempty"`
}

// ToDomain converts the payload, normalizing the role.
func (p UserPayload) ToDomain() domain.User {
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	return domain.User{
		ID:       p.ID,
		Username: p.Username,
		FullName: p.FullName,
		Email:    p.Email,
		Role:     domain.ParseRole(p.Role),
		Branch:   p.Branch,
		IsActive: active,
	}
}

// FromUser converts a domain user back to the wire shape.
func FromUser(u domain.User) UserPayload {
	active := u.IsActive
	return UserPayload{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Email:    u.Email,
		Role:     string(u.Role),
		Branch:   u.Branch,
		IsActive: &active,
	}
}
