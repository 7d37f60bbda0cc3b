package models

import "github.com/google/uuid"

// User roles recognized by the authorization checks.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`
	Role     string    `json:"role"`

	IsGuest bool `json:"is_guest"`
}

// Actor is the pre-authenticated caller identity attached to every request.
type Actor struct {
	UserID  uuid.UUID
	Role    string
	IsGuest bool
}

// IsAdmin reports whether the actor carries the administrative role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
