package domain

import (
	"strings"
	"time"
)

// User is an identity directory entry. Appointments reference users by ID only.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins the display name components.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Caller projects the user into the principal the core operates on.
func (u User) Caller() Caller {
	roles := make([]Role, len(u.Roles))
	copy(roles, u.Roles)
	return Caller{ID: u.ID, Roles: roles}
}

// HasRole reports whether the user holds role.
func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
