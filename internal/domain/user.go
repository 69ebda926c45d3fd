package domain

import "time"

// UserRole gates access to agent and admin operations.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAgent UserRole = "agent"
	UserRoleAdmin UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleUser, UserRoleAgent, UserRoleAdmin:
		return true
	}
	return false
}

// Privileged reports whether the role acts on behalf of support staff.
func (r UserRole) Privileged() bool {
	return r == UserRoleAgent || r == UserRoleAdmin
}

// User is an account able to submit or work tickets.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
	LastLoginAt  *time.Time
	LoginCount   int
}

// Identity is the signed-in caller as seen by services.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
	Role        UserRole
}

// IdentityOf projects a user into a caller identity.
func IdentityOf(u *User) Identity {
	return Identity{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role}
}
