package types

import "time"

// Role is the coarse permission class attached to a user.
type Role string

const (
	// RoleUser may browse, search and purchase sweets.
	RoleUser Role = "user"

	// RoleAdmin may additionally create, update, delete and restock sweets.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the opaque unique identifier of the user.
	ID string `json:"id" db:"id"`

	// Email is the unique login key, compared exactly as stored.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level within the system.
	Role Role `json:"role" db:"role"`

	// PasswordHash stores the salted one-way hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
