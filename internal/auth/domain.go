package auth

import "time"

// Known roles. Handlers gate operations on these; the invoice engine
// itself never checks roles.
const (
	RoleAdmin      = "admin"
	RoleAccounting = "accounting"
	RoleOps        = "ops"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
