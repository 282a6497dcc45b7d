package models

import (
	"time"
)

const (
	RoleUser   = "user"
	RoleFarmer = "farmer"
	RoleBuyer  = "buyer"
	RoleAdmin  = "admin"
)

// User is the account record the guard authenticates against. Accounts are
// owned by the marketplace; the security core reads them and bootstraps the
// initial admin.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
