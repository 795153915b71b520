package model

import "time"

// Roles recognised by the role middleware.  STAFF runs the counter,
// ADMIN additionally manages slots and reads reports.
const (
	RoleUser  = "USER"
	RoleStaff = "STAFF"
	RoleAdmin = "ADMIN"
)

// User mirrors the `users` table.
type User struct {
	ID           uint64
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
