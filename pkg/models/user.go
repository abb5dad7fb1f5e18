package models

import (
	"strings"
	"time"
)

// RoleTitle is the title of a per-project role. The empty value means the user
// holds no role in the project.
type RoleTitle string

// Role titles seeded into the roles table.
const (
	RoleNone  RoleTitle = ""
	RoleAdmin RoleTitle = "Admin"
	RoleUser  RoleTitle = "User"
)

// IsNone reports whether the title represents "no role in the project".
func (t RoleTitle) IsNone() bool {
	return t == RoleNone
}

// Role is a named permission tier applied per membership.
type Role struct {
	ID    int64     `json:"id"`
	Title RoleTitle `json:"title"`
}

// Membership associates one user email with one project and one role.
type Membership struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	UserEmail string `json:"user_email"`
	RoleID    int64  `json:"role_id"`
	// RoleTitle is populated by joins; empty when role_id does not resolve.
	RoleTitle RoleTitle `json:"role_title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address so that membership
// lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
