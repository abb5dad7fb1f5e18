// Package models contains domain types for ekaya-tracker.
package models

import (
	"strings"
	"time"
)

// Project represents a project in the system.
type Project struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Version     int       `json:"version"` // Optimistic concurrency token, bumped on every update
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MaxProjectTitleLength bounds user-supplied project titles.
const MaxProjectTitleLength = 200

// Normalize trims whitespace from user-supplied fields.
func (p *Project) Normalize() {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
}
