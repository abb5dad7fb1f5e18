package models

import "time"

// Status is a reference label a ticket can carry ("To Do", "In Progress", "Done").
type Status struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Ticket is an issue filed within a project. Users are referenced by email so
// that history survives membership removal.
type Ticket struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"project_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	StatusID      int64     `json:"status_id"`
	AssigneeEmail string    `json:"assignee_email,omitempty"`
	ReporterEmail string    `json:"reporter_email"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
