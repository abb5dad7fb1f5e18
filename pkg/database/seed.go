package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

// SeedData is the reference data every installation needs, plus an optional demo project.
type SeedData struct {
	Roles       []string     `yaml:"roles"`
	Statuses    []string     `yaml:"statuses"`
	DemoProject *DemoProject `yaml:"demo_project"`
}

// DemoProject is a sample project created on an empty database when demo seeding is enabled.
type DemoProject struct {
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Admins      []string     `yaml:"admins"`
	Tickets     []DemoTicket `yaml:"tickets"`
}

type DemoTicket struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Status      string `yaml:"status"`
	Assignee    string `yaml:"assignee"`
	Reporter    string `yaml:"reporter"`
}

// LoadSeedData parses the embedded seed file.
func LoadSeedData() (*SeedData, error) {
	var data SeedData
	if err := yaml.Unmarshal(seedYAML, &data); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	if len(data.Roles) == 0 {
		return nil, fmt.Errorf("seed data defines no roles")
	}
	return &data, nil
}

// Seed inserts reference roles and statuses if missing. When withDemo is set and
// no project exists yet, the demo project is created with its admins and tickets.
// Safe to run on every startup.
func Seed(ctx context.Context, db *DB, withDemo bool, logger *zap.Logger) error {
	data, err := LoadSeedData()
	if err != nil {
		return err
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, title := range data.Roles {
		if _, err := tx.Exec(ctx,
			`INSERT INTO roles (title) VALUES ($1) ON CONFLICT (title) DO NOTHING`, title); err != nil {
			return fmt.Errorf("failed to seed role %q: %w", title, err)
		}
	}
	for _, name := range data.Statuses {
		if _, err := tx.Exec(ctx,
			`INSERT INTO statuses (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("failed to seed status %q: %w", name, err)
		}
	}

	if withDemo && data.DemoProject != nil {
		created, err := seedDemoProject(ctx, tx, data.DemoProject)
		if err != nil {
			return err
		}
		if created {
			logger.Info("Seeded demo project", zap.String("title", data.DemoProject.Title))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	logger.Info("Reference data seeded",
		zap.Int("roles", len(data.Roles)),
		zap.Int("statuses", len(data.Statuses)))
	return nil
}

func seedDemoProject(ctx context.Context, tx pgx.Tx, demo *DemoProject) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check for existing projects: %w", err)
	}
	if exists {
		return false, nil
	}

	var projectID int64
	err := tx.QueryRow(ctx,
		`INSERT INTO projects (title, description) VALUES ($1, $2) RETURNING id`,
		demo.Title, demo.Description).Scan(&projectID)
	if err != nil {
		return false, fmt.Errorf("failed to seed demo project: %w", err)
	}

	for _, email := range demo.Admins {
		_, err := tx.Exec(ctx, `
			INSERT INTO project_users (project_id, user_email, role_id)
			SELECT $1, $2, id FROM roles WHERE title = 'Admin'`,
			projectID, email)
		if err != nil {
			return false, fmt.Errorf("failed to seed demo member %q: %w", email, err)
		}
	}

	for _, t := range demo.Tickets {
		_, err := tx.Exec(ctx, `
			INSERT INTO tickets (project_id, title, description, status_id, assignee_email, reporter_email)
			SELECT $1, $2, $3, id, NULLIF($5, ''), $6 FROM statuses WHERE name = $4`,
			projectID, t.Title, t.Description, t.Status, t.Assignee, t.Reporter)
		if err != nil {
			return false, fmt.Errorf("failed to seed demo ticket %q: %w", t.Title, err)
		}
	}

	return true, nil
}
