package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/config"
	"github.com/ekaya-inc/ekaya-tracker/pkg/database"
	"github.com/ekaya-inc/ekaya-tracker/pkg/retry"
)

// PostgresImage is the PostgreSQL image used for integration tests.
const PostgresImage = "postgres:16-alpine"

// Superuser credentials of the test container.
const (
	SuperUser     = "tracker"
	SuperPassword = "test_password"
	testDatabase  = "tracker_test"
)

// TestDB is one PostgreSQL container shared by every integration test in the
// run. Pool connects as SuperUser to the tracker_test database.
type TestDB struct {
	Container testcontainers.Container
	Pool      *database.DB
	ConnStr   string
	Host      string
	Port      int
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB starts the container on first use and skips in -short mode.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = startContainer(context.Background())
	})
	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}
	return sharedTestDB
}

// ConnString returns a connection URL for another role or database on the
// same container.
func (tdb *TestDB) ConnString(user, password, dbName string) string {
	cfg := config.DatabaseConfig{
		Host:     tdb.Host,
		Port:     tdb.Port,
		User:     user,
		Password: password,
		Database: dbName,
		SSLMode:  "disable",
	}
	return cfg.ConnectionString()
}

func startContainer(ctx context.Context) (*TestDB, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        PostgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       testDatabase,
				"POSTGRES_USER":     SuperUser,
				"POSTGRES_PASSWORD": SuperPassword,
			},
			// The init pass and the real server each log readiness once.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	tdb := &TestDB{Container: container, Host: host, Port: port.Int()}
	tdb.ConnStr = tdb.ConnString(SuperUser, SuperPassword, testDatabase)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = 10
	tdb.Pool, err = retry.Do(ctx, retryCfg, func(ctx context.Context) (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{URL: tdb.ConnStr, MaxConnections: 5})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test container: %w", err)
	}
	return tdb, nil
}

// TrackerDB holds the tracker database connection with migrations and seed data applied.
// Use this for testing repositories and services against a real database.
type TrackerDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedTrackerDB     *TrackerDB
	sharedTrackerDBOnce sync.Once
	sharedTrackerDBErr  error
)

// GetTrackerDB returns a shared, migrated and seeded database for integration tests.
func GetTrackerDB(t *testing.T) *TrackerDB {
	t.Helper()

	testDB := GetTestDB(t)

	sharedTrackerDBOnce.Do(func() {
		sharedTrackerDB, sharedTrackerDBErr = setupTrackerDB(testDB)
	})

	if sharedTrackerDBErr != nil {
		t.Fatalf("Failed to setup tracker database: %v", sharedTrackerDBErr)
	}

	return sharedTrackerDB
}

func setupTrackerDB(testDB *TestDB) (*TrackerDB, error) {
	ctx := context.Background()

	// Run migrations using database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", testDB.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            testDB.ConnStr,
		MaxConnections: 10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tracker database: %w", err)
	}

	if err := database.Seed(ctx, db, false, zap.NewNop()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed reference data: %w", err)
	}

	return &TrackerDB{
		DB:      db,
		ConnStr: testDB.ConnStr,
	}, nil
}

// ScopedContext acquires a connection from the tracker database and returns a
// context carrying it. The connection is released when the test finishes.
func (tdb *TrackerDB) ScopedContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cleanup, err := database.NewScopeFunc(tdb.DB)(context.Background())
	if err != nil {
		t.Fatalf("Failed to acquire scoped connection: %v", err)
	}
	t.Cleanup(cleanup)
	return ctx
}
