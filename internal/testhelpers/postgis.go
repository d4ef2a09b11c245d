// Package testhelpers starts a throwaway PostGIS container for integration
// tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/EmpoweredVote/crime-analytics/internal/config"
	"github.com/EmpoweredVote/crime-analytics/internal/db"
)

const PostGISImage = "postgis/postgis:16-3.4"

// TestDB is a migrated PostGIS database shared by every test in a run.
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns the shared container, starting it on first use. Skipped
// in -short mode since it needs Docker.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})
	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}
	return sharedTestDB
}

// Truncate empties every application table.
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()
	err := tdb.DB.Exec("TRUNCATE predictions, model_runs, suspects, crime_records, districts").Error
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostGISImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "crime_test",
			"POSTGRES_USER":     "crime",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "crime",
		Password:        "test_password",
		Name:            "crime_test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
		SlowQuery:       time.Second,
	}

	log := zap.NewNop()
	if err := db.Migrate(cfg.DSN(), log); err != nil {
		return nil, err
	}
	gdb, err := db.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	return &TestDB{Container: container, DB: gdb, ConnStr: cfg.DSN()}, nil
}
