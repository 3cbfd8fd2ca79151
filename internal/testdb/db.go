package testdb

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	// Register the pgx database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/taskrelay/dispatch-api/internal/platform/postgres"
)

// EnvTestDatabaseURL names the environment variable carrying the test
// database connection URL.
const EnvTestDatabaseURL = "DISPATCH_TEST_DATABASE_URL"

// GetTestDB opens a connection to the test database and applies the
// embedded migrations. The test is skipped when no test database is
// configured, so the unit suite stays runnable without infrastructure.
// The connection is closed automatically when the test finishes.
func GetTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv(EnvTestDatabaseURL)
	if url == "" {
		t.Skipf("integration test skipped: %s not set", EnvTestDatabaseURL)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping test database: %v", err)
	}

	if err := postgres.MigrateUp(ctx, db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}
