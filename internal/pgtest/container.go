// Package pgtest centralizes the Postgres testcontainer bootstrap shared by
// every package's _integration_test.go files (pgoutbox, idempotency,
// projection, saga). It factors out the boilerplate
// internal/storage/persistent_key_store_integration_test.go duplicates per
// file: start a container, connect, run migrations, hand back a *sql.DB.
package pgtest

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsPath is relative to a package two levels under internal/
// (e.g. internal/outbox/pgoutbox, internal/idempotency/pgidempotency).
// Open always uses this path, so it only works from packages at that depth.
const migrationsPath = "file://../../../migrations"

// Open starts a Postgres container, connects to it, applies every
// migration in migrations/, and registers cleanup with t.Cleanup. It skips
// the test when testing.Short() is set, matching the teacher's
// lineage_store_integration_test.go convention.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := pgcontainer.Run(ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("outboxkit_test"),
		pgcontainer.WithUsername("test"),
		pgcontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("read connection string: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	if err := waitForPing(ctx, db); err != nil {
		t.Fatalf("ping database: %v", err)
	}

	if err := migrateUp(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}

func waitForPing(ctx context.Context, db *sql.DB) error {
	deadline := time.Now().Add(30 * time.Second)

	var lastErr error
	for time.Now().Before(deadline) {
		if lastErr = db.PingContext(ctx); lastErr == nil {
			return nil
		}

		time.Sleep(200 * time.Millisecond)
	}

	return lastErr
}

func migrateUp(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
