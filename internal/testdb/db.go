//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// TestTimeout bounds every setup statement
const TestTimeout = 10 * time.Second

// databaseURLVars are checked in order for a test database URL
var databaseURLVars = []string{"BATCHRUN_TEST_DB_URL", "DATABASE_URL"}

// GetTestDatabaseURL returns the first database URL found in the environment
func GetTestDatabaseURL() string {
	for _, name := range databaseURLVars {
		if url := os.Getenv(name); url != "" {
			return url
		}
	}
	return ""
}

// ShouldSkipDatabaseTest returns true when no test database is configured
func ShouldSkipDatabaseTest() bool {
	return GetTestDatabaseURL() == ""
}

// GetTestDBWithT returns a database connection for testing, with t.Helper() support.
// It skips the test if no database URL is set and closes the pool on cleanup.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("BATCHRUN_TEST_DB_URL or DATABASE_URL not set - skipping integration test")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err, "Failed to open database connection")

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "Database ping failed")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database connection: %v", err)
		}
	})
	return db
}

// CreateItemsTable creates a uniquely named table `(id text primary key,
// processed boolean, ref text)` holding items, and drops it on cleanup.
func CreateItemsTable(t *testing.T, db *sql.DB, items ...string) string {
	t.Helper()

	table := "batchrun_items_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	_, err := db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE %s (id text PRIMARY KEY, processed boolean NOT NULL DEFAULT false, ref text)", table))
	require.NoError(t, err, "Failed to create items table")

	t.Cleanup(func() {
		if _, err := db.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+table); err != nil {
			t.Logf("Warning: failed to drop table %s: %v", table, err)
		}
	})

	for _, item := range items {
		_, err := db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (id) VALUES ($1)", table), item)
		require.NoError(t, err, "Failed to insert item %s", item)
	}
	return table
}
