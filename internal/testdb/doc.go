//go:build integration

// Package testdb provides helpers for tests that need a PostgreSQL database.
//
// Tests using it are compiled only with the integration build tag and are
// skipped unless a database URL is set in BATCHRUN_TEST_DB_URL or
// DATABASE_URL:
//
//	func TestMyFeature(t *testing.T) {
//	    db := testdb.GetTestDBWithT(t)
//	    table := testdb.CreateItemsTable(t, db, "a", "b")
//	    // ...
//	}
package testdb
