// Package postgres implements the remote session contracts on PostgreSQL.
// Sessions are dedicated database/sql connections driven by pgx; request
// variables are bound as named arguments and server errors are mapped to
// typed remote errors by SQLSTATE.
package postgres
