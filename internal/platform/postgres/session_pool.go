package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/batchrun/internal/remote"
)

// LanguageSQL is the only statement language PostgreSQL sessions accept
const LanguageSQL = "sql"

// setTimeZoneQuery applies a time zone to the current connection
const setTimeZoneQuery = "SELECT set_config('TimeZone', $1, false)"

// SessionPool implements remote.SessionPool over a database/sql pool. Each
// session holds one dedicated connection until it is closed.
type SessionPool struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSessionPool creates a SessionPool. The caller keeps ownership of db.
func NewSessionPool(db *sql.DB, logger *slog.Logger) *SessionPool {
	return &SessionPool{
		db:     db,
		logger: logger.With("component", "postgres_sessions"),
	}
}

// Get checks a connection out of the pool
func (p *SessionPool) Get(ctx context.Context) (remote.Session, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, MapError(fmt.Errorf("failed to acquire connection: %w", err))
	}
	return &session{conn: conn, logger: p.logger}, nil
}

type session struct {
	conn     *sql.Conn
	logger   *slog.Logger
	timeZone string
}

// Submit runs the request's statement with its variables bound as named
// arguments (@URI, @DOC, @BATCH_REF, and custom names)
func (s *session) Submit(ctx context.Context, req *remote.Request) (remote.Result, error) {
	if lang := strings.ToLower(req.Language); lang != "" && lang != LanguageSQL {
		return nil, &remote.Error{
			Kind:    remote.KindRequest,
			Message: fmt.Sprintf("unsupported statement language %q", req.Language),
		}
	}

	if req.TimeZone != nil && req.TimeZone.String() != s.timeZone {
		if _, err := s.conn.ExecContext(ctx, setTimeZoneQuery, req.TimeZone.String()); err != nil {
			return nil, MapError(fmt.Errorf("failed to set session time zone: %w", err))
		}
		s.timeZone = req.TimeZone.String()
	}

	query, args, err := bindRequest(ctx, req)
	if err != nil {
		return nil, &remote.Error{Kind: remote.KindRequest, Message: "failed to bind request variables", Err: err}
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	return &rowsResult{rows: rows}, nil
}

// Close returns the connection to the pool
func (s *session) Close() error {
	return s.conn.Close()
}

// bindRequest rewrites the statement's named arguments into positional ones
func bindRequest(ctx context.Context, req *remote.Request) (string, []any, error) {
	if len(req.Variables) == 0 {
		return req.Statement, nil, nil
	}
	return pgx.NamedArgs(req.Variables).RewriteQuery(ctx, nil, req.Statement, nil)
}

// rowsResult adapts *sql.Rows to remote.Result
type rowsResult struct {
	rows *sql.Rows
}

func (r *rowsResult) Next() bool {
	return r.rows.Next()
}

func (r *rowsResult) Values() ([]any, error) {
	cols, err := r.rows.Columns()
	if err != nil {
		return nil, MapError(err)
	}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		return nil, MapError(err)
	}
	return values, nil
}

// Err returns the mapped iteration error; query errors often surface here
// rather than from Submit
func (r *rowsResult) Err() error {
	return MapError(r.rows.Err())
}

func (r *rowsResult) Close() error {
	return r.rows.Close()
}
