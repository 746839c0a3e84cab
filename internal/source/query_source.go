package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/batchrun/internal/spillqueue"
	"go.uber.org/multierr"
)

// ErrEmptyQuery is returned when a QuerySource has no query to run
var ErrEmptyQuery = errors.New("work item query cannot be empty")

// Querier is the part of *sql.DB a QuerySource needs
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// QuerySource collects work items from the first column of a SQL query.
// NULL and blank values are skipped.
type QuerySource struct {
	buffer
	db    Querier
	query string
	args  []any
}

// NewQuerySource creates a source that runs query against db on Open
func NewQuerySource(db Querier, query string, buf spillqueue.Config, logger *slog.Logger, args ...any) (*QuerySource, error) {
	if db == nil {
		return nil, errors.New("querier cannot be nil")
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	return &QuerySource{
		buffer: newBuffer(buf, logger.With("component", "query_source")),
		db:     db,
		query:  query,
		args:   args,
	}, nil
}

// Open runs the query and buffers every returned item
func (s *QuerySource) Open(ctx context.Context) (err error) {
	if err := s.open(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, s.Close())
		}
	}()

	rows, err := s.db.QueryContext(ctx, s.query, s.args...)
	if err != nil {
		return fmt.Errorf("failed to run work item query: %w", err)
	}
	defer func() {
		err = multierr.Append(err, rows.Close())
	}()

	for rows.Next() {
		var item sql.NullString
		if err := rows.Scan(&item); err != nil {
			return fmt.Errorf("failed to scan work item: %w", err)
		}
		if !item.Valid {
			continue
		}
		if err := s.add(item.String); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read work item query results: %w", err)
	}

	s.logger.Info("work item query loaded", "items", s.total, "spilled", s.queue.Spilled())
	return nil
}
