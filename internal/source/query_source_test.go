package source

import (
	"context"
	"database/sql"
	"testing"

	"github.com/phrazzld/batchrun/internal/spillqueue"
	"github.com/stretchr/testify/assert"
)

type nopQuerier struct{}

func (nopQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, sql.ErrConnDone
}

func TestNewQuerySource_Validation(t *testing.T) {
	_, err := NewQuerySource(nil, "SELECT 1", spillqueue.Config{}, setupTestLogger())
	assert.Error(t, err)

	_, err = NewQuerySource(nopQuerier{}, "   ", spillqueue.Config{}, setupTestLogger())
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestQuerySource_QueryFailureReleasesBuffer(t *testing.T) {
	s, err := NewQuerySource(nopQuerier{}, "SELECT id FROM items", spillqueue.Config{}, setupTestLogger())
	assert.NoError(t, err)

	err = s.Open(context.Background())
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.False(t, s.HasNext())
	assert.Equal(t, 0, s.TotalCount())

	// the source can be opened again after a failure
	assert.ErrorIs(t, s.Open(context.Background()), sql.ErrConnDone)
}
