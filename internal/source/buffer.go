package source

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/batchrun/internal/spillqueue"
)

// Common errors returned by sources
var (
	ErrNotOpen       = errors.New("work item source is not open")
	ErrAlreadyOpen   = errors.New("work item source is already open")
	ErrBufferFailure = errors.New("failed to buffer work item")
)

// DefaultMaxInMemory is the number of items a source keeps in memory before
// spilling to disk
const DefaultMaxInMemory = 10000

// buffer holds the items of an opened source
type buffer struct {
	cfg    spillqueue.Config
	logger *slog.Logger

	queue *spillqueue.Queue[string]
	total int
}

func newBuffer(cfg spillqueue.Config, logger *slog.Logger) buffer {
	if cfg.MaxInMemory < 1 {
		cfg.MaxInMemory = DefaultMaxInMemory
	}
	return buffer{cfg: cfg, logger: logger}
}

func (b *buffer) open() error {
	if b.queue != nil {
		return ErrAlreadyOpen
	}
	queue, err := spillqueue.New[string](b.cfg, b.logger)
	if err != nil {
		return fmt.Errorf("failed to create item buffer: %w", err)
	}
	b.queue = queue
	b.total = 0
	return nil
}

// add buffers item unless it is blank
func (b *buffer) add(item string) error {
	item = strings.TrimSpace(item)
	if item == "" {
		return nil
	}
	if !b.queue.Offer(item) {
		return fmt.Errorf("%w: item %d", ErrBufferFailure, b.total+1)
	}
	b.total++
	return nil
}

// HasNext reports whether another item is buffered
func (b *buffer) HasNext() bool {
	return b.queue != nil && b.queue.Len() > 0
}

// Next returns the next buffered item
func (b *buffer) Next() (string, error) {
	if b.queue == nil {
		return "", ErrNotOpen
	}
	return b.queue.Remove()
}

// TotalCount returns the number of items buffered on Open
func (b *buffer) TotalCount() int {
	return b.total
}

// Close drops the remaining items and removes the spill file
func (b *buffer) Close() error {
	if b.queue == nil {
		return nil
	}
	err := b.queue.Close()
	b.queue = nil
	return err
}
