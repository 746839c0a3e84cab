package spillqueue

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.uber.org/multierr"
)

// DefaultRefillRatio is the memory occupancy at or above which a read skips
// refilling from disk.
const DefaultRefillRatio = 0.75

const backingFilePattern = "spillqueue-backingstore-*"

// Common errors returned by the Queue
var (
	ErrEmpty           = errors.New("spill queue is empty")
	ErrInvalidCapacity = errors.New("spill queue max in-memory size must be at least one")
	ErrInvalidTempDir  = errors.New("spill queue temporary directory must exist and be writable")
)

// Config holds the settings for a Queue
type Config struct {
	// MaxInMemory is the number of elements kept in memory before spilling
	MaxInMemory int

	// TempDir is where the backing file is created. Empty means os.TempDir().
	TempDir string

	// RefillRatio overrides DefaultRefillRatio when in (0, 1]
	RefillRatio float64
}

// Queue is a memory-bounded FIFO that overflows to disk. It is not safe for
// concurrent use.
type Queue[T any] struct {
	memory      []T
	capacity    int
	refillRatio float64
	tempDir     string
	logger      *slog.Logger

	// disk segment, allocated on first overflow
	path      string
	out       *os.File
	writer    *bufio.Writer
	enc       *gob.Encoder
	in        *os.File
	dec       *gob.Decoder
	fileCount int

	// first write error; the segment then only drains
	writeErr error

	// element read from disk that did not fit in memory during a refill
	cached    T
	hasCached bool
}

// New creates a Queue with the given configuration
func New[T any](cfg Config, logger *slog.Logger) (*Queue[T], error) {
	if cfg.MaxInMemory < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, cfg.MaxInMemory)
	}
	if cfg.TempDir != "" {
		if err := checkWritableDir(cfg.TempDir); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTempDir, cfg.TempDir, err)
		}
	}
	ratio := cfg.RefillRatio
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultRefillRatio
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Queue[T]{
		memory:      make([]T, 0, cfg.MaxInMemory),
		capacity:    cfg.MaxInMemory,
		refillRatio: ratio,
		tempDir:     cfg.TempDir,
		logger:      logger.With("component", "spill_queue"),
	}, nil
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	probe, err := os.CreateTemp(dir, ".spillqueue-probe-*")
	if err != nil {
		return err
	}
	return multierr.Combine(probe.Close(), os.Remove(probe.Name()))
}

// Len returns the number of elements held in memory, on disk and in the
// overflow cache.
func (q *Queue[T]) Len() int {
	n := len(q.memory) + q.fileCount
	if q.hasCached {
		n++
	}
	return n
}

// Spilled reports whether a backing file currently exists
func (q *Queue[T]) Spilled() bool {
	return q.out != nil
}

// Offer appends item to the tail of the queue. It returns false only when
// the item had to go to disk and could not be written; the item is then
// lost. After a failed write the backing file accepts nothing more until it
// has drained, so elements already written stay readable.
func (q *Queue[T]) Offer(item T) bool {
	if q.out == nil && len(q.memory) < q.capacity {
		q.memory = append(q.memory, item)
		return true
	}

	if err := q.openFile(); err != nil {
		q.logger.Error("failed to create backing store", "error", err)
		return false
	}
	if q.writeErr != nil {
		q.logger.Error("backing store is draining after a write failure, dropping element",
			"path", q.path,
			"error", q.writeErr)
		return false
	}
	if err := q.enc.Encode(item); err != nil {
		q.writeErr = err
		q.logger.Error("failed to write to backing store", "path", q.path, "error", err)
		return false
	}
	q.fileCount++
	return true
}

// Poll removes and returns the head of the queue. The boolean is false when
// the queue is empty.
func (q *Queue[T]) Poll() (T, bool) {
	q.refill()
	var zero T
	if len(q.memory) == 0 {
		return zero, false
	}
	head := q.memory[0]
	q.memory[0] = zero
	q.memory = q.memory[1:]
	return head, true
}

// Peek returns the head of the queue without removing it
func (q *Queue[T]) Peek() (T, bool) {
	q.refill()
	if len(q.memory) == 0 {
		var zero T
		return zero, false
	}
	return q.memory[0], true
}

// Remove is Poll that reports an empty queue as ErrEmpty
func (q *Queue[T]) Remove() (T, error) {
	item, ok := q.Poll()
	if !ok {
		return item, ErrEmpty
	}
	return item, nil
}

// Clear drops every element and deletes the backing file, if any
func (q *Queue[T]) Clear() error {
	clear(q.memory)
	q.memory = q.memory[:0]
	q.dropCached()
	return q.closeFile()
}

// Close releases the backing file. Owners must call it on every exit path;
// the queue is empty afterwards.
func (q *Queue[T]) Close() error {
	return q.Clear()
}

// refill moves elements from disk into memory once memory occupancy falls
// below the refill ratio. A pending cached element is admitted first and
// ends the step.
func (q *Queue[T]) refill() {
	if float64(len(q.memory))/float64(q.capacity) >= q.refillRatio {
		return
	}

	// a cached overflow element is re-admitted alone
	if q.hasCached {
		q.memory = append(q.memory, q.cached)
		q.dropCached()
		return
	}

	if q.out == nil {
		return
	}

	// writes are buffered; everything counted in fileCount must be readable
	if q.writeErr == nil {
		if err := q.writer.Flush(); err != nil {
			q.writeErr = err
			q.logger.Error("failed to flush backing store", "path", q.path, "error", err)
		}
	}

	for q.fileCount > 0 {
		var item T
		if err := q.dec.Decode(&item); err != nil {
			q.discardFile("failed to read from backing store", err)
			return
		}
		q.fileCount--

		if len(q.memory) >= q.capacity {
			q.cached = item
			q.hasCached = true
			return
		}
		q.memory = append(q.memory, item)
	}

	if err := q.closeFile(); err != nil {
		q.logger.Warn("failed to remove drained backing store", "error", err)
	}
}

// discardFile abandons an unreadable backing file; its remaining elements
// are lost.
func (q *Queue[T]) discardFile(msg string, err error) {
	q.logger.Error(msg,
		"path", q.path,
		"lost_elements", q.fileCount,
		"error", err)
	if closeErr := q.closeFile(); closeErr != nil {
		q.logger.Warn("failed to remove backing store", "error", closeErr)
	}
}

func (q *Queue[T]) dropCached() {
	var zero T
	q.cached = zero
	q.hasCached = false
}

func (q *Queue[T]) openFile() error {
	if q.out != nil {
		return nil
	}

	out, err := os.CreateTemp(q.tempDir, backingFilePattern)
	if err != nil {
		return err
	}
	in, err := os.Open(out.Name())
	if err != nil {
		return multierr.Combine(err, out.Close(), os.Remove(out.Name()))
	}

	q.path = out.Name()
	q.out = out
	q.writer = bufio.NewWriter(out)
	q.enc = gob.NewEncoder(q.writer)
	q.in = in
	q.dec = gob.NewDecoder(bufio.NewReader(in))
	q.fileCount = 0

	q.logger.Info("created backing store", "path", q.path)
	return nil
}

func (q *Queue[T]) closeFile() error {
	if q.out == nil {
		return nil
	}

	err := multierr.Combine(
		q.in.Close(),
		q.out.Close(),
		os.Remove(q.path),
	)

	q.path = ""
	q.out = nil
	q.writer = nil
	q.enc = nil
	q.in = nil
	q.dec = nil
	q.fileCount = 0
	q.writeErr = nil
	return err
}
