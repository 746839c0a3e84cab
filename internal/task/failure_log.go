package task

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

// DefaultBatchDelimiter separates items in a bound batch and an item from
// its message in the failure log.
const DefaultBatchDelimiter = ";"

// FailureLog appends one line per failed work item to a shared text file.
// Writes from every worker are serialized. A nil *FailureLog discards all
// writes.
type FailureLog struct {
	mu        sync.Mutex
	path      string
	delimiter string
	logger    *slog.Logger
}

// NewFailureLog returns a FailureLog writing to dir/name, or nil when no file
// name is configured. The file is only created on the first append.
func NewFailureLog(dir, name, delimiter string, logger *slog.Logger) *FailureLog {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	if delimiter == "" {
		delimiter = DefaultBatchDelimiter
	}
	return &FailureLog{
		path:      filepath.Join(dir, name),
		delimiter: delimiter,
		logger:    logger.With("component", "failure_log"),
	}
}

// Path returns the file the log appends to
func (l *FailureLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes `<item><delimiter><message>` for every item
func (l *FailureLog) Append(items []string, message string) error {
	if l == nil || len(items) == 0 {
		return nil
	}

	// keep one record per line
	message = strings.Join(strings.Fields(message), " ")

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open failure log %s: %w", l.path, err)
	}

	w := bufio.NewWriter(f)
	for _, item := range items {
		_, _ = w.WriteString(item)
		if message != "" {
			_, _ = w.WriteString(l.delimiter)
			_, _ = w.WriteString(message)
		}
		_ = w.WriteByte('\n')
	}

	if err := multierr.Combine(w.Flush(), f.Close()); err != nil {
		return fmt.Errorf("failed to write failure log %s: %w", l.path, err)
	}
	return nil
}
