package source

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/phrazzld/batchrun/internal/spillqueue"
	"go.uber.org/multierr"
)

// maxLineSize bounds a single work item line
const maxLineSize = 1024 * 1024

// FileSource reads one work item per line from a text file. Blank lines are
// skipped. The file's absolute path is reported as the batch reference.
type FileSource struct {
	buffer
	path string
}

// NewFileSource creates a source for the file at path
func NewFileSource(path string, buf spillqueue.Config, logger *slog.Logger) *FileSource {
	logger = logger.With("component", "file_source", "path", path)
	return &FileSource{
		buffer: newBuffer(buf, logger),
		path:   path,
	}
}

// Open reads the whole file into the item buffer
func (s *FileSource) Open(ctx context.Context) (err error) {
	if err := s.open(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, s.Close())
		}
	}()

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open work item file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.add(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read work item file: %w", err)
	}

	s.logger.Info("work item file loaded", "items", s.total, "spilled", s.queue.Spilled())
	return nil
}

// BatchRef returns the absolute path of the file
func (s *FileSource) BatchRef() string {
	if abs, err := filepath.Abs(s.path); err == nil {
		return abs
	}
	return s.path
}
