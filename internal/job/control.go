package job

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/batchrun/internal/task"
	"github.com/spf13/viper"
)

// Control file keys and commands
const (
	ControlKeyCommand     = "COMMAND"
	ControlKeyThreadCount = "THREAD_COUNT"

	CommandPause  = "PAUSE"
	CommandStop   = "STOP"
	CommandResume = "RESUME"
)

// DefaultControlPollInterval is how often the control file is checked
const DefaultControlPollInterval = time.Second

// CommandWatcher polls a dotenv-style control file and applies its commands
// to the pool. The file is only re-read when its modification time changes.
// A missing or unreadable file is ignored.
type CommandWatcher struct {
	path     string
	interval time.Duration
	pool     Pool
	stop     func()
	logger   *slog.Logger

	lastModified time.Time
}

// NewCommandWatcher creates a watcher for the control file at path. stop is
// called for the STOP command.
func NewCommandWatcher(path string, interval time.Duration, pool Pool, stop func(), logger *slog.Logger) *CommandWatcher {
	if interval <= 0 {
		interval = DefaultControlPollInterval
	}
	return &CommandWatcher{
		path:     path,
		interval: interval,
		pool:     pool,
		stop:     stop,
		logger:   logger.With("component", "command_watcher", "path", path),
	}
}

// Run polls the control file until ctx is done. It returns immediately when
// no control file is configured.
func (w *CommandWatcher) Run(ctx context.Context) error {
	if w.path == "" {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll reads the control file if it changed and applies it
func (w *CommandWatcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Debug("control file not readable", "error", err)
		return
	}
	if info.ModTime().Equal(w.lastModified) {
		return
	}
	w.lastModified = info.ModTime()

	v := viper.New()
	v.SetConfigFile(w.path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		w.logger.Debug("failed to parse control file", "error", err)
		return
	}

	if w.pool.State() == task.StateTerminated {
		w.logger.Debug("pool terminated, ignoring control file")
		return
	}

	command := strings.ToUpper(strings.TrimSpace(v.GetString(ControlKeyCommand)))
	switch command {
	case CommandPause:
		w.logger.Info("pause requested")
		w.pool.Pause()
	case CommandStop:
		w.logger.Info("stop requested")
		w.stop()
		return
	default:
		w.pool.Resume()
	}

	if !v.IsSet(ControlKeyThreadCount) {
		return
	}
	raw := strings.TrimSpace(v.GetString(ControlKeyThreadCount))
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		w.logger.Warn("ignoring invalid thread count", "value", raw)
		return
	}
	if err := w.pool.SetSize(n); err != nil {
		w.logger.Warn("failed to resize pool", "size", n, "error", err)
	}
}
