package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Job        JobConfig        `mapstructure:"job" validate:"required"`
	Source     SourceConfig     `mapstructure:"source" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Remote     RemoteConfig     `mapstructure:"remote" validate:"required"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Spill      SpillConfig      `mapstructure:"spill"`
	FailureLog FailureLogConfig `mapstructure:"failure_log"`
	Control    ControlConfig    `mapstructure:"control"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// JobConfig contains the batching and concurrency settings of a job.
type JobConfig struct {
	BatchSize   int `mapstructure:"batch_size" validate:"gt=0"`
	ThreadCount int `mapstructure:"thread_count" validate:"gt=0"`

	// QueueSize bounds the tasks waiting for a worker; zero uses the thread count
	QueueSize int `mapstructure:"queue_size" validate:"gte=0"`

	// MaxItems caps the items read from the source; zero means no cap
	MaxItems int `mapstructure:"max_items" validate:"gte=0"`

	FailOnError      bool `mapstructure:"fail_on_error"`
	NoItemsExitCode  int  `mapstructure:"no_items_exit_code" validate:"gte=0,lte=255"`
	ProgressInterval int  `mapstructure:"progress_interval" validate:"gte=0"`
	SlowTaskLimit    int  `mapstructure:"slow_task_limit" validate:"gte=0"`
	FailedItemLimit  int  `mapstructure:"failed_item_limit" validate:"gte=0"`

	InitStatement      string `mapstructure:"init_statement"`
	PreBatchStatement  string `mapstructure:"pre_batch_statement"`
	PostBatchStatement string `mapstructure:"post_batch_statement"`
}

// SourceConfig selects where work items come from.
type SourceConfig struct {
	Type  string `mapstructure:"type" validate:"required,oneof=file query"`
	File  string `mapstructure:"file" validate:"required_if=Type file"`
	Query string `mapstructure:"query" validate:"required_if=Type query"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`

	// MaxConns bounds open connections; zero allows one per worker plus one
	MaxConns int `mapstructure:"max_conns" validate:"gte=0"`
}

// RemoteConfig describes the statement applied to every batch.
type RemoteConfig struct {
	Statement string `mapstructure:"statement" validate:"required"`
	Language  string `mapstructure:"language"`
	TimeZone  string `mapstructure:"time_zone" validate:"omitempty,timezone"`
	BindMode  string `mapstructure:"bind_mode" validate:"oneof=string structured"`
	Delimiter string `mapstructure:"delimiter" validate:"required"`

	// Variables are extra named values bound to every request. Names are
	// lower-cased when loaded.
	Variables map[string]string `mapstructure:"variables"`
}

// RetryConfig controls retries of failed batches.
type RetryConfig struct {
	Limit         int           `mapstructure:"limit" validate:"gte=0"`
	Interval      time.Duration `mapstructure:"interval" validate:"gte=0"`
	ErrorCodes    []string      `mapstructure:"error_codes"`
	ErrorMessages []string      `mapstructure:"error_messages"`
}

// SpillConfig bounds the memory used to buffer work items.
type SpillConfig struct {
	MaxInMemory int    `mapstructure:"max_in_memory" validate:"gt=0"`
	TempDir     string `mapstructure:"temp_dir" validate:"omitempty,dir"`
}

// FailureLogConfig names the file failed items are appended to; an empty
// name disables it.
type FailureLogConfig struct {
	Dir  string `mapstructure:"dir"`
	Name string `mapstructure:"name"`
}

// ControlConfig points at the operator control file; an empty path disables it.
type ControlConfig struct {
	File         string        `mapstructure:"file"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// MetricsConfig contains Prometheus settings; an empty listen address
// disables the /metrics endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"omitempty,hostname_port"`
	Namespace  string `mapstructure:"namespace" validate:"required"`
}
