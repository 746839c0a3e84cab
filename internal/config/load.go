package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable Load reads
const EnvPrefix = "BATCHRUN"

// ConfigFileEnv names the environment variable holding an optional config
// file path
const ConfigFileEnv = "BATCHRUN_CONFIG_FILE"

// ErrInvalidConfig is wrapped by every validation failure returned by Load
var ErrInvalidConfig = errors.New("invalid configuration")

// defaults lists every key Load knows about. Keys without a meaningful
// default are still listed so environment variables can override them.
var defaults = map[string]any{
	"job.batch_size":           1,
	"job.thread_count":         1,
	"job.queue_size":           0,
	"job.max_items":            0,
	"job.fail_on_error":        true,
	"job.no_items_exit_code":   0,
	"job.progress_interval":    100,
	"job.slow_task_limit":      5,
	"job.failed_item_limit":    1000,
	"job.init_statement":       "",
	"job.pre_batch_statement":  "",
	"job.post_batch_statement": "",

	"source.type":  "file",
	"source.file":  "",
	"source.query": "",

	"database.url":       "",
	"database.max_conns": 0,

	"remote.statement": "",
	"remote.language":  "",
	"remote.time_zone": "",
	"remote.bind_mode": "string",
	"remote.delimiter": ";",

	"retry.limit":          2,
	"retry.interval":       20 * time.Second,
	"retry.error_codes":    []string{},
	"retry.error_messages": []string{},

	"spill.max_in_memory": 10000,
	"spill.temp_dir":      "",

	"failure_log.dir":  ".",
	"failure_log.name": "",

	"control.file":          "",
	"control.poll_interval": time.Second,

	"log.level": "info",

	"metrics.listen_addr": "",
	"metrics.namespace":   "batchrun",
}

// Load configuration from environment variables and optionally a config file
// named by BATCHRUN_CONFIG_FILE. Environment variables take precedence over
// values from the config file, e.g. BATCHRUN_JOB_BATCH_SIZE overrides
// job.batch_size. Returns a populated Config or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its validation tags
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
