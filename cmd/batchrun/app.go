package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/batchrun/internal/config"
	"github.com/phrazzld/batchrun/internal/job"
	"github.com/phrazzld/batchrun/internal/platform/postgres"
	"github.com/phrazzld/batchrun/internal/remote"
	"github.com/phrazzld/batchrun/internal/source"
	"github.com/phrazzld/batchrun/internal/spillqueue"
	"github.com/phrazzld/batchrun/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
)

// application holds the dependencies of one batchrun process
type application struct {
	config  *config.Config
	logger  *slog.Logger
	db      *sql.DB
	runner  *job.Runner
	metrics *http.Server
}

// newApplication connects to the database and assembles the job runner
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	jobConfig, err := buildJobConfig(cfg)
	if err != nil {
		return nil, err
	}

	maxConns := cfg.Database.MaxConns
	if maxConns == 0 {
		// one per worker plus one for the query source and hooks
		maxConns = cfg.Job.ThreadCount + 1
	}
	db, err := postgres.Open(ctx, cfg.Database.URL, maxConns, logger)
	if err != nil {
		return nil, err
	}
	app := &application{config: cfg, logger: logger, db: db}

	src, err := newSource(cfg, db, logger)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewDBStatsCollector(db, "batchrun"),
	)
	metrics, err := task.NewMetrics(cfg.Metrics.Namespace, registry)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	runner, err := job.NewRunner(jobConfig, job.Dependencies{
		Source:     src,
		Sessions:   postgres.NewSessionPool(db, logger),
		FailureLog: task.NewFailureLog(cfg.FailureLog.Dir, cfg.FailureLog.Name, cfg.Remote.Delimiter, logger),
		Metrics:    metrics,
	}, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create job runner: %w", err)
	}
	app.runner = runner

	if cfg.Metrics.ListenAddr != "" {
		app.metrics = startMetricsServer(cfg.Metrics.ListenAddr, setupRouter(registry, logger), logger)
	}
	return app, nil
}

// run executes the job
func (app *application) run(ctx context.Context) job.Result {
	return app.runner.Run(ctx)
}

// cleanup stops the metrics endpoint and closes the database
func (app *application) cleanup() {
	var err error
	if app.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = multierr.Append(err, app.metrics.Shutdown(shutdownCtx))
		cancel()
	}
	if app.db != nil {
		err = multierr.Append(err, app.db.Close())
	}
	if err != nil {
		app.logger.Warn("cleanup failed", "error", err)
	}
}

// newSource creates the work item source selected by the configuration
func newSource(cfg *config.Config, db source.Querier, logger *slog.Logger) (job.WorkItemSource, error) {
	buf := spillqueue.Config{
		MaxInMemory: cfg.Spill.MaxInMemory,
		TempDir:     cfg.Spill.TempDir,
	}
	switch cfg.Source.Type {
	case "file":
		return source.NewFileSource(cfg.Source.File, buf, logger), nil
	case "query":
		return source.NewQuerySource(db, cfg.Source.Query, buf, logger)
	default:
		return nil, fmt.Errorf("unsupported source type %q", cfg.Source.Type)
	}
}

// buildJobConfig translates the loaded configuration into the immutable job
// and task settings
func buildJobConfig(cfg *config.Config) (job.Config, error) {
	var loc *time.Location
	if cfg.Remote.TimeZone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Remote.TimeZone)
		if err != nil {
			return job.Config{}, fmt.Errorf("invalid time zone %q: %w", cfg.Remote.TimeZone, err)
		}
	}

	var bindMode remote.BindMode
	switch strings.ToLower(cfg.Remote.BindMode) {
	case "", string(remote.BindString):
		bindMode = remote.BindString
	case string(remote.BindStructured):
		bindMode = remote.BindStructured
	default:
		return job.Config{}, errors.New("bind mode must be string or structured")
	}

	queueSize := cfg.Job.QueueSize
	if queueSize == 0 {
		queueSize = cfg.Job.ThreadCount
	}

	return job.Config{
		BatchSize:           cfg.Job.BatchSize,
		MaxItems:            cfg.Job.MaxItems,
		ThreadCount:         cfg.Job.ThreadCount,
		QueueSize:           queueSize,
		SlowTaskLimit:       cfg.Job.SlowTaskLimit,
		FailedItemLimit:     cfg.Job.FailedItemLimit,
		ProgressInterval:    cfg.Job.ProgressInterval,
		InitStatement:       cfg.Job.InitStatement,
		PreBatchStatement:   cfg.Job.PreBatchStatement,
		PostBatchStatement:  cfg.Job.PostBatchStatement,
		ControlFile:         cfg.Control.File,
		ControlPollInterval: cfg.Control.PollInterval,
		Task: task.Settings{
			Statement:   cfg.Remote.Statement,
			Language:    cfg.Remote.Language,
			TimeZone:    loc,
			BindMode:    bindMode,
			Delimiter:   cfg.Remote.Delimiter,
			Variables:   cfg.Remote.Variables,
			FailOnError: cfg.Job.FailOnError,
			Retry: task.RetryPolicy{
				Limit:         cfg.Retry.Limit,
				Interval:      cfg.Retry.Interval,
				ErrorCodes:    cfg.Retry.ErrorCodes,
				ErrorMessages: cfg.Retry.ErrorMessages,
			},
		},
	}, nil
}
