package commands

import (
	"context"
	"database/sql"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/builtin"
	"github.com/teranos/cadence/pulse/schedule"
)

// daemonAnnotation marks long-running commands that log at the configured
// level instead of the quiet CLI default.
const daemonAnnotation = "daemon"

// InitLogger configures the global logger for cmd.
// -v flags always win; otherwise daemons use log.level from am.toml and
// one-shot commands only print warnings and errors.
func InitLogger(cmd *cobra.Command, verbosity int) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	opts := logger.Options{
		JSON:       cfg.Log.JSON,
		Level:      logger.VerbosityToLevel(verbosity),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}
	if verbosity == 0 && cmd.Annotations[daemonAnnotation] == "true" && cfg.Log.Level != "" {
		opts.Level = logger.ParseLevel(cfg.Log.Level)
	}
	return logger.InitializeWithOptions(opts)
}

// FormatError renders err for the terminal, followed by any hints attached to it.
func FormatError(err error) string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(err.Error())
	for _, hint := range errors.GetAllHints(err) {
		b.WriteString("\nHint: ")
		b.WriteString(hint)
	}
	return b.String()
}

// openDatabase opens and migrates the job store.
// If dbPath is empty, it is taken from am config.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		path, err := am.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		dbPath = path
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrap(err, "failed to open job store"),
			"set database.path in am.toml or CADENCE_DATABASE_PATH")
	}
	return database, nil
}

// schedulerConfig maps the [pulse] section of am.toml onto scheduler tunables.
func schedulerConfig(p am.PulseConfig) schedule.Config {
	cfg := schedule.DefaultConfig()
	cfg.MisfireGraceTime = p.MisfireGrace()
	cfg.MaxInstances = p.MaxInstances
	cfg.Coalesce = p.Coalesce
	if d := p.MaxIdleWait(); d > 0 {
		cfg.MaxIdleWait = d
	}
	if d := p.RetryInterval(); d > 0 {
		cfg.RetryInterval = d
	}
	return cfg
}

// poolConfig maps the [pulse] section onto the worker pool. A positive
// workers override (the --workers flag) replaces the configured count.
func poolConfig(p am.PulseConfig, workers int) async.WorkerPoolConfig {
	cfg := async.DefaultWorkerPoolConfig()
	if p.Workers > 0 {
		cfg.Workers = p.Workers
	}
	if p.QueueSize > 0 {
		cfg.QueueSize = p.QueueSize
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	return cfg
}

// pulseRuntime bundles everything a command needs to talk to the scheduler.
type pulseRuntime struct {
	cfg        *am.Config
	db         *sql.DB
	store      *schedule.Store
	executions *schedule.ExecutionStore
	handlers   *async.HandlerRegistry
	pool       *async.WorkerPool
	scheduler  *schedule.Scheduler
}

// openPulse wires the job store, execution store, builtin handlers, worker
// pool and scheduler. The scheduler is not started.
func openPulse(workers int, listeners ...schedule.Listener) (*pulseRuntime, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	database, err := openDatabase(cfg.GetDatabasePath())
	if err != nil {
		return nil, err
	}

	log := logger.Logger
	store := schedule.NewStore(database, log)
	executions := schedule.NewExecutionStore(database)

	handlers := async.NewHandlerRegistry()
	builtin.Register(handlers, log)

	pool := async.NewWorkerPool(context.Background(), poolConfig(cfg.Pulse, workers), log)

	all := append([]schedule.Listener{schedule.NewRecorder(store, executions, log)}, listeners...)
	sched := schedule.New(store, handlers, pool, schedulerConfig(cfg.Pulse), log,
		schedule.WithListeners(all...))

	return &pulseRuntime{
		cfg:        cfg,
		db:         database,
		store:      store,
		executions: executions,
		handlers:   handlers,
		pool:       pool,
		scheduler:  sched,
	}, nil
}

// Close releases the database.
func (r *pulseRuntime) Close() {
	r.db.Close()
}
