package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/schedule"
	"github.com/teranos/cadence/sym"
)

// retentionSweepInterval is how often the daemon prunes old execution records
const retentionSweepInterval = time.Hour

// PulseCmd represents the pulse command - the scheduler daemon
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: sym.Pulse + " Run the Pulse scheduler daemon",
	Long: sym.Pulse + ` Pulse - the scheduler daemon.

Pulse sleeps until the earliest next run time in the job store, runs every due
job on its worker pool and records each run in the execution history. Jobs
added from another process are noticed within pulse.max_idle_wait_seconds.

Example:
  cadence pulse start              # Start daemon in foreground
  cadence pulse start --workers 8  # Start with 8 concurrent workers
  cadence pulse start --watch      # Apply am.toml edits without restarting`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts the Pulse daemon
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Pulse daemon",
	Long: `Start the Pulse daemon in foreground mode.

The daemon will:
- Start the worker pool and the wake loop
- Record every run in the execution history
- Prune execution history older than pulse.execution_retention_days
- Run until interrupted, then wait for running jobs before exiting
  (interrupt twice to exit immediately)`,
	Annotations: map[string]string{daemonAnnotation: "true"},
	RunE:        runPulseStart,
}

var (
	pulseWorkers int
	pulseWatch   bool
)

func init() {
	PulseStartCmd.Flags().IntVar(&pulseWorkers, "workers", 0, "Number of concurrent workers (default: pulse.workers)")
	PulseStartCmd.Flags().BoolVar(&pulseWatch, "watch", false, "Reload scheduler settings when am.toml changes")
	PulseCmd.AddCommand(PulseStartCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	rt, err := openPulse(pulseWorkers)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.AddPulseSymbol(logger.Logger).Named("pulse.daemon")

	if pulseWatch {
		watcher, err := watchConfig(rt.scheduler, log)
		if err != nil {
			return err
		}
		defer watcher.Stop()
	}

	if err := rt.scheduler.Start(ctx); err != nil {
		logger.PulseErrorw("Scheduler failed to start", logger.FieldError, err)
		return errors.Wrap(err, "failed to start scheduler")
	}

	if retention := rt.cfg.Pulse.ExecutionRetention(); retention > 0 {
		go sweepExecutions(ctx, rt.executions, retention, log)
	}

	printPulseBanner(rt)
	logger.PulseInfow("Pulse daemon started", "workers", rt.pool.Workers(), "handlers", len(rt.handlers.Names()))

	<-ctx.Done()
	// Restore default signal handling so a second interrupt kills the process
	stop()

	pterm.Info.Printfln("%s Shutting down, waiting for running jobs...", sym.Pulse)
	rt.scheduler.Shutdown(true)

	st := rt.scheduler.Stats()
	logger.PulseInfow("Pulse daemon stopped", "executed", st.Executed, "failed", st.Failed, "missed", st.Missed)
	pterm.Success.Printfln("%s Pulse stopped (%d executed, %d failed, %d missed)",
		sym.PulseClose, st.Executed, st.Failed, st.Missed)
	return nil
}

func printPulseBanner(rt *pulseRuntime) {
	cfg := rt.scheduler.Config()
	total, paused, err := rt.store.CountJobs(context.Background())
	if err != nil {
		logger.PulseWarnw("Failed to count jobs", logger.FieldError, err)
	}

	pterm.Success.Printfln("%s Pulse daemon started", sym.PulseOpen)
	pterm.Printfln("  Workers:        %d", rt.pool.Workers())
	pterm.Printfln("  Handlers:       %v", rt.handlers.Names())
	pterm.Printfln("  Jobs:           %d (%d paused)", total, paused)
	pterm.Printfln("  Misfire grace:  %s", cfg.MisfireGraceTime)
	pterm.Printfln("  Max idle wait:  %s", cfg.MaxIdleWait)
	pterm.Println()
	pterm.Printfln("%s Press Ctrl+C for graceful shutdown", sym.Pulse)
}

// watchConfig applies [pulse] changes in the active config file to the
// running scheduler.
func watchConfig(sched *schedule.Scheduler, log *zap.SugaredLogger) (*am.ConfigWatcher, error) {
	path := am.ActiveConfigFile()
	if path == "" {
		return nil, errors.WithHint(
			errors.NewConfigurationError("--watch needs a config file"),
			"create one with 'cadence am init'")
	}

	watcher, err := am.NewConfigWatcher(path, logger.Logger)
	if err != nil {
		return nil, err
	}
	watcher.OnReload(func(cfg *am.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		return sched.Reconfigure(schedulerConfig(cfg.Pulse))
	})
	am.SetGlobalWatcher(watcher)
	watcher.Start()

	log.Infow("Watching config file", logger.FieldPath, path)
	return watcher, nil
}

// sweepExecutions deletes execution records older than retention, once at
// startup and then every retentionSweepInterval until ctx is done.
func sweepExecutions(ctx context.Context, executions *schedule.ExecutionStore, retention time.Duration, log *zap.SugaredLogger) {
	sweep := func() {
		deleted, err := executions.CleanupOldExecutions(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				log.Warnw("Failed to prune execution history", logger.FieldError, err)
			}
			return
		}
		if deleted > 0 {
			log.Infow("Pruned execution history", logger.FieldCount, deleted, "retention", retention)
		}
	}

	sweep()
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
