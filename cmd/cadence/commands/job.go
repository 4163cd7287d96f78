package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/internal/util"
	"github.com/teranos/cadence/pulse/schedule"
	"github.com/teranos/cadence/pulse/trigger"
	"github.com/teranos/cadence/sym"
)

// JobCmd represents the job command
var JobCmd = &cobra.Command{
	Use:   "job",
	Short: sym.Job + " Manage scheduled jobs",
	Long: sym.Job + ` job - Manage scheduled jobs

A job binds a registered handler to a trigger. Changes are written to the job
store; a running Pulse daemon picks them up on its next wake.

Schedules:
  "*/5 * * * *"            crontab (5 fields, @hourly, CRON_TZ=Zone ...)
  "55m", "02:30"           interval (duration or HH:MM)
  "2026-11-01T09:00:00Z"   run once at a timestamp

Examples:
  cadence job add builtin.log --id heartbeat --schedule 30s --args '{"message":"alive"}'
  cadence job ls
  cadence job pause heartbeat
  cadence job run heartbeat
  cadence job import jobs.toml`,
}

var jobAddCmd = &cobra.Command{
	Use:   "add <handler>",
	Short: "Add a job",
	Long: `Add a job that runs <handler> on a schedule.

Use --schedule for the one-line forms, or --trigger with a JSON trigger spec
such as '{"type":"cron","value":{"day_of_week":"mon-fri","hour":9}}'.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobAdd,
}

var jobLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List jobs by next run time",
	RunE:    runJobLs,
}

var jobShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one job and its recent runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobShow,
}

var jobPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a job so it no longer fires",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJob(cmd.Context(), args[0], "paused", func(ctx context.Context, rt *pulseRuntime) (*schedule.Job, error) {
			return rt.scheduler.PauseJob(ctx, args[0])
		})
	},
}

var jobResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused job from its next run time after now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJob(cmd.Context(), args[0], "resumed", func(ctx context.Context, rt *pulseRuntime) (*schedule.Job, error) {
			return rt.scheduler.ResumeJob(ctx, args[0])
		})
	},
}

var jobRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run a job once now, in this process",
	Long: `Run a job once now without changing its schedule.

The handler runs in this process and the run is recorded in the execution
history like a scheduled one. Instances running inside a Pulse daemon are not
counted against max_instances.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobRun,
}

var jobRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Remove a job and its execution history",
	Args:    cobra.ExactArgs(1),
	RunE:    runJobRm,
}

var jobResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every job and all execution history",
	RunE:  runJobReset,
}

var (
	jobFormat string

	addID           string
	addName         string
	addSchedule     string
	addTrigger      string
	addArgs         string
	addMaxInstances int
	addMisfireGrace time.Duration
	addNoCoalesce   bool
	addPaused       bool

	showRuns  int
	resetYes  bool
	runFormat string
)

func init() {
	jobAddCmd.Flags().StringVar(&addID, "id", "", "Job id (default: the handler name)")
	jobAddCmd.Flags().StringVar(&addName, "name", "", "Human-readable name (default: the id)")
	jobAddCmd.Flags().StringVarP(&addSchedule, "schedule", "s", "", "One-line schedule: crontab, duration, HH:MM or timestamp")
	jobAddCmd.Flags().StringVar(&addTrigger, "trigger", "", "Trigger spec as JSON ({\"type\":...,\"value\":...})")
	jobAddCmd.Flags().StringVar(&addArgs, "args", "", "Handler arguments as JSON")
	jobAddCmd.Flags().IntVar(&addMaxInstances, "max-instances", 0, "Concurrent runs allowed (default: pulse.max_instances)")
	jobAddCmd.Flags().DurationVar(&addMisfireGrace, "misfire-grace", 0, "Lateness tolerated before a run is missed; 0 disables (default: pulse.misfire_grace_seconds)")
	jobAddCmd.Flags().BoolVar(&addNoCoalesce, "no-coalesce", false, "Run every missed run time instead of only the latest")
	jobAddCmd.Flags().BoolVar(&addPaused, "paused", false, "Add the job paused")
	jobAddCmd.MarkFlagsMutuallyExclusive("schedule", "trigger")
	jobAddCmd.MarkFlagsOneRequired("schedule", "trigger")

	jobLsCmd.Flags().StringVar(&jobFormat, "format", formatTable, "Output format: table, json, yaml")
	jobShowCmd.Flags().StringVar(&jobFormat, "format", formatTable, "Output format: table, json, yaml")
	jobShowCmd.Flags().IntVar(&showRuns, "runs", 5, "Number of recent runs to show")
	jobRunCmd.Flags().StringVar(&runFormat, "format", formatTable, "Output format: table, json, yaml")
	jobResetCmd.Flags().BoolVar(&resetYes, "yes", false, "Confirm removal of every job")

	JobCmd.AddCommand(jobAddCmd, jobLsCmd, jobShowCmd, jobPauseCmd, jobResumeCmd,
		jobRunCmd, jobRmCmd, jobResetCmd, jobImportCmd)
}

// jobSpecFromFlags builds the registration input for `job add`.
func jobSpecFromFlags(cmd *cobra.Command, handler string) (schedule.JobSpec, error) {
	spec := schedule.JobSpec{
		ID:           addID,
		Name:         addName,
		Handler:      handler,
		MaxInstances: addMaxInstances,
		Paused:       addPaused,
	}

	if addSchedule != "" {
		ts, err := trigger.ParseShorthand(addSchedule)
		if err != nil {
			return spec, err
		}
		spec.Trigger = ts
	} else {
		if err := json.Unmarshal([]byte(addTrigger), &spec.Trigger); err != nil {
			return spec, errors.WrapConfiguration(err, "invalid --trigger JSON")
		}
	}

	if addArgs != "" {
		if !json.Valid([]byte(addArgs)) {
			return spec, errors.NewConfigurationError("--args is not valid JSON: %s", addArgs)
		}
		spec.Args = json.RawMessage(addArgs)
	}
	if cmd.Flags().Changed("misfire-grace") {
		spec.MisfireGraceTime = util.Ptr(addMisfireGrace)
	}
	if addNoCoalesce {
		spec.Coalesce = util.Ptr(false)
	}
	return spec, nil
}

func runJobAdd(cmd *cobra.Command, args []string) error {
	spec, err := jobSpecFromFlags(cmd, args[0])
	if err != nil {
		return err
	}

	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	job, err := rt.scheduler.AddJob(cmd.Context(), spec)
	if err != nil {
		return err
	}

	pterm.Success.Printfln("%s Added job %s (%s), %s", sym.Job, job.ID, job.Trigger, describeNext(job))
	return nil
}

func runJobLs(cmd *cobra.Command, args []string) error {
	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	jobs, err := rt.scheduler.GetJobs(cmd.Context())
	if err != nil {
		return err
	}

	if jobFormat != formatTable {
		views := make([]jobView, 0, len(jobs))
		for _, job := range jobs {
			views = append(views, newJobView(job))
		}
		return writeStructured(cmd.OutOrStdout(), jobFormat, views)
	}

	if len(jobs) == 0 {
		pterm.Info.Println("No jobs. Add one with 'cadence job add'.")
		return nil
	}
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.Handler,
			truncate(job.Trigger.String(), 48),
			formatTime(job.NextRunTime, "paused"),
			formatTime(job.LastRunTime, "-"),
		})
	}
	return renderTable(cmd.OutOrStdout(), []string{"ID", "HANDLER", "TRIGGER", "NEXT RUN", "LAST RUN"}, rows)
}

func runJobShow(cmd *cobra.Command, args []string) error {
	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	job, err := rt.scheduler.GetJob(ctx, args[0])
	if err != nil {
		return err
	}
	runs, total, err := rt.executions.ListExecutions(ctx, schedule.ExecutionFilter{JobID: job.ID, Limit: showRuns})
	if err != nil {
		return err
	}

	if jobFormat != formatTable {
		return writeStructured(cmd.OutOrStdout(), jobFormat, struct {
			Job        jobView               `json:"job" yaml:"job"`
			Executions []*schedule.Execution `json:"executions" yaml:"executions"`
			Total      int                   `json:"total_executions" yaml:"total_executions"`
		}{newJobView(job), runs, total})
	}

	v := newJobView(job)
	pterm.DefaultSection.Printfln("%s %s", sym.Job, job.ID)
	pterm.Printfln("Name:           %s", v.Name)
	pterm.Printfln("Handler:        %s", v.Handler)
	pterm.Printfln("Trigger:        %s", v.Trigger)
	if len(job.Args) > 0 {
		pterm.Printfln("Args:           %s", string(job.Args))
	}
	pterm.Printfln("Max instances:  %d", v.MaxInstances)
	pterm.Printfln("Misfire grace:  %s", v.MisfireGrace)
	pterm.Printfln("Coalesce:       %t", v.Coalesce)
	pterm.Printfln("Next run:       %s", formatTime(job.NextRunTime, "paused"))
	pterm.Printfln("Last run:       %s", formatTime(job.LastRunTime, "-"))
	pterm.Println()

	if total == 0 {
		pterm.Info.Println("No runs recorded yet")
		return nil
	}
	pterm.Printfln("%s Recent runs (%d of %d):", sym.Exec, len(runs), total)
	return renderExecutions(cmd, runs)
}

// withJob applies a single-job mutation and reports the result.
func withJob(ctx context.Context, id, verb string, fn func(ctx context.Context, rt *pulseRuntime) (*schedule.Job, error)) error {
	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	job, err := fn(ctx, rt)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("%s Job %s %s, %s", sym.Job, id, verb, describeNext(job))
	return nil
}

func runJobRun(cmd *cobra.Command, args []string) error {
	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	rt.pool.Start()
	runTime, err := rt.scheduler.RunJobNow(ctx, args[0])
	// Waits for the run and its recording
	rt.pool.Stop(true)
	if err != nil {
		return err
	}

	run, err := rt.executions.GetExecutionByRun(ctx, args[0], runTime)
	if errors.IsNotFoundError(err) {
		return errors.Newf("run of %s at %s was not recorded", args[0], formatTime(&runTime, "-"))
	}
	if err != nil {
		return err
	}

	if runFormat != formatTable {
		return writeStructured(cmd.OutOrStdout(), runFormat, run)
	}
	if run.Status == schedule.StatusExecuted {
		pterm.Success.Printfln("%s %s executed in %s", sym.Exec, args[0], formatSeconds(run.Duration))
		return nil
	}
	msg := string(run.Status)
	if run.Exception != nil {
		msg = *run.Exception
	}
	return errors.Newf("%s: %s", run.Status, msg)
}

func runJobRm(cmd *cobra.Command, args []string) error {
	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.scheduler.RemoveJob(cmd.Context(), args[0]); err != nil {
		return err
	}
	pterm.Success.Printfln("%s Removed job %s", sym.Job, args[0])
	return nil
}

func runJobReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		return errors.WithHint(
			errors.NewConfigurationError("refusing to remove every job without --yes"),
			"run 'cadence job reset --yes'")
	}

	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.scheduler.RemoveAllJobs(cmd.Context()); err != nil {
		return err
	}
	pterm.Success.Printfln("%s Removed every job", sym.Job)
	return nil
}

// describeNext is the status line printed after a job changes.
func describeNext(job *schedule.Job) string {
	if job.Paused() {
		return "paused"
	}
	return fmt.Sprintf("next run %s", formatTime(job.NextRunTime, "-"))
}
