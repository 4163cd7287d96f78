package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/pulse/schedule"
	"github.com/teranos/cadence/sym"
)

// ExecCmd represents the exec command
var ExecCmd = &cobra.Command{
	Use:   "exec",
	Short: sym.Exec + " Inspect execution history",
	Long: sym.Exec + ` exec - Inspect execution history

Every run time of every job is recorded once, with its status:
  Sent                 submitted to a worker, not finished yet
  Executed             finished without error
  Error                handler failed; exception and traceback are kept
  Missed               started later than the job's misfire grace time
  MaxInstancesReached  skipped because earlier runs were still going

Examples:
  cadence exec ls                       # Latest runs of all jobs
  cadence exec ls heartbeat --status error
  cadence exec show <execution-id>      # Full traceback
  cadence exec prune --older-than 720h`,
}

var execLsCmd = &cobra.Command{
	Use:     "ls [job-id]",
	Aliases: []string{"list"},
	Short:   "List runs, newest first",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runExecLs,
}

var execShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one run including its traceback",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecShow,
}

var execPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than a retention period",
	RunE:  runExecPrune,
}

var (
	execFormat string
	execStatus string
	execLimit  int
	execOffset int
	pruneOlder time.Duration
)

func init() {
	execLsCmd.Flags().StringVar(&execFormat, "format", formatTable, "Output format: table, json, yaml")
	execLsCmd.Flags().StringVar(&execStatus, "status", "", "Only show runs with this status")
	execLsCmd.Flags().IntVar(&execLimit, "limit", schedule.DefaultExecutionLimit, "Maximum runs to show")
	execLsCmd.Flags().IntVar(&execOffset, "offset", 0, "Runs to skip (pagination)")
	execShowCmd.Flags().StringVar(&execFormat, "format", formatTable, "Output format: table, json, yaml")
	execPruneCmd.Flags().DurationVar(&pruneOlder, "older-than", 0, "Delete runs scheduled before now minus this duration (required)")
	_ = execPruneCmd.MarkFlagRequired("older-than")

	ExecCmd.AddCommand(execLsCmd, execShowCmd, execPruneCmd)
}

func runExecLs(cmd *cobra.Command, args []string) error {
	filter := schedule.ExecutionFilter{Limit: execLimit, Offset: execOffset}
	if len(args) == 1 {
		filter.JobID = args[0]
	}
	if execStatus != "" {
		status, err := schedule.ParseStatus(execStatus)
		if err != nil {
			return err
		}
		filter.Status = status
	}

	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	runs, total, err := rt.executions.ListExecutions(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if execFormat != formatTable {
		return writeStructured(cmd.OutOrStdout(), execFormat, struct {
			Executions []*schedule.Execution `json:"executions" yaml:"executions"`
			Total      int                   `json:"total" yaml:"total"`
		}{runs, total})
	}

	if total == 0 {
		pterm.Info.Println("No runs recorded")
		return nil
	}
	if err := renderExecutions(cmd, runs); err != nil {
		return err
	}
	pterm.Printfln("Showing %d of %d", len(runs), total)
	return nil
}

// renderExecutions prints runs as a table.
func renderExecutions(cmd *cobra.Command, runs []*schedule.Execution) error {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		exception := ""
		if run.Exception != nil {
			exception = truncate(*run.Exception, 60)
		}
		rows = append(rows, []string{
			run.ID,
			run.JobID,
			formatTime(&run.RunTime, "-"),
			string(run.Status),
			formatEpoch(run.Started),
			formatSeconds(run.Duration),
			exception,
		})
	}
	return renderTable(cmd.OutOrStdout(),
		[]string{"ID", "JOB", "RUN TIME", "STATUS", "STARTED", "DURATION", "EXCEPTION"}, rows)
}

func runExecShow(cmd *cobra.Command, args []string) error {
	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	run, err := rt.executions.GetExecution(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if execFormat != formatTable {
		return writeStructured(cmd.OutOrStdout(), execFormat, run)
	}

	pterm.DefaultSection.Printfln("%s %s", sym.Exec, run.ID)
	pterm.Printfln("Job:       %s", run.JobID)
	pterm.Printfln("Status:    %s", run.Status)
	pterm.Printfln("Run time:  %s", formatTime(&run.RunTime, "-"))
	pterm.Printfln("Started:   %s", formatEpoch(run.Started))
	pterm.Printfln("Finished:  %s", formatEpoch(run.Finished))
	pterm.Printfln("Duration:  %s", formatSeconds(run.Duration))
	if run.Exception != nil {
		pterm.Println()
		pterm.Error.Println(*run.Exception)
	}
	if run.Traceback != nil {
		pterm.Println()
		pterm.Println(*run.Traceback)
	}
	return nil
}

func runExecPrune(cmd *cobra.Command, args []string) error {
	if pruneOlder <= 0 {
		return errors.NewConfigurationError("--older-than must be positive")
	}

	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	deleted, err := rt.executions.CleanupOldExecutions(cmd.Context(), pruneOlder)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("%s Deleted %d runs older than %s", sym.Exec, deleted, pruneOlder)
	return nil
}
