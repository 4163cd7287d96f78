package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/pulse/schedule"
	"github.com/teranos/cadence/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the job store",
	Long: sym.DB + ` db - Manage the job store

The job store is a SQLite file or a Postgres database (database.path).
Migrations run automatically whenever a command opens it.

Examples:
  cadence db migrate              # Apply pending migrations
  cadence db stats                # Job and execution counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations and list applied ones",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job and execution statistics",
	RunE:  runDbStats,
}

var statsFormat string

func init() {
	dbStatsCmd.Flags().StringVar(&statsFormat, "format", formatTable, "Output format: table, json, yaml")
	DbCmd.AddCommand(dbMigrateCmd, dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	versions, err := db.AppliedMigrations(database)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("%s %s schema is up to date", sym.DB, db.DialectOf(database))
	for _, v := range versions {
		pterm.Printfln("  %s", v)
	}
	return nil
}

// storeStats is the summary printed by `db stats`.
type storeStats struct {
	Path        string                  `json:"path" yaml:"path"`
	Dialect     db.Dialect              `json:"dialect" yaml:"dialect"`
	Jobs        int                     `json:"jobs" yaml:"jobs"`
	PausedJobs  int                     `json:"paused_jobs" yaml:"paused_jobs"`
	NextRunTime string                  `json:"next_run_time" yaml:"next_run_time"`
	Executions  map[schedule.Status]int `json:"executions" yaml:"executions"`
}

func runDbStats(cmd *cobra.Command, args []string) error {
	path, err := am.GetDatabasePath()
	if err != nil {
		return errors.Wrap(err, "failed to get database path")
	}
	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	total, paused, err := rt.store.CountJobs(ctx)
	if err != nil {
		return err
	}
	next, err := rt.store.GetNextRunTime(ctx)
	if err != nil {
		return err
	}
	byStatus, err := rt.executions.CountByStatus(ctx)
	if err != nil {
		return err
	}

	stats := storeStats{
		Path:        db.Redact(path),
		Dialect:     db.DialectOf(rt.db),
		Jobs:        total,
		PausedJobs:  paused,
		NextRunTime: formatTime(next, "-"),
		Executions:  byStatus,
	}
	if statsFormat != formatTable {
		return writeStructured(cmd.OutOrStdout(), statsFormat, stats)
	}

	pterm.DefaultSection.Printfln("%s Job store", sym.DB)
	pterm.Printfln("Database:   %s (%s)", stats.Path, stats.Dialect)
	pterm.Printfln("Jobs:       %d (%d paused)", stats.Jobs, stats.PausedJobs)
	pterm.Printfln("Next run:   %s", stats.NextRunTime)
	pterm.Println()

	rows := make([][]string, 0, len(schedule.Statuses))
	for _, status := range schedule.Statuses {
		if n := byStatus[status]; n > 0 {
			rows = append(rows, []string{string(status), fmt.Sprint(n)})
		}
	}
	if len(rows) == 0 {
		pterm.Info.Println("No runs recorded")
		return nil
	}
	return renderTable(cmd.OutOrStdout(), []string{"STATUS", "RUNS"}, rows)
}
