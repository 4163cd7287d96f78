package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/cadence/cmd/cadence/commands"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/sym"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "cadence - durable job scheduler",
	Long: `cadence - durable, persisted job scheduler.

Jobs are stored in SQLite or Postgres together with their trigger (date,
interval or cron). The Pulse daemon wakes when the next job is due, runs it on
a worker pool and records every run in the execution history.

Available commands:
` + commandList() + `
Examples:
  cadence pulse start                                  # Start the scheduler
  cadence job add builtin.log --schedule "*/5 * * * *" # Run every five minutes
  cadence job ls                                       # List jobs
  cadence exec ls builtin.log                          # Show recent runs`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		return commands.InitLogger(cmd, verbosity)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ExecCmd)
	rootCmd.AddCommand(commands.JobCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

// commandList renders the glyph-carrying commands for the root help text.
func commandList() string {
	names := make([]string, 0, len(sym.CommandToSymbol))
	for name := range sym.CommandToSymbol {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "  %s %-6s - %s\n", sym.CommandToSymbol[name], name, sym.CommandDescriptions[name])
	}
	b.WriteString("    version - Show build information\n")
	return b.String()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, commands.FormatError(err))
		os.Exit(1)
	}
}
