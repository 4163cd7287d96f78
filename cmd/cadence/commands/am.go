package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage cadence configuration",
	Long: sym.AM + ` am - Manage cadence configuration ("I am")

Display and manage cadence configuration settings.

Configuration sources (in order of precedence):
1. Environment variables (CADENCE_* prefix, DATABASE_URL)
2. Project config (./am.toml, searched up the directory tree)
3. User config (~/.cadence/am.toml)
4. System config (/etc/cadence/am.toml)
5. Default values

Examples:
  cadence am show                    # Show current configuration
  cadence am show --format json      # Show configuration in JSON format
  cadence am get pulse.workers       # Get specific config value
  cadence am validate                # Validate current configuration
  cadence am init                    # Write a default ./am.toml`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective cadence configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, pulse.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each setting comes from",
	RunE:  runAmWhere,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE:  runAmInit,
}

var (
	configFormat string
	initUser     bool
	initForce    bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amInitCmd.Flags().BoolVar(&initUser, "user", false, "Write ~/.cadence/am.toml instead of ./am.toml")
	amInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file (a backup is kept)")

	AmCmd.AddCommand(amShowCmd, amGetCmd, amValidateCmd, amWhereCmd, amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json", "yaml":
		return writeStructured(out, configFormat, configView(cfg))
	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# cadence configuration\n%s", string(data))
		return nil
	default:
		return errors.NewConfigurationError("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
}

// configView re-keys cfg with its TOML names so every format shows the same keys.
func configView(cfg *am.Config) map[string]interface{} {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil
	}
	var view map[string]interface{}
	if err := toml.Unmarshal(data, &view); err != nil {
		return nil
	}
	return view
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.NewNotFoundError("configuration key %q not found", key)
	}

	value := v.Get(key)
	if m, ok := value.(map[string]interface{}); ok {
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal value")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  1. [DEFAULT]  Built-in defaults")
	fmt.Fprintln(out, "  2. [SYSTEM]   /etc/cadence/am.toml")
	fmt.Fprintln(out, "  3. [USER]     ~/.cadence/am.toml")
	fmt.Fprintln(out, "  4. [PROJECT]  ./am.toml (searches up directories)")
	fmt.Fprintln(out, "  5. [ENV]      CADENCE_* environment variables")
	fmt.Fprintln(out)

	if active := am.ActiveConfigFile(); active != "" {
		fmt.Fprintf(out, "Active file: %s\n\n", active)
	} else {
		fmt.Fprintf(out, "No config file found, using defaults\n\n")
	}

	rows := [][]string{}
	for _, s := range am.Introspect() {
		value := fmt.Sprintf("%v", s.Value)
		if s.Key == "database.path" {
			value = db.Redact(value)
		}
		rows = append(rows, []string{s.Key, truncate(value, 50), string(s.Source), s.SourcePath})
	}
	return renderTable(out, []string{"KEY", "VALUE", "SOURCE", "FROM"}, rows)
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := am.ConfigFileName
	if initUser {
		path = am.UserConfigPath()
		if path == "" {
			return errors.New("no home directory to write ~/.cadence/am.toml")
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "failed to resolve config path")
	}

	if _, err := os.Stat(abs); err == nil && !initForce {
		return errors.WithHint(
			errors.NewConflictError("%s already exists", abs),
			"pass --force to overwrite it; the previous file is kept as .back1")
	}

	if err := am.WriteConfig(abs, am.DefaultConfig()); err != nil {
		return err
	}
	pterm.Success.Printfln("%s Wrote %s", sym.AM, abs)
	return nil
}
