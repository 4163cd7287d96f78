// Package sym defines canonical symbols for cadence subsystems.
// These symbols are stable across logs, CLI output, and documentation.
package sym

// Command symbols. Each top-level CLI command has one.
const (
	AM   = "≡" // am: configuration and system settings
	Job  = "⧗" // job: scheduled job definitions
	Exec = "✦" // exec: execution history (a moment a job ran)
)

// System infrastructure symbols.
const (
	Pulse      = "꩜" // scheduler loop and worker pool
	PulseOpen  = "✿" // graceful startup
	PulseClose = "❀" // graceful shutdown, in-flight jobs drained
	DB         = "⊔" // database/storage layer
)

// entry binds a glyph to its command and description.
type entry struct {
	glyph       string
	command     string
	description string
}

// registry is the canonical list of symbols.
var registry = []entry{
	{AM, "am", "Configuration — System settings and state"},
	{Job, "job", "Jobs — Scheduled job definitions"},
	{Exec, "exec", "Executions — Job run history"},
	{Pulse, "pulse", "Pulse — Scheduler loop and worker pool"},
	{PulseOpen, "", "Graceful startup"},
	{PulseClose, "", "Graceful shutdown"},
	{DB, "db", "Database — Storage layer"},
}

// SymbolToCommand maps glyph strings to their text command equivalents.
var SymbolToCommand = map[string]string{}

// CommandToSymbol maps text commands to their canonical glyph strings.
var CommandToSymbol = map[string]string{}

// CommandDescriptions provides human-readable explanations for each command.
var CommandDescriptions = map[string]string{}

func init() {
	for _, e := range registry {
		if e.command == "" {
			continue
		}
		SymbolToCommand[e.glyph] = e.command
		CommandToSymbol[e.command] = e.glyph
		CommandDescriptions[e.command] = e.description
	}
}

// Describe returns the description registered for a glyph, or "".
func Describe(glyph string) string {
	for _, e := range registry {
		if e.glyph == glyph {
			return e.description
		}
	}
	return ""
}
