package commands

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/internal/util"
	"github.com/teranos/cadence/pulse/schedule"
	"github.com/teranos/cadence/pulse/trigger"
	"github.com/teranos/cadence/sym"
)

var jobImportCmd = &cobra.Command{
	Use:   "import <file.toml>",
	Short: "Add or update jobs declared in a TOML file",
	Long: `Add the jobs declared in a TOML file.

Each [[job]] table needs a handler and either a one-line schedule or a
[job.trigger] table. Unknown keys are rejected.

  [[job]]
  id = "heartbeat"
  handler = "builtin.log"
  schedule = "*/5 * * * *"
  args = { message = "alive" }

  [[job]]
  id = "weekday-report"
  handler = "builtin.log"
  misfire_grace_seconds = 300
  [job.trigger]
  type = "cron"
  value = { day_of_week = "mon-fri", hour = 9 }

Existing jobs are left alone unless --replace is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobImport,
}

var importReplace bool

func init() {
	jobImportCmd.Flags().BoolVar(&importReplace, "replace", false, "Update jobs that already exist")
}

// jobFile is the TOML layout read by `job import`.
type jobFile struct {
	Jobs []jobDecl `toml:"job"`
}

type jobDecl struct {
	ID                  string                 `toml:"id"`
	Name                string                 `toml:"name"`
	Handler             string                 `toml:"handler"`
	Schedule            string                 `toml:"schedule"`
	Trigger             *triggerDecl           `toml:"trigger"`
	Args                map[string]interface{} `toml:"args"`
	MaxInstances        int                    `toml:"max_instances"`
	MisfireGraceSeconds *float64               `toml:"misfire_grace_seconds"`
	Coalesce            *bool                  `toml:"coalesce"`
	Paused              bool                   `toml:"paused"`
}

type triggerDecl struct {
	Type  string      `toml:"type"`
	Value interface{} `toml:"value"`
}

// parseJobFile decodes data into job specs, rejecting keys it does not know.
func parseJobFile(data string) ([]schedule.JobSpec, error) {
	var file jobFile
	md, err := toml.Decode(data, &file)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "invalid job file")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, errors.NewConfigurationError("unknown keys in job file: %s", strings.Join(keys, ", "))
	}
	if len(file.Jobs) == 0 {
		return nil, errors.WithHint(
			errors.NewConfigurationError("job file declares no jobs"),
			"declare jobs with [[job]] tables")
	}

	specs := make([]schedule.JobSpec, 0, len(file.Jobs))
	for i, decl := range file.Jobs {
		spec, err := decl.spec()
		if err != nil {
			return nil, errors.Wrapf(err, "job %d (%s)", i+1, decl.label())
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (d jobDecl) label() string {
	if d.ID != "" {
		return d.ID
	}
	return d.Handler
}

func (d jobDecl) spec() (schedule.JobSpec, error) {
	spec := schedule.JobSpec{
		ID:           d.ID,
		Name:         d.Name,
		Handler:      d.Handler,
		MaxInstances: d.MaxInstances,
		Coalesce:     d.Coalesce,
		Paused:       d.Paused,
	}

	switch {
	case d.Schedule != "" && d.Trigger != nil:
		return spec, errors.NewConfigurationError("set either schedule or [job.trigger], not both")
	case d.Schedule != "":
		ts, err := trigger.ParseShorthand(d.Schedule)
		if err != nil {
			return spec, err
		}
		spec.Trigger = ts
	case d.Trigger != nil:
		value, err := trigger.MarshalValue(d.Trigger.Value)
		if err != nil {
			return spec, err
		}
		spec.Trigger = trigger.Spec{Type: trigger.Type(d.Trigger.Type), Value: value}
	default:
		return spec, errors.NewConfigurationError("schedule or [job.trigger] required")
	}

	if d.Args != nil {
		args, err := json.Marshal(d.Args)
		if err != nil {
			return spec, errors.WrapConfiguration(err, "invalid args")
		}
		spec.Args = args
	}
	if d.MisfireGraceSeconds != nil {
		spec.MisfireGraceTime = util.Ptr(time.Duration(*d.MisfireGraceSeconds * float64(time.Second)))
	}
	return spec, nil
}

// importJobs adds each spec, or modifies it when it exists and replace is set.
// It stops at the first failure; jobs imported before it stay imported.
func importJobs(ctx context.Context, sched *schedule.Scheduler, specs []schedule.JobSpec, replace bool) (added, updated, skipped int, err error) {
	for _, spec := range specs {
		_, err := sched.AddJob(ctx, spec)
		switch {
		case err == nil:
			added++
		case errors.IsConflictError(err) && replace:
			id := spec.ID
			if id == "" {
				id = spec.Handler
			}
			if _, err := sched.ModifyJob(ctx, id, spec); err != nil {
				return added, updated, skipped, err
			}
			updated++
		case errors.IsConflictError(err):
			skipped++
		default:
			return added, updated, skipped, err
		}
	}
	return added, updated, skipped, nil
}

func runJobImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}
	specs, err := parseJobFile(string(data))
	if err != nil {
		return err
	}

	rt, err := openPulse(0)
	if err != nil {
		return err
	}
	defer rt.Close()

	added, updated, skipped, err := importJobs(cmd.Context(), rt.scheduler, specs, importReplace)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("%s Imported %s: %d added, %d updated, %d already present",
		sym.Job, args[0], added, updated, skipped)
	return nil
}
