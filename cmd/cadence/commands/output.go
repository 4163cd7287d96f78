package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/pulse/schedule"
)

// Output formats accepted by --format
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// writeStructured renders v as JSON or YAML.
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal JSON")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "failed to marshal YAML")
		}
		_, err = w.Write(data)
		return err
	default:
		return errors.NewConfigurationError("unsupported format: %s (supported: table, json, yaml)", format)
	}
}

// renderTable prints rows under header with pterm.
func renderTable(w io.Writer, header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

// jobView is the printable form of a job. Raw JSON is decoded so YAML output
// stays readable.
type jobView struct {
	ID           string      `json:"id" yaml:"id"`
	Name         string      `json:"name" yaml:"name"`
	Handler      string      `json:"handler" yaml:"handler"`
	Trigger      string      `json:"trigger" yaml:"trigger"`
	TriggerSpec  interface{} `json:"trigger_spec" yaml:"trigger_spec"`
	Args         interface{} `json:"args,omitempty" yaml:"args,omitempty"`
	MaxInstances int         `json:"max_instances" yaml:"max_instances"`
	MisfireGrace string      `json:"misfire_grace" yaml:"misfire_grace"`
	Coalesce     bool        `json:"coalesce" yaml:"coalesce"`
	Paused       bool        `json:"paused" yaml:"paused"`
	NextRunTime  *time.Time  `json:"next_run_time" yaml:"next_run_time"`
	LastRunTime  *time.Time  `json:"last_run_time" yaml:"last_run_time"`
}

func newJobView(job *schedule.Job) jobView {
	spec := job.Trigger.Spec()
	grace := "none"
	if job.MisfireGraceTime != nil {
		grace = job.MisfireGraceTime.String()
	}
	return jobView{
		ID:           job.ID,
		Name:         job.Name,
		Handler:      job.Handler,
		Trigger:      job.Trigger.String(),
		TriggerSpec:  map[string]interface{}{"type": spec.Type, "value": decodeRaw(spec.Value)},
		Args:         decodeRaw(job.Args),
		MaxInstances: job.MaxInstances,
		MisfireGrace: grace,
		Coalesce:     job.Coalesce,
		Paused:       job.Paused(),
		NextRunTime:  job.NextRunTime,
		LastRunTime:  job.LastRunTime,
	}
}

func decodeRaw(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// formatTime prints t in UTC, or fallback when t is nil.
func formatTime(t *time.Time, fallback string) string {
	if t == nil {
		return fallback
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// formatEpoch prints epoch seconds the same way as formatTime.
func formatEpoch(s *float64) string {
	if s == nil {
		return "-"
	}
	t := db.FromEpochSeconds(*s)
	return formatTime(&t, "-")
}

// formatSeconds prints a duration in seconds with millisecond precision.
func formatSeconds(s *float64) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%.3fs", *s)
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
