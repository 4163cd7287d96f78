package schedule

import (
	"encoding/json"
	"time"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/pulse/trigger"
)

// StateVersion is the version written into every encoded job state.
const StateVersion = 1

// jobState is the document stored in pulse_jobs.state.
// It names the handler instead of carrying code, so any reader can inspect it.
type jobState struct {
	Version             int             `json:"version"`
	Name                string          `json:"name,omitempty"`
	Handler             string          `json:"handler"`
	Trigger             trigger.Spec    `json:"trigger"`
	Args                json.RawMessage `json:"args,omitempty"`
	MaxInstances        int             `json:"max_instances"`
	MisfireGraceSeconds *float64        `json:"misfire_grace_seconds"`
	Coalesce            bool            `json:"coalesce"`
	LastRunTime         *time.Time      `json:"last_run_time,omitempty"`
}

// EncodeState serializes everything about job except its id and next run time,
// which live in their own columns.
func EncodeState(job *Job) ([]byte, error) {
	if job.Trigger == nil {
		return nil, errors.Newf("job %s has no trigger", job.ID)
	}
	st := jobState{
		Version:      StateVersion,
		Name:         job.Name,
		Handler:      job.Handler,
		Trigger:      job.Trigger.Spec(),
		Args:         job.Args,
		MaxInstances: job.MaxInstances,
		Coalesce:     job.Coalesce,
		LastRunTime:  job.LastRunTime,
	}
	if job.MisfireGraceTime != nil {
		secs := job.MisfireGraceTime.Seconds()
		st.MisfireGraceSeconds = &secs
	}
	b, err := json.Marshal(st)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode state for job %s", job.ID)
	}
	return b, nil
}

// DecodeState rebuilds a job from its stored state.
// Any failure is marked errors.ErrCorruptState.
func DecodeState(id string, nextRunTime *time.Time, blob []byte) (*Job, error) {
	var st jobState
	if err := json.Unmarshal(blob, &st); err != nil {
		return nil, errors.WrapCorruptState(err, id)
	}
	if st.Version != StateVersion {
		return nil, errors.WrapCorruptState(errors.Newf("unsupported state version %d", st.Version), id)
	}
	if st.Handler == "" {
		return nil, errors.WrapCorruptState(errors.New("state has no handler"), id)
	}
	if st.MaxInstances < 1 {
		return nil, errors.WrapCorruptState(errors.Newf("invalid max_instances %d", st.MaxInstances), id)
	}
	tr, err := trigger.Parse(st.Trigger)
	if err != nil {
		return nil, errors.WrapCorruptState(err, id)
	}

	job := &Job{
		ID:           id,
		Name:         st.Name,
		Handler:      st.Handler,
		Trigger:      tr,
		Args:         st.Args,
		MaxInstances: st.MaxInstances,
		Coalesce:     st.Coalesce,
		NextRunTime:  nextRunTime,
	}
	if st.LastRunTime != nil {
		t := st.LastRunTime.UTC()
		job.LastRunTime = &t
	}
	if st.MisfireGraceSeconds != nil {
		grace := time.Duration(*st.MisfireGraceSeconds * float64(time.Second))
		job.MisfireGraceTime = &grace
	}
	return job, nil
}
