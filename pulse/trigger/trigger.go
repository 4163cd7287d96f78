// Package trigger computes when scheduled jobs fire.
//
// Three kinds exist: a one-shot date, a fixed interval and a calendar
// (cron-style) rule. Every trigger serializes to a Spec so it can be stored
// with its job and rebuilt later:
//
//	t, err := trigger.Parse(trigger.Spec{
//	    Type:  trigger.TypeCron,
//	    Value: json.RawMessage(`{"hour": "9", "minute": "30"}`),
//	})
//	next := t.NextFireTime(nil, time.Now())
//
// Parse errors are classified as errors.ErrConfiguration.
package trigger

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/teranos/cadence/errors"
)

// Trigger computes fire times.
type Trigger interface {
	// NextFireTime returns the next fire time strictly after prev, or the
	// first fire time at or after now when prev is nil. nil means the
	// trigger will never fire again.
	NextFireTime(prev *time.Time, now time.Time) *time.Time

	// Spec returns the serializable form of the trigger.
	Spec() Spec

	String() string
}

// Type names a trigger kind.
type Type string

const (
	TypeDate     Type = "date"
	TypeInterval Type = "interval"
	TypeCron     Type = "cron"
)

// Spec is the wire and storage form of a trigger.
type Spec struct {
	Type  Type            `json:"type" yaml:"type" toml:"type"`
	Value json.RawMessage `json:"value" yaml:"value" toml:"value"`
}

// Parse builds a trigger from its spec.
func Parse(spec Spec) (Trigger, error) {
	value := bytes.TrimSpace(spec.Value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return nil, errors.NewConfigurationError("%s trigger has no value", spec.Type)
	}

	switch Type(strings.ToLower(string(spec.Type))) {
	case TypeDate:
		return parseDate(value)
	case TypeInterval:
		return parseInterval(value)
	case TypeCron:
		return parseCron(value)
	case "":
		return nil, errors.NewConfigurationError("trigger type is required")
	default:
		return nil, errors.WithHint(
			errors.NewConfigurationError("unknown trigger type %q", spec.Type),
			"use one of: date, interval, cron",
		)
	}
}

// Equal reports whether two specs describe the same trigger.
func Equal(a, b Spec) bool {
	if a.Type != b.Type {
		return false
	}
	var av, bv interface{}
	if json.Unmarshal(a.Value, &av) != nil || json.Unmarshal(b.Value, &bv) != nil {
		return bytes.Equal(a.Value, b.Value)
	}
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return bytes.Equal(ab, bb)
}

// mustMarshal encodes values built by this package; they always encode.
func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(errors.AssertionFailedf("trigger value does not encode: %v", err))
	}
	return data
}

// strictDecode unmarshals value into dst rejecting unknown keys.
func strictDecode(value []byte, dst interface{}, kind Type) error {
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.WrapConfiguration(err, "invalid "+string(kind)+" trigger")
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and a few bare layouts. Bare values are
// read in loc, or UTC when loc is nil.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.NewConfigurationError("invalid timestamp %q", s)
}

func formatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func optionalTimestamp(s string, loc *time.Location, name string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(s, loc)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}
	return &t, nil
}

func pastEnd(t time.Time, end *time.Time) bool {
	return end != nil && t.After(*end)
}
