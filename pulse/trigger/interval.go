package trigger

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/teranos/cadence/errors"
)

// IntervalTrigger fires every Period, aligned to Start (or the Unix epoch).
type IntervalTrigger struct {
	Period time.Duration
	Start  *time.Time
	End    *time.Time
}

type intervalValue struct {
	Period float64 `json:"period"`
	Unit   string  `json:"unit,omitempty"`
	Start  string  `json:"start,omitempty"`
	End    string  `json:"end,omitempty"`
}

var intervalUnits = map[string]time.Duration{
	"":        time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
	"week":    7 * 24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
}

// NewInterval returns a trigger firing every period between the optional bounds.
// The period and bounds are truncated to microseconds.
func NewInterval(period time.Duration, start, end *time.Time) (*IntervalTrigger, error) {
	if period.Truncate(time.Microsecond) <= 0 {
		return nil, errors.NewConfigurationError("interval period must be at least 1µs, got %s", period)
	}
	period = period.Truncate(time.Microsecond)
	if start != nil && end != nil && end.Before(*start) {
		return nil, errors.NewConfigurationError("interval end %s is before start %s",
			formatTimestamp(*end), formatTimestamp(*start))
	}
	return &IntervalTrigger{Period: period, Start: utcPtr(start), End: utcPtr(end)}, nil
}

func parseInterval(value json.RawMessage) (*IntervalTrigger, error) {
	var v intervalValue
	if err := strictDecode(value, &v, TypeInterval); err != nil {
		return nil, err
	}

	unit, ok := intervalUnits[strings.ToLower(v.Unit)]
	if !ok {
		return nil, errors.WithHint(
			errors.NewConfigurationError("unknown interval unit %q", v.Unit),
			"use one of: seconds, minutes, hours, days, weeks",
		)
	}
	if v.Period <= 0 || math.IsNaN(v.Period) || math.IsInf(v.Period, 0) {
		return nil, errors.NewConfigurationError("interval period must be positive, got %v", v.Period)
	}
	if v.Period*float64(unit) > float64(math.MaxInt64) {
		return nil, errors.NewConfigurationError("interval period %v %s is too large", v.Period, v.Unit)
	}

	start, err := optionalTimestamp(v.Start, time.UTC, "interval start")
	if err != nil {
		return nil, err
	}
	end, err := optionalTimestamp(v.End, time.UTC, "interval end")
	if err != nil {
		return nil, err
	}

	return NewInterval(time.Duration(v.Period*float64(unit)), start, end)
}

// NextFireTime returns prev+Period, or the first period boundary at or after
// now when there is no previous run.
func (it *IntervalTrigger) NextFireTime(prev *time.Time, now time.Time) *time.Time {
	var next time.Time
	if prev != nil {
		next = prev.Add(it.Period)
	} else {
		anchor := time.Unix(0, 0).UTC()
		if it.Start != nil {
			anchor = *it.Start
		}
		next = anchor
		if now.After(anchor) {
			elapsed := now.Sub(anchor)
			k := elapsed / it.Period
			if elapsed%it.Period != 0 {
				k++
			}
			next = anchor.Add(k * it.Period)
		}
	}

	if pastEnd(next, it.End) {
		return nil
	}
	next = next.UTC()
	return &next
}

func (it *IntervalTrigger) Spec() Spec {
	v := intervalValue{Period: it.Period.Seconds(), Unit: "seconds"}
	if it.Start != nil {
		v.Start = formatTimestamp(*it.Start)
	}
	if it.End != nil {
		v.End = formatTimestamp(*it.End)
	}
	return Spec{Type: TypeInterval, Value: mustMarshal(v)}
}

func (it *IntervalTrigger) String() string {
	return fmt.Sprintf("interval[%s]", it.Period)
}

// normalize converts t to UTC at the microsecond precision the job store keeps.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := normalize(*t)
	return &u
}
