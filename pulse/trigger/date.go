package trigger

import (
	"encoding/json"
	"time"
)

// DateTrigger fires once at RunDate.
type DateTrigger struct {
	RunDate time.Time
}

// NewDate returns a trigger that fires once at t, truncated to microseconds.
func NewDate(t time.Time) *DateTrigger {
	return &DateTrigger{RunDate: normalize(t)}
}

func parseDate(value json.RawMessage) (*DateTrigger, error) {
	var s string
	if err := strictDecode(value, &s, TypeDate); err != nil {
		return nil, err
	}
	t, err := ParseTimestamp(s, time.UTC)
	if err != nil {
		return nil, err
	}
	return NewDate(t), nil
}

// NextFireTime returns RunDate until a run at or after it has happened.
func (d *DateTrigger) NextFireTime(prev *time.Time, now time.Time) *time.Time {
	if prev == nil || prev.Before(d.RunDate) {
		t := d.RunDate
		return &t
	}
	return nil
}

func (d *DateTrigger) Spec() Spec {
	return Spec{Type: TypeDate, Value: mustMarshal(formatTimestamp(d.RunDate))}
}

func (d *DateTrigger) String() string {
	return "date[" + formatTimestamp(d.RunDate) + "]"
}
