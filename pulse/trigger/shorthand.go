package trigger

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/cadence/errors"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseShorthand turns a one-line schedule into a trigger spec.
//
// Supported forms:
//   - Crontab: "*/5 * * * *", "@hourly", "@every 55m", "CRON_TZ=Europe/Amsterdam 0 9 * * 1-5"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - One-shot timestamp: "2026-11-01T09:00:00Z"
//
// Optional prefixes force a kind: "cron:", "interval:" or "every:", "at:".
func ParseShorthand(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, errors.NewConfigurationError("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return crontabSpec(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return intervalSpec(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return intervalSpec(strings.TrimSpace(s[len("every:"):]))
	case strings.HasPrefix(low, "at:"):
		return dateSpec(strings.TrimSpace(s[len("at:"):]))
	}

	if _, err := ParseTimestamp(s, time.UTC); err == nil {
		return dateSpec(s)
	}
	// Heuristics: whitespace or a leading '@' means crontab
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return crontabSpec(s)
	}
	if reHHMM.MatchString(s) {
		return intervalSpec(s)
	}
	if _, err := time.ParseDuration(s); err == nil {
		return intervalSpec(s)
	}

	return Spec{}, errors.NewConfigurationError(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', a duration like '55m' or a timestamp)",
		raw,
	)
}

func crontabSpec(expr string) (Spec, error) {
	if expr == "" {
		return Spec{}, errors.NewConfigurationError("cron schedule required after 'cron:'")
	}
	spec := Spec{Type: TypeCron, Value: mustMarshal(cronValue{Expression: expr})}
	if _, err := Parse(spec); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func intervalSpec(v string) (Spec, error) {
	d, err := parseShorthandDuration(v)
	if err != nil {
		return Spec{}, err
	}
	return Spec{Type: TypeInterval, Value: mustMarshal(intervalValue{Period: d.Seconds(), Unit: "seconds"})}, nil
}

func dateSpec(v string) (Spec, error) {
	t, err := ParseTimestamp(v, time.UTC)
	if err != nil {
		return Spec{}, err
	}
	return NewDate(t).Spec(), nil
}

func parseShorthandDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, errors.NewConfigurationError("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, errors.NewConfigurationError("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return 0, errors.NewConfigurationError("interval must be > 0")
		}
		return d, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.NewConfigurationError("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d <= 0 {
		return 0, errors.NewConfigurationError("interval must be > 0")
	}
	return d, nil
}

// MarshalValue is a helper for callers building specs by hand.
func MarshalValue(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "invalid trigger value")
	}
	return data, nil
}
