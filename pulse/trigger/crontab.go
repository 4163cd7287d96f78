package trigger

import (
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teranos/cadence/errors"
)

// crontabParser accepts 5-field crontab lines, an optional leading seconds
// field and descriptors such as @daily or @every 90s.
var crontabParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

const starBit = 1 << 63

// ParseCrontab converts a crontab expression into a trigger evaluated in loc
// (UTC when nil). A CRON_TZ= or TZ= prefix in expr takes precedence.
// @every expressions become interval triggers.
func ParseCrontab(expr string, loc *time.Location) (Trigger, error) {
	return parseCrontab(expr, loc, nil, nil)
}

func parseCrontab(expr string, loc *time.Location, start, end *time.Time) (Trigger, error) {
	expr = strings.TrimSpace(expr)
	sched, err := crontabParser.Parse(expr)
	if err != nil {
		return nil, errors.WithHint(
			errors.WrapConfiguration(err, "invalid crontab expression "+expr),
			"expected five fields: minute hour day-of-month month day-of-week",
		)
	}

	switch s := sched.(type) {
	case cron.ConstantDelaySchedule:
		return NewInterval(s.Delay, start, end)
	case *cron.SpecSchedule:
		if !hasTZPrefix(expr) {
			// robfig defaults to the process-local zone
			s.Location = loc
			if s.Location == nil {
				s.Location = time.UTC
			}
		}
		return cronFromSpecSchedule(expr, s, start, end)
	default:
		return nil, errors.AssertionFailedf("unexpected crontab schedule type %T", sched)
	}
}

func hasTZPrefix(expr string) bool {
	return strings.HasPrefix(expr, "TZ=") || strings.HasPrefix(expr, "CRON_TZ=")
}

// cronFromSpecSchedule maps robfig's bit sets onto calendar fields.
// Day of month and day of week combine with AND here, not the OR of classic cron.
func cronFromSpecSchedule(expr string, s *cron.SpecSchedule, start, end *time.Time) (*CronTrigger, error) {
	c := &CronTrigger{
		Start:      utcPtr(start),
		End:        utcPtr(end),
		Location:   s.Location,
		expression: expr,
	}
	c.fields[fieldYear] = fieldFromValues(fieldYear, nil, true)
	c.fields[fieldWeek] = fieldFromValues(fieldWeek, nil, true)
	c.fields[fieldMonth] = fieldFromBits(fieldMonth, s.Month, identity)
	c.fields[fieldDay] = fieldFromBits(fieldDay, s.Dom, identity)
	c.fields[fieldDayOfWeek] = fieldFromBits(fieldDayOfWeek, s.Dow, sundayToMonday)
	c.fields[fieldHour] = fieldFromBits(fieldHour, s.Hour, identity)
	c.fields[fieldMinute] = fieldFromBits(fieldMinute, s.Minute, identity)
	c.fields[fieldSecond] = fieldFromBits(fieldSecond, s.Second, identity)

	if start != nil && end != nil && end.Before(*start) {
		return nil, errors.NewConfigurationError("cron end %s is before start %s",
			formatTimestamp(*end), formatTimestamp(*start))
	}
	return c, nil
}

func identity(v int) int { return v }

// robfig numbers Sunday 0; cadence numbers Monday 0.
func sundayToMonday(v int) int { return (v + 6) % 7 }

func fieldFromBits(idx int, bits uint64, convert func(int) int) *cronField {
	if bits&starBit != 0 {
		return fieldFromValues(idx, nil, true)
	}
	seen := make(map[int]bool)
	var values []int
	for v := 0; v < 63; v++ {
		if bits&(1<<uint(v)) == 0 {
			continue
		}
		cv := convert(v)
		if !seen[cv] {
			seen[cv] = true
			values = append(values, cv)
		}
	}
	sort.Ints(values)
	return fieldFromValues(idx, values, false)
}
