package trigger

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/cadence/errors"
)

// searchHorizonYears bounds the search for a matching time.
const searchHorizonYears = 400

// CronTrigger fires at calendar times matching every field.
// day, week and day_of_week must all match (AND), unlike classic cron.
type CronTrigger struct {
	fields   [numFields]*cronField
	explicit [numFields]bool

	Start    *time.Time
	End      *time.Time
	Location *time.Location

	// expression is the crontab source when the trigger was built from one
	expression string
}

// CronFields is the programmatic form of a field-based cron trigger.
// Empty fields are unset.
type CronFields struct {
	Year, Month, Day, Week, DayOfWeek string
	Hour, Minute, Second              string

	Start, End *time.Time
	Location   *time.Location
}

type cronValue struct {
	Year      *fieldExpr `json:"year,omitempty"`
	Month     *fieldExpr `json:"month,omitempty"`
	Day       *fieldExpr `json:"day,omitempty"`
	Week      *fieldExpr `json:"week,omitempty"`
	DayOfWeek *fieldExpr `json:"day_of_week,omitempty"`
	Hour      *fieldExpr `json:"hour,omitempty"`
	Minute    *fieldExpr `json:"minute,omitempty"`
	Second    *fieldExpr `json:"second,omitempty"`

	Expression string `json:"expression,omitempty"`
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
}

// fieldExpr accepts a JSON string or integer.
type fieldExpr string

func (e *fieldExpr) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*e = fieldExpr(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil || n != math.Trunc(n) {
		return errors.Newf("cron field must be a string or integer, got %s", b)
	}
	*e = fieldExpr(strconv.FormatInt(int64(n), 10))
	return nil
}

func (v *cronValue) fields() [numFields]string {
	var out [numFields]string
	for i, e := range []*fieldExpr{v.Year, v.Month, v.Day, v.Week, v.DayOfWeek, v.Hour, v.Minute, v.Second} {
		if e != nil {
			out[i] = string(*e)
			if out[i] == "" {
				out[i] = " " // explicit but empty; rejected by parseField
			}
		}
	}
	return out
}

func parseCron(value json.RawMessage) (Trigger, error) {
	var v cronValue
	if err := strictDecode(value, &v, TypeCron); err != nil {
		return nil, err
	}

	loc, err := loadLocation(v.Timezone)
	if err != nil {
		return nil, err
	}
	start, err := optionalTimestamp(v.Start, loc, "cron start")
	if err != nil {
		return nil, err
	}
	end, err := optionalTimestamp(v.End, loc, "cron end")
	if err != nil {
		return nil, err
	}

	exprs := v.fields()
	if v.Expression != "" {
		for _, e := range exprs {
			if e != "" {
				return nil, errors.NewConfigurationError("cron trigger takes either an expression or fields, not both")
			}
		}
		var tzLoc *time.Location
		if v.Timezone != "" {
			tzLoc = loc
		}
		return parseCrontab(v.Expression, tzLoc, start, end)
	}

	return newCron(exprs, start, end, loc)
}

// NewCron builds a field-based cron trigger.
func NewCron(f CronFields) (*CronTrigger, error) {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return newCron([numFields]string{
		f.Year, f.Month, f.Day, f.Week, f.DayOfWeek, f.Hour, f.Minute, f.Second,
	}, f.Start, f.End, loc)
}

func newCron(exprs [numFields]string, start, end *time.Time, loc *time.Location) (*CronTrigger, error) {
	lastExplicit := -1
	for i, e := range exprs {
		if e != "" {
			lastExplicit = i
		}
	}

	c := &CronTrigger{Start: utcPtr(start), End: utcPtr(end), Location: loc}
	for i := 0; i < numFields; i++ {
		expr := exprs[i]
		switch {
		case expr != "":
			c.explicit[i] = true
		case i > lastExplicit:
			expr = fieldSpecs[i].fallback
		default:
			expr = "*"
		}
		f, err := parseField(i, expr)
		if err != nil {
			return nil, err
		}
		c.fields[i] = f
	}

	if start != nil && end != nil && end.Before(*start) {
		return nil, errors.NewConfigurationError("cron end %s is before start %s",
			formatTimestamp(*end), formatTimestamp(*start))
	}
	return c, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "unknown timezone "+strconv.Quote(name))
	}
	return loc, nil
}

// NextFireTime returns the earliest matching time strictly after prev, or at
// or after now (rounded up to the second) when prev is nil.
func (c *CronTrigger) NextFireTime(prev *time.Time, now time.Time) *time.Time {
	var from time.Time
	if prev != nil {
		from = prev.Add(time.Second).Truncate(time.Second)
	} else {
		from = ceilSecond(now)
	}
	if c.Start != nil && from.Before(*c.Start) {
		from = ceilSecond(*c.Start)
	}

	next, ok := c.search(from.In(c.Location))
	if !ok || pastEnd(next, c.End) {
		return nil
	}
	next = next.UTC()
	return &next
}

// search walks forward from t, jumping to the start of the next candidate
// unit whenever a field does not match.
func (c *CronTrigger) search(t time.Time) (time.Time, bool) {
	loc := c.Location
	date := func(y, mo, d, h, mi, s int) time.Time {
		return time.Date(y, time.Month(mo), d, h, mi, s, 0, loc)
	}

	maxYear := t.Year() + searchHorizonYears
	if last := c.fields[fieldYear].last(); last < maxYear {
		maxYear = last
	}

	for t.Year() <= maxYear {
		var next time.Time
		y, mo, d := t.Date()
		h, mi, s := t.Clock()

		if ny, ok := c.fields[fieldYear].next(y); !ok {
			return time.Time{}, false
		} else if ny != y {
			next = date(ny, 1, 1, 0, 0, 0)
		} else if nm, ok := c.fields[fieldMonth].next(int(mo)); !ok {
			next = date(y+1, 1, 1, 0, 0, 0)
		} else if nm != int(mo) {
			next = date(y, nm, 1, 0, 0, 0)
		} else if !c.dayMatches(t) {
			next = date(y, int(mo), d+1, 0, 0, 0)
		} else if nh, ok := c.fields[fieldHour].next(h); !ok {
			next = date(y, int(mo), d+1, 0, 0, 0)
		} else if nh != h {
			next = date(y, int(mo), d, nh, 0, 0)
		} else if nmi, ok := c.fields[fieldMinute].next(mi); !ok {
			next = date(y, int(mo), d, h+1, 0, 0)
		} else if nmi != mi {
			next = date(y, int(mo), d, h, nmi, 0)
		} else if ns, ok := c.fields[fieldSecond].next(s); !ok {
			next = date(y, int(mo), d, h, mi+1, 0)
		} else if ns != s {
			next = date(y, int(mo), d, h, mi, ns)
		} else {
			return t, true
		}

		// Ambiguous wall clock times around DST changes can map backwards
		if !next.After(t) {
			next = t.Add(time.Second)
		}
		t = next
	}
	return time.Time{}, false
}

func (c *CronTrigger) dayMatches(t time.Time) bool {
	_, week := t.ISOWeek()
	weekday := (int(t.Weekday()) + 6) % 7
	return c.fields[fieldDay].match(t.Day()) &&
		c.fields[fieldWeek].match(week) &&
		c.fields[fieldDayOfWeek].match(weekday)
}

func (c *CronTrigger) Spec() Spec {
	var v cronValue
	if c.expression != "" {
		v.Expression = c.expression
	} else {
		ptrs := []**fieldExpr{&v.Year, &v.Month, &v.Day, &v.Week, &v.DayOfWeek, &v.Hour, &v.Minute, &v.Second}
		for i, p := range ptrs {
			if c.explicit[i] {
				e := fieldExpr(c.fields[i].expr)
				*p = &e
			}
		}
	}
	if c.Location != nil && c.Location != time.UTC {
		v.Timezone = c.Location.String()
	}
	if c.Start != nil {
		v.Start = formatTimestamp(*c.Start)
	}
	if c.End != nil {
		v.End = formatTimestamp(*c.End)
	}
	return Spec{Type: TypeCron, Value: mustMarshal(v)}
}

func (c *CronTrigger) String() string {
	if c.expression != "" {
		return "cron[" + c.expression + "]"
	}
	var parts []string
	for i, f := range c.fields {
		if c.explicit[i] {
			parts = append(parts, f.spec.name+"='"+f.expr+"'")
		}
	}
	if c.Location != nil && c.Location != time.UTC {
		parts = append(parts, "timezone='"+c.Location.String()+"'")
	}
	return "cron[" + strings.Join(parts, ", ") + "]"
}

func ceilSecond(t time.Time) time.Time {
	r := t.Truncate(time.Second)
	if r.Before(t) {
		r = r.Add(time.Second)
	}
	return r
}
