package trigger

import (
	"strconv"
	"strings"

	"github.com/teranos/cadence/errors"
)

// Field order, most significant first.
const (
	fieldYear = iota
	fieldMonth
	fieldDay
	fieldWeek
	fieldDayOfWeek
	fieldHour
	fieldMinute
	fieldSecond
	numFields
)

type fieldSpec struct {
	name     string
	min, max int
	fallback string // value when less significant than every explicit field
	names    map[string]int
}

var fieldSpecs = [numFields]fieldSpec{
	fieldYear:      {name: "year", min: 1970, max: 9999, fallback: "*"},
	fieldMonth:     {name: "month", min: 1, max: 12, fallback: "1", names: monthNames},
	fieldDay:       {name: "day", min: 1, max: 31, fallback: "1"},
	fieldWeek:      {name: "week", min: 1, max: 53, fallback: "*"},
	fieldDayOfWeek: {name: "day_of_week", min: 0, max: 6, fallback: "*", names: weekdayNames},
	fieldHour:      {name: "hour", min: 0, max: 23, fallback: "0"},
	fieldMinute:    {name: "minute", min: 0, max: 59, fallback: "0"},
	fieldSecond:    {name: "second", min: 0, max: 59, fallback: "0"},
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// Monday is 0.
var weekdayNames = map[string]int{
	"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6,
}

// cronField is the set of allowed values of one calendar field.
type cronField struct {
	spec     *fieldSpec
	expr     string
	wildcard bool
	allowed  []bool // indexed by value - spec.min
}

func parseField(idx int, expr string) (*cronField, error) {
	spec := &fieldSpecs[idx]
	f := &cronField{
		spec:    spec,
		expr:    strings.TrimSpace(expr),
		allowed: make([]bool, spec.max-spec.min+1),
	}
	if f.expr == "" {
		return nil, errors.NewConfigurationError("cron field %s: empty expression", spec.name)
	}

	for _, part := range strings.Split(strings.ToLower(f.expr), ",") {
		part = strings.TrimSpace(part)
		lo, hi, step, err := parseRange(spec, part)
		if err != nil {
			return nil, err
		}
		if part == "*" {
			f.wildcard = true
		}
		for v := lo; v <= hi; v += step {
			f.allowed[v-spec.min] = true
		}
	}
	return f, nil
}

// parseRange handles *, */n, a, a-b, a-b/n and a/n.
func parseRange(spec *fieldSpec, part string) (lo, hi, step int, err error) {
	step = 1
	if i := strings.IndexByte(part, '/'); i >= 0 {
		step, err = strconv.Atoi(part[i+1:])
		if err != nil {
			return 0, 0, 0, errors.NewConfigurationError("cron field %s: invalid step in %q", spec.name, part)
		}
		if step <= 0 {
			return 0, 0, 0, errors.NewConfigurationError("cron field %s: step must be positive", spec.name)
		}
		part = part[:i]
		// a/n runs from a to the field maximum
		if part != "*" && !strings.Contains(part, "-") {
			lo, err = parseValue(spec, part)
			if err != nil {
				return 0, 0, 0, err
			}
			return lo, spec.max, step, nil
		}
	}

	switch {
	case part == "*":
		return spec.min, spec.max, step, nil
	case strings.Contains(part, "-"):
		bounds := strings.SplitN(part, "-", 2)
		if lo, err = parseValue(spec, bounds[0]); err != nil {
			return 0, 0, 0, err
		}
		if hi, err = parseValue(spec, bounds[1]); err != nil {
			return 0, 0, 0, err
		}
		if lo > hi {
			return 0, 0, 0, errors.NewConfigurationError("cron field %s: range %q is reversed", spec.name, part)
		}
		return lo, hi, step, nil
	default:
		if lo, err = parseValue(spec, part); err != nil {
			return 0, 0, 0, err
		}
		return lo, lo, step, nil
	}
}

func parseValue(spec *fieldSpec, s string) (int, error) {
	if v, ok := spec.names[s]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewConfigurationError("cron field %s: invalid value %q", spec.name, s)
	}
	if v < spec.min || v > spec.max {
		return 0, errors.NewConfigurationError("cron field %s: value %d out of range %d-%d",
			spec.name, v, spec.min, spec.max)
	}
	return v, nil
}

func (f *cronField) match(v int) bool {
	i := v - f.spec.min
	return i >= 0 && i < len(f.allowed) && f.allowed[i]
}

// next returns the smallest allowed value >= v.
func (f *cronField) next(v int) (int, bool) {
	if v < f.spec.min {
		v = f.spec.min
	}
	for i := v - f.spec.min; i < len(f.allowed); i++ {
		if f.allowed[i] {
			return i + f.spec.min, true
		}
	}
	return 0, false
}

// last returns the largest allowed value.
func (f *cronField) last() int {
	for i := len(f.allowed) - 1; i >= 0; i-- {
		if f.allowed[i] {
			return i + f.spec.min
		}
	}
	return f.spec.min
}

// fieldFromValues builds a field from an explicit value list.
func fieldFromValues(idx int, values []int, wildcard bool) *cronField {
	spec := &fieldSpecs[idx]
	f := &cronField{spec: spec, wildcard: wildcard, allowed: make([]bool, spec.max-spec.min+1)}
	if wildcard {
		f.expr = "*"
		for i := range f.allowed {
			f.allowed[i] = true
		}
		return f
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		f.allowed[v-spec.min] = true
		parts = append(parts, strconv.Itoa(v))
	}
	f.expr = strings.Join(parts, ",")
	return f
}
