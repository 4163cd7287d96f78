package trigger

import (
	"encoding/json"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cadence/errors"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return v
}

func tsPtr(t *testing.T, s string) *time.Time {
	v := ts(t, s)
	return &v
}

func mustParse(t *testing.T, typ Type, value string) Trigger {
	t.Helper()
	tr, err := Parse(Spec{Type: typ, Value: json.RawMessage(value)})
	require.NoError(t, err)
	return tr
}

func assertNext(t *testing.T, tr Trigger, prev *time.Time, now, want string) {
	t.Helper()
	got := tr.NextFireTime(prev, ts(t, now))
	if want == "" {
		assert.Nil(t, got, "%s should be exhausted", tr)
		return
	}
	require.NotNil(t, got, "%s should fire again", tr)
	assert.Equal(t, ts(t, want), *got, "%s", tr)
	assert.Equal(t, time.UTC, got.Location())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"missing type", Spec{Value: json.RawMessage(`"2026-01-01T00:00:00Z"`)}},
		{"unknown type", Spec{Type: "weekly", Value: json.RawMessage(`{}`)}},
		{"missing value", Spec{Type: TypeDate}},
		{"null value", Spec{Type: TypeInterval, Value: json.RawMessage(`null`)}},
		{"date not a string", Spec{Type: TypeDate, Value: json.RawMessage(`42`)}},
		{"date unparseable", Spec{Type: TypeDate, Value: json.RawMessage(`"next tuesday"`)}},
		{"interval zero period", Spec{Type: TypeInterval, Value: json.RawMessage(`{"period": 0}`)}},
		{"interval negative period", Spec{Type: TypeInterval, Value: json.RawMessage(`{"period": -5}`)}},
		{"interval unknown unit", Spec{Type: TypeInterval, Value: json.RawMessage(`{"period": 1, "unit": "fortnights"}`)}},
		{"interval unknown key", Spec{Type: TypeInterval, Value: json.RawMessage(`{"period": 1, "every": 2}`)}},
		{"interval end before start", Spec{Type: TypeInterval, Value: json.RawMessage(
			`{"period": 1, "start": "2024-02-01T00:00:00Z", "end": "2024-01-01T00:00:00Z"}`)}},
		{"cron zero step", Spec{Type: TypeCron, Value: json.RawMessage(`{"minute": "*/0"}`)}},
		{"cron out of range", Spec{Type: TypeCron, Value: json.RawMessage(`{"hour": "25"}`)}},
		{"cron reversed range", Spec{Type: TypeCron, Value: json.RawMessage(`{"day": "20-10"}`)}},
		{"cron bad name", Spec{Type: TypeCron, Value: json.RawMessage(`{"month": "smarch"}`)}},
		{"cron empty field", Spec{Type: TypeCron, Value: json.RawMessage(`{"minute": ""}`)}},
		{"cron fractional field", Spec{Type: TypeCron, Value: json.RawMessage(`{"minute": 1.5}`)}},
		{"cron unknown field", Spec{Type: TypeCron, Value: json.RawMessage(`{"minutes": "5"}`)}},
		{"cron bad timezone", Spec{Type: TypeCron, Value: json.RawMessage(`{"hour": "1", "timezone": "Mars/Olympus"}`)}},
		{"cron expression and fields", Spec{Type: TypeCron, Value: json.RawMessage(`{"expression": "* * * * *", "hour": "1"}`)}},
		{"crontab bad field", Spec{Type: TypeCron, Value: json.RawMessage(`{"expression": "61 * * * *"}`)}},
		{"crontab too few fields", Spec{Type: TypeCron, Value: json.RawMessage(`{"expression": "* *"}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfiguration), "want configuration error, got %v", err)
		})
	}
}

func TestDateTrigger(t *testing.T) {
	tr := mustParse(t, TypeDate, `"2026-11-01T09:00:00Z"`)
	now := "2026-10-01T00:00:00Z"

	assertNext(t, tr, nil, now, "2026-11-01T09:00:00Z")
	assertNext(t, tr, tsPtr(t, "2026-10-31T09:00:00Z"), now, "2026-11-01T09:00:00Z")
	assertNext(t, tr, tsPtr(t, "2026-11-01T09:00:00Z"), now, "")
	assertNext(t, tr, tsPtr(t, "2026-12-01T00:00:00Z"), now, "")

	// A date in the past is still returned; lateness is the scheduler's call
	assertNext(t, tr, nil, "2027-01-01T00:00:00Z", "2026-11-01T09:00:00Z")
}

func TestDateTrigger_BareLayout(t *testing.T) {
	tr := mustParse(t, TypeDate, `"2026-11-01 09:00:00"`)
	assertNext(t, tr, nil, "2026-01-01T00:00:00Z", "2026-11-01T09:00:00Z")
	assert.Equal(t, "date[2026-11-01T09:00:00Z]", tr.String())
}

func TestIntervalTrigger(t *testing.T) {
	t.Run("epoch aligned without start", func(t *testing.T) {
		tr := mustParse(t, TypeInterval, `{"period": 10}`)
		assertNext(t, tr, nil, "2024-01-01T00:00:05Z", "2024-01-01T00:00:10Z")
		assertNext(t, tr, nil, "2024-01-01T00:00:10Z", "2024-01-01T00:00:10Z")
	})

	t.Run("previous run plus period", func(t *testing.T) {
		tr := mustParse(t, TypeInterval, `{"period": 2, "unit": "hours"}`)
		assertNext(t, tr, tsPtr(t, "2024-01-01T09:00:00Z"), "2024-06-01T00:00:00Z", "2024-01-01T11:00:00Z")
	})

	t.Run("aligned to start", func(t *testing.T) {
		tr := mustParse(t, TypeInterval, `{"period": 10, "unit": "seconds", "start": "2024-01-01T00:00:03Z"}`)
		assertNext(t, tr, nil, "2024-01-01T00:00:05Z", "2024-01-01T00:00:13Z")
		assertNext(t, tr, nil, "2023-12-31T00:00:00Z", "2024-01-01T00:00:03Z")
	})

	t.Run("exhausted past end", func(t *testing.T) {
		tr := mustParse(t, TypeInterval, `{"period": 1, "unit": "days", "end": "2024-01-03T00:00:00Z"}`)
		assertNext(t, tr, tsPtr(t, "2024-01-02T00:00:00Z"), "2024-01-02T00:00:00Z", "2024-01-03T00:00:00Z")
		assertNext(t, tr, tsPtr(t, "2024-01-03T00:00:00Z"), "2024-01-03T00:00:00Z", "")
	})

	t.Run("fractional and weekly units", func(t *testing.T) {
		tr, err := Parse(Spec{Type: TypeInterval, Value: json.RawMessage(`{"period": 1.5, "unit": "minutes"}`)})
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, tr.(*IntervalTrigger).Period)

		tr, err = Parse(Spec{Type: TypeInterval, Value: json.RawMessage(`{"period": 1, "unit": "week"}`)})
		require.NoError(t, err)
		assert.Equal(t, 7*24*time.Hour, tr.(*IntervalTrigger).Period)
	})
}

func TestCronTrigger(t *testing.T) {
	tests := []struct {
		name  string
		value string
		prev  string
		now   string
		want  string
	}{
		{
			name:  "daily at 09:30",
			value: `{"hour": "9", "minute": "30"}`,
			now:   "2024-01-01T10:00:00Z",
			want:  "2024-01-02T09:30:00Z",
		},
		{
			name:  "integer fields",
			value: `{"hour": 9, "minute": 30}`,
			now:   "2024-01-01T08:00:00Z",
			want:  "2024-01-01T09:30:00Z",
		},
		{
			name:  "strictly after previous run",
			value: `{"hour": "9", "minute": "30"}`,
			prev:  "2024-01-02T09:30:00Z",
			now:   "2024-01-01T00:00:00Z",
			want:  "2024-01-03T09:30:00Z",
		},
		{
			name:  "step",
			value: `{"minute": "*/15"}`,
			now:   "2024-01-01T10:07:30Z",
			want:  "2024-01-01T10:15:00Z",
		},
		{
			name:  "less significant fields default to minimum",
			value: `{"day": "1"}`,
			now:   "2024-01-15T12:00:00Z",
			want:  "2024-02-01T00:00:00Z",
		},
		{
			name:  "day and day_of_week combine with AND",
			value: `{"day": "13", "day_of_week": "fri"}`,
			now:   "2024-01-01T00:00:00Z",
			want:  "2024-09-13T00:00:00Z",
		},
		{
			name:  "names and ranges",
			value: `{"month": "jan-mar", "day_of_week": "sat-sun", "hour": "6"}`,
			now:   "2024-03-31T07:00:00Z",
			want:  "2025-01-04T06:00:00Z",
		},
		{
			name:  "iso week",
			value: `{"week": "2", "day_of_week": "mon"}`,
			now:   "2024-01-01T00:00:00Z",
			want:  "2024-01-08T00:00:00Z",
		},
		{
			name:  "lists",
			value: `{"hour": "8,12,18", "minute": "0"}`,
			now:   "2024-01-01T12:00:01Z",
			want:  "2024-01-01T18:00:00Z",
		},
		{
			name:  "a/n runs to the maximum",
			value: `{"second": "50/5"}`,
			now:   "2024-01-01T00:00:56Z",
			want:  "2024-01-01T00:01:50Z",
		},
		{
			name:  "sub-second now rounds up",
			value: `{"second": "*"}`,
			now:   "2024-01-01T10:00:00.5Z",
			want:  "2024-01-01T10:00:01Z",
		},
		{
			name:  "year rolls over",
			value: `{"month": "12", "day": "31", "hour": "23", "minute": "59", "second": "59"}`,
			prev:  "2024-12-31T23:59:59Z",
			now:   "2024-12-31T23:59:59Z",
			want:  "2025-12-31T23:59:59Z",
		},
		{
			name:  "leap day",
			value: `{"month": "2", "day": "29"}`,
			now:   "2024-03-01T00:00:00Z",
			want:  "2028-02-29T00:00:00Z",
		},
		{
			name:  "impossible date is exhausted",
			value: `{"month": "2", "day": "30"}`,
			now:   "2024-01-01T00:00:00Z",
			want:  "",
		},
		{
			name:  "explicit past year is exhausted",
			value: `{"year": "2020"}`,
			now:   "2024-01-01T00:00:00Z",
			want:  "",
		},
		{
			name:  "start bound",
			value: `{"minute": "0", "start": "2024-05-01T00:00:00Z"}`,
			now:   "2024-01-01T00:00:00Z",
			want:  "2024-05-01T00:00:00Z",
		},
		{
			name:  "end bound",
			value: `{"hour": "9", "end": "2024-01-01T12:00:00Z"}`,
			prev:  "2024-01-01T09:00:00Z",
			now:   "2024-01-01T09:00:00Z",
			want:  "",
		},
		{
			name:  "timezone",
			value: `{"hour": "9", "minute": "0", "timezone": "America/New_York"}`,
			now:   "2024-01-01T00:00:00Z",
			want:  "2024-01-01T14:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := mustParse(t, TypeCron, tt.value)
			var prev *time.Time
			if tt.prev != "" {
				prev = tsPtr(t, tt.prev)
			}
			assertNext(t, tr, prev, tt.now, tt.want)
		})
	}
}

func TestCronTrigger_DefaultsWithNoFields(t *testing.T) {
	tr := mustParse(t, TypeCron, `{}`)
	assertNext(t, tr, nil, "2024-06-01T00:00:00Z", "2025-01-01T00:00:00Z")
}

func TestCronTrigger_DST(t *testing.T) {
	// 2024-03-10: New York skips from 02:00 to 03:00
	tr := mustParse(t, TypeCron, `{"hour": "2", "minute": "30", "timezone": "America/New_York"}`)
	got := tr.NextFireTime(nil, ts(t, "2024-03-10T05:00:00Z"))
	require.NotNil(t, got)
	assert.True(t, got.After(ts(t, "2024-03-10T05:00:00Z")))

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, 30, got.In(ny).Minute())
}

func TestNewCron(t *testing.T) {
	tr, err := NewCron(CronFields{DayOfWeek: "mon-fri", Hour: "17"})
	require.NoError(t, err)
	// Saturday
	assertNext(t, tr, nil, "2024-01-06T00:00:00Z", "2024-01-08T17:00:00Z")
	assert.Equal(t, "cron[day_of_week='mon-fri', hour='17']", tr.String())
}

func TestCrontab(t *testing.T) {
	tests := []struct {
		name string
		expr string
		now  string
		want string
	}{
		{"every five minutes", "*/5 * * * *", "2024-01-01T10:07:30Z", "2024-01-01T10:10:00Z"},
		{"weekdays at nine", "0 9 * * 1-5", "2024-01-06T10:00:00Z", "2024-01-08T09:00:00Z"},
		{"sunday is zero", "0 0 * * 0", "2024-01-01T00:00:00Z", "2024-01-07T00:00:00Z"},
		{"daily descriptor", "@daily", "2024-01-01T10:00:00Z", "2024-01-02T00:00:00Z"},
		{"seconds field", "30 * * * * *", "2024-01-01T10:00:00Z", "2024-01-01T10:00:30Z"},
		{"evaluated in UTC by default", "0 9 * * *", "2024-01-01T00:00:00Z", "2024-01-01T09:00:00Z"},
		{"timezone prefix", "CRON_TZ=Asia/Tokyo 0 9 * * *", "2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z"},
		{"dom and dow combine with AND", "0 0 13 * 5", "2024-01-01T00:00:00Z", "2024-09-13T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := ParseCrontab(tt.expr, nil)
			require.NoError(t, err)
			assertNext(t, tr, nil, tt.now, tt.want)
		})
	}
}

func TestCrontab_TimezoneField(t *testing.T) {
	tr := mustParse(t, TypeCron, `{"expression": "0 9 * * *", "timezone": "Asia/Tokyo"}`)
	assertNext(t, tr, nil, "2024-01-01T01:00:00Z", "2024-01-02T00:00:00Z")
}

func TestCrontab_EveryBecomesInterval(t *testing.T) {
	tr, err := ParseCrontab("@every 90s", nil)
	require.NoError(t, err)
	it, ok := tr.(*IntervalTrigger)
	require.True(t, ok, "got %T", tr)
	assert.Equal(t, 90*time.Second, it.Period)
}

func TestSpecRoundTrip(t *testing.T) {
	specs := []Spec{
		{Type: TypeDate, Value: json.RawMessage(`"2026-11-01T09:00:00Z"`)},
		{Type: TypeInterval, Value: json.RawMessage(`{"period": 30, "unit": "minutes", "start": "2024-01-01T00:00:00Z"}`)},
		{Type: TypeCron, Value: json.RawMessage(`{"day_of_week": "mon-fri", "hour": "9", "timezone": "Europe/Amsterdam"}`)},
		{Type: TypeCron, Value: json.RawMessage(`{"expression": "*/5 * * * *"}`)},
	}
	now := ts(t, "2024-03-01T12:34:56Z")

	for _, spec := range specs {
		t.Run(string(spec.Type), func(t *testing.T) {
			original, err := Parse(spec)
			require.NoError(t, err)

			rebuilt, err := Parse(original.Spec())
			require.NoError(t, err)

			assert.Equal(t, original.String(), rebuilt.String())
			assert.Equal(t, original.NextFireTime(nil, now), rebuilt.NextFireTime(nil, now))
			assert.True(t, Equal(original.Spec(), rebuilt.Spec()))
		})
	}
}

func TestNextFireTimeProperties(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	tests := []struct {
		tr      Trigger
		matches func(time.Time) bool
	}{
		{
			mustParse(t, TypeInterval, `{"period": 45, "unit": "minutes"}`),
			func(v time.Time) bool { return v.Sub(epoch)%(45*time.Minute) == 0 },
		},
		{
			mustParse(t, TypeCron, `{"hour": "*/3", "minute": "15"}`),
			func(v time.Time) bool { return v.Hour()%3 == 0 && v.Minute() == 15 && v.Second() == 0 },
		},
		{
			// day and day_of_week must both match
			mustParse(t, TypeCron, `{"day": "1-7", "day_of_week": "tue", "hour": "10"}`),
			func(v time.Time) bool {
				return v.Day() <= 7 && v.Weekday() == time.Tuesday &&
					v.Hour() == 10 && v.Minute() == 0 && v.Second() == 0
			},
		},
		{
			mustParse(t, TypeCron, `{"expression": "0 */6 * * *"}`),
			func(v time.Time) bool { return v.Hour()%6 == 0 && v.Minute() == 0 && v.Second() == 0 },
		},
	}
	now := ts(t, "2024-01-01T00:00:00Z")

	for _, tt := range tests {
		t.Run(tt.tr.String(), func(t *testing.T) {
			prev := tt.tr.NextFireTime(nil, now)
			require.NotNil(t, prev)
			assert.False(t, prev.Before(now))
			assert.True(t, tt.matches(*prev), "%s: first fire time %s", tt.tr, prev)

			// A fire time is its own next fire time when no run happened yet
			again := tt.tr.NextFireTime(nil, *prev)
			require.NotNil(t, again)
			assert.Equal(t, *prev, *again)

			for i := 0; i < 50; i++ {
				next := tt.tr.NextFireTime(prev, now)
				require.NotNil(t, next)
				assert.True(t, next.After(*prev), "%s: %s not after %s", tt.tr, next, prev)
				assert.True(t, tt.matches(*next), "%s: %s does not match the trigger", tt.tr, next)
				prev = next
			}
		})
	}
}

func TestTriggerTimesAreTruncatedToMicroseconds(t *testing.T) {
	date := mustParse(t, TypeDate, `"2024-01-01T09:00:10.0000005Z"`)
	want := ts(t, "2024-01-01T09:00:10Z")

	first := date.NextFireTime(nil, ts(t, "2024-01-01T09:00:00Z"))
	require.NotNil(t, first)
	assert.Equal(t, want, *first)
	assert.Nil(t, date.NextFireTime(first, *first), "fires once after a microsecond round trip")

	interval := mustParse(t, TypeInterval, `{"period": 1.0000005, "start": "2024-01-01T00:00:00.0000009Z"}`)
	it := interval.(*IntervalTrigger)
	assert.Equal(t, time.Second, it.Period)
	assert.Equal(t, ts(t, "2024-01-01T00:00:00Z"), *it.Start)

	cron, err := NewCron(CronFields{Minute: "*/5", End: tsPtr(t, "2024-01-01T01:00:00.0000007Z")})
	require.NoError(t, err)
	assert.Equal(t, ts(t, "2024-01-01T01:00:00Z"), *cron.End)

	_, err = NewInterval(500*time.Nanosecond, nil, nil)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestEqual(t *testing.T) {
	a := Spec{Type: TypeCron, Value: json.RawMessage(`{"hour":"9","minute":"0"}`)}
	b := Spec{Type: TypeCron, Value: json.RawMessage(`{ "minute": "0", "hour": "9" }`)}
	c := Spec{Type: TypeCron, Value: json.RawMessage(`{"hour":"10"}`)}

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.False(t, Equal(a, Spec{Type: TypeInterval, Value: a.Value}))
}
