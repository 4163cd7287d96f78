package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cadence/errors"
)

func TestParseShorthand(t *testing.T) {
	tests := []struct {
		input    string
		wantType Type
		check    func(t *testing.T, tr Trigger)
	}{
		{"*/5 * * * *", TypeCron, nil},
		{"@hourly", TypeCron, nil},
		{"cron:0 9 * * 1-5", TypeCron, nil},
		{"55m", TypeInterval, func(t *testing.T, tr Trigger) {
			assert.Equal(t, 55*time.Minute, tr.(*IntervalTrigger).Period)
		}},
		{"02:30", TypeInterval, func(t *testing.T, tr Trigger) {
			assert.Equal(t, 150*time.Minute, tr.(*IntervalTrigger).Period)
		}},
		{"every:1h30m", TypeInterval, func(t *testing.T, tr Trigger) {
			assert.Equal(t, 90*time.Minute, tr.(*IntervalTrigger).Period)
		}},
		{"2026-11-01T09:00:00Z", TypeDate, func(t *testing.T, tr Trigger) {
			assert.Equal(t, time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC), tr.(*DateTrigger).RunDate)
		}},
		{"at:2026-11-01 09:00", TypeDate, nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec, err := ParseShorthand(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, spec.Type)

			tr, err := Parse(spec)
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, tr)
			}
		})
	}
}

func TestParseShorthand_Errors(t *testing.T) {
	for _, input := range []string{"", "soon", "cron:", "every:0s", "00:00", "00:75", "61 * * * *"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseShorthand(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfiguration), "got %v", err)
		})
	}
}
