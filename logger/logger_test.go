package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/cadence/sym"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			require.NoError(t, Initialize(tt.jsonOutput))
			assert.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Cleanup()
		})
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitializeWithOptions(Options{JSON: true, Output: &buf}))
	t.Cleanup(func() { _ = Initialize(false) })

	PulseInfow("Job submitted", FieldJobID, "report.daily")
	Cleanup()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Job submitted", entry["msg"])
	assert.Equal(t, "report.daily", entry[FieldJobID])
	assert.Equal(t, sym.Pulse, entry[FieldSymbol])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitializeWithOptions(Options{JSON: true, Level: zapcore.WarnLevel, Output: &buf}))
	t.Cleanup(func() { _ = Initialize(false) })

	Infow("hidden")
	Warnw("shown")
	Cleanup()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.log")
	var buf bytes.Buffer
	require.NoError(t, InitializeWithOptions(Options{Output: &buf, File: path}))
	t.Cleanup(func() { _ = Initialize(false) })

	Errorw("store unavailable", FieldError, "disk full")
	Cleanup()

	assert.FileExists(t, path)
	assert.True(t, strings.Contains(buf.String(), "store unavailable"))
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(5))
	assert.Equal(t, "Info (-v)", LevelName(1))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := ComponentLogger("test")
	assert.Same(t, l, OrNop(l))
}
