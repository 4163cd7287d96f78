package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWithHint(t *testing.T) {
	err := WithHint(New("error"), "try this fix")

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "try this fix", hints[0])
}

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"configuration", NewConfigurationError("bad field %q", "hour"), ErrConfiguration},
		{"conflict", NewConflictError("job %s exists", "a"), ErrConflict},
		{"not found", NewNotFoundError("job %s", "a"), ErrNotFound},
		{"corrupt", WrapCorruptState(New("bad json"), "a"), ErrCorruptState},
		{"store io", WrapStoreIO(New("disk I/O error"), "get due jobs"), ErrStoreIO},
		{"execution", NewExecutionError(New("boom")), ErrExecution},
		{"execution from panic value", NewExecutionError("boom"), ErrExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.True(t, Is(tt.err, tt.sentinel))
		})
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := NewConflictError("job %s exists", "report")
	wrapped := Wrap(Wrap(err, "add job"), "register")

	assert.True(t, IsConflictError(wrapped))
	assert.False(t, IsNotFoundError(wrapped))
	assert.Contains(t, wrapped.Error(), "job report exists")
}

func TestWrapStoreIO_KeepsExistingClassification(t *testing.T) {
	notFound := NewNotFoundError("job %s", "gone")
	wrapped := WrapStoreIO(notFound, "update job")

	assert.True(t, IsNotFoundError(wrapped))
	assert.False(t, IsStoreIOError(wrapped))
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, WrapStoreIO(nil, "ctx"))
	assert.Nil(t, WrapConfiguration(nil, "ctx"))
	assert.Nil(t, WrapCorruptState(nil, "id"))
	assert.Nil(t, NewExecutionError(nil))
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsStoreIOError(nil))
}

func TestConfigurationErrorFormatting(t *testing.T) {
	err := WrapConfiguration(fmt.Errorf("step must be positive"), "cron field minute")
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, "cron field minute: step must be positive", err.Error())
}
