package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.NotEmpty(t, info.CommitHash)
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "v0.3.0", CommitHash: "0123456789abcdef", BuildTime: "2026-10-01T12:00:00Z"}
	assert.Equal(t, "0123456", info.Short())
	assert.Equal(t, "cadence v0.3.0 (commit 0123456, built 2026-10-01T12:00:00Z)", info.String())

	assert.Equal(t, "dev", Info{CommitHash: "dev"}.Short())
}
