package sched

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load("")
	assert.Equal(t, 4, cfg.CPUs)
	assert.Equal(t, 16*time.Millisecond, cfg.TargetLatency)
	assert.Equal(t, 750*time.Microsecond, cfg.MinimumGranularity)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg := Load("/does/not/exist.yml")
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoadOverridesAndClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	doc := `
cpus: 200
target_latency: 1us
minimum_granularity: 2ms
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg := Load(path)
	assert.Equal(t, 64, cfg.CPUs, "CPU count clamps to one mask word")
	assert.Equal(t, 2*time.Millisecond, cfg.MinimumGranularity)
	// Latency below the granularity is meaningless; it clamps up.
	assert.Equal(t, cfg.MinimumGranularity, cfg.TargetLatency)
}
