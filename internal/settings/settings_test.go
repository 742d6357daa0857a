package settings

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("BARCTL_CONFIG_DIR", "/tmp/waybar")
	t.Setenv("BARCTL_DATA_DIR", "/tmp/barctl")
	t.Setenv("BARCTL_PROCESS", "waybar-dev")
	t.Setenv("BARCTL_RESTART_GRACE", "5s")
	t.Setenv("BARCTL_WATCH_DEBOUNCE", "bogus")
	t.Setenv("BARCTL_NO_COLOR", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/waybar", cfg.ConfigDir)
	assert.Equal(t, "/tmp/barctl", cfg.DataDir)
	assert.Equal(t, "waybar-dev", cfg.ProcessName)
	assert.Equal(t, 5*time.Second, cfg.RestartGrace)
	assert.Equal(t, 300*time.Millisecond, cfg.WatchDebounce)
	assert.True(t, cfg.NoColor)
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"BARCTL_CONFIG_DIR", "BARCTL_PROCESS", "BARCTL_RESTART_GRACE", "BARCTL_NO_COLOR", "NO_COLOR"} {
		t.Setenv(k, "")
	}
	t.Setenv("BARCTL_DATA_DIR", "")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.ConfigDir)
	assert.Equal(t, "waybar", cfg.ProcessName)
	assert.Equal(t, 2*time.Second, cfg.RestartGrace)
	assert.False(t, cfg.NoColor)
	if runtime.GOOS == "linux" {
		assert.Equal(t, filepath.Join("/xdg/data", "barctl"), cfg.DataDir)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "barctl.env")
	require.NoError(t, os.WriteFile(path, []byte("BARCTL_TEST_FROM_FILE=file\nBARCTL_TEST_PRESET=file\n"), 0644))

	t.Setenv("BARCTL_TEST_PRESET", "env")
	t.Setenv("BARCTL_TEST_FROM_FILE", "")
	os.Unsetenv("BARCTL_TEST_FROM_FILE")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "file", os.Getenv("BARCTL_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("BARCTL_TEST_PRESET"))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestGetEnvDuration(t *testing.T) {
	key := "BARCTL_TEST_DURATION"

	t.Setenv(key, "150ms")
	assert.Equal(t, 150*time.Millisecond, getEnvDuration(key, time.Second))

	t.Setenv(key, "-1s")
	assert.Equal(t, time.Second, getEnvDuration(key, time.Second))

	t.Setenv(key, "")
	assert.Equal(t, time.Second, getEnvDuration(key, time.Second))
}

func TestGetEnvBool(t *testing.T) {
	key := "BARCTL_TEST_BOOL"

	t.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	t.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))
}
