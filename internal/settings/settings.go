package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds barctl's own configuration. Values come from the environment;
// command-line flags override them in main.
type Settings struct {
	// Waybar configuration directory. Empty means auto-detect.
	ConfigDir string

	// Directory for barctl's own data (config snapshots)
	DataDir string

	// Name of the bar process to signal
	ProcessName string

	// How long restart waits for the old process to exit
	RestartGrace time.Duration

	// Quiet period before watch mode reloads after a change
	WatchDebounce time.Duration

	// Disable styled output even on a terminal
	NoColor bool
}

// Load reads settings from environment variables. Call LoadEnvFile first to
// pick up a barctl.env file; real environment variables take precedence.
func Load() (*Settings, error) {
	dataDir := getEnv("BARCTL_DATA_DIR", "")
	if dataDir == "" {
		d, err := DefaultDataDir()
		if err != nil {
			return nil, fmt.Errorf("determining data directory: %w", err)
		}
		dataDir = d
	}

	return &Settings{
		ConfigDir:     getEnv("BARCTL_CONFIG_DIR", ""),
		DataDir:       dataDir,
		ProcessName:   getEnv("BARCTL_PROCESS", "waybar"),
		RestartGrace:  getEnvDuration("BARCTL_RESTART_GRACE", 2*time.Second),
		WatchDebounce: getEnvDuration("BARCTL_WATCH_DEBOUNCE", 300*time.Millisecond),
		NoColor:       getEnvBool("BARCTL_NO_COLOR", os.Getenv("NO_COLOR") != ""),
	}, nil
}

// LoadEnvFile loads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// DefaultEnvFile returns the location of the optional barctl.env file.
func DefaultEnvFile() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "barctl", "barctl.env"), nil
}

// DefaultDataDir returns the default directory for barctl's data
func DefaultDataDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "barctl"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "barctl"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "barctl"), nil
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d >= 0 {
			return d
		}
	}
	return def
}
