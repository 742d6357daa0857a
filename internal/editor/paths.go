package editor

import (
	"os"
	"path/filepath"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
)

const (
	configFileName       = "config.jsonc"
	legacyConfigFileName = "config"
	styleFileName        = "style.css"
)

// Paths locates Waybar's configuration files
type Paths struct {
	ConfigDir  string `json:"config_dir"`
	ConfigFile string `json:"config_file"`
	StyleFile  string `json:"style_file"`
}

// PathsIn returns the standard file locations inside dir
func PathsIn(dir string) Paths {
	return Paths{
		ConfigDir:  dir,
		ConfigFile: filepath.Join(dir, configFileName),
		StyleFile:  filepath.Join(dir, styleFileName),
	}
}

// DefaultConfigDir returns Waybar's configuration directory:
// $XDG_CONFIG_HOME/waybar, falling back to $HOME/.config/waybar.
func DefaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "waybar"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", apperr.New(apperr.Config, "HOME environment variable not set")
	}
	return filepath.Join(home, ".config", "waybar"), nil
}

// DefaultPaths returns the standard locations without checking they exist
func DefaultPaths() (Paths, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return Paths{}, err
	}
	return PathsIn(dir), nil
}

// DetectConfigFile returns the first existing config file in dir. Waybar reads
// config.jsonc and falls back to config.
func DetectConfigFile(dir string) (string, bool) {
	for _, name := range []string{configFileName, legacyConfigFileName} {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// Detect returns the paths in dir, or in the default directory when dir is
// empty. The directory must exist; the config file is whichever of the known
// names is present.
func Detect(dir string) (Paths, error) {
	if dir == "" {
		d, err := DefaultConfigDir()
		if err != nil {
			return Paths{}, err
		}
		dir = d
	}

	paths := PathsIn(dir)
	if !paths.ConfigExists() {
		return Paths{}, apperr.New(apperr.NotFound, "Waybar config directory not found at: %s", dir)
	}

	if found, ok := DetectConfigFile(dir); ok {
		paths.ConfigFile = found
	}
	return paths, nil
}

// ConfigExists reports whether the configuration directory exists
func (p Paths) ConfigExists() bool {
	info, err := os.Stat(p.ConfigDir)
	return err == nil && info.IsDir()
}

// EnsureConfigDir creates the configuration directory if needed
func (p Paths) EnsureConfigDir() error {
	if err := os.MkdirAll(p.ConfigDir, 0755); err != nil {
		return apperr.FromOS("creating config directory", p.ConfigDir, err)
	}
	return nil
}
