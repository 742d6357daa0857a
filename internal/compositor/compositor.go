// Package compositor detects which Wayland compositor the bar runs under.
package compositor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/blang/semver"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
)

// Compositor is one of the supported Wayland compositors
type Compositor int

const (
	Unknown Compositor = iota
	Hyprland
	Sway
	River
	Dwl
	Niri
)

// Known lists the supported compositors in detection priority order
var Known = []Compositor{Hyprland, Sway, River, Dwl, Niri}

func (c Compositor) String() string {
	switch c {
	case Hyprland:
		return "hyprland"
	case Sway:
		return "sway"
	case River:
		return "river"
	case Dwl:
		return "dwl"
	case Niri:
		return "niri"
	default:
		return "unknown"
	}
}

// Parse maps a name to a compositor, ignoring case. Unrecognized names
// yield Unknown.
func Parse(s string) Compositor {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Known {
		if c.String() == name {
			return c
		}
	}
	return Unknown
}

// IsKnown reports whether c is a supported compositor
func (c Compositor) IsKnown() bool {
	return c != Unknown
}

// ProcessName returns the executable name of the compositor
func (c Compositor) ProcessName() string {
	if c == Hyprland {
		return "Hyprland"
	}
	if c == Unknown {
		return ""
	}
	return c.String()
}

// Info describes the compositor of the current session
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	SemVer      string `json:"semver,omitempty"`
	SessionType string `json:"session_type"`
}

// Probe finds running processes by exact name
type Probe interface {
	PIDs(ctx context.Context, name string) ([]int, error)
}

// Runner runs a command and returns its standard output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Detector inspects the environment and the process list
type Detector struct {
	Env   func(string) (string, bool)
	Probe Probe
	Run   Runner
}

// NewDetector creates a detector for the current process environment
func NewDetector(probe Probe) *Detector {
	return &Detector{Env: os.LookupEnv, Probe: probe, Run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// IsWayland reports whether the session is a Wayland session
func (d *Detector) IsWayland() bool {
	_, ok := d.Env("WAYLAND_DISPLAY")
	return ok
}

// Detect returns the running compositor. Environment hints are checked
// before the process list. A non-Wayland session is always Unknown.
func (d *Detector) Detect(ctx context.Context) (Compositor, error) {
	if !d.IsWayland() {
		return Unknown, nil
	}

	if desktop, ok := d.Env("XDG_CURRENT_DESKTOP"); ok {
		for _, entry := range strings.Split(desktop, ":") {
			if c := Parse(entry); c.IsKnown() {
				klog.V(2).Infof("Compositor %s from XDG_CURRENT_DESKTOP", c)
				return c, nil
			}
		}
	}

	if name, ok := d.Env("WAYLAND_COMPOSITOR"); ok {
		if c := Parse(name); c.IsKnown() {
			klog.V(2).Infof("Compositor %s from WAYLAND_COMPOSITOR", c)
			return c, nil
		}
	}

	if d.Probe == nil {
		return Unknown, nil
	}
	return d.detectFromProcesses(ctx)
}

// detectFromProcesses probes every known compositor concurrently. The first
// running one in priority order wins.
func (d *Detector) detectFromProcesses(ctx context.Context) (Compositor, error) {
	running := make([]bool, len(Known))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, c := range Known {
		i, c := i, c
		eg.Go(func() error {
			pids, err := d.Probe.PIDs(egCtx, c.ProcessName())
			if err != nil {
				return err
			}
			running[i] = len(pids) > 0
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if ctx.Err() != nil {
			return Unknown, ctx.Err()
		}
		// Process detection is best effort
		klog.V(1).Infof("Process probe failed: %v", err)
		return Unknown, nil
	}

	for i, c := range Known {
		if running[i] {
			klog.V(2).Infof("Compositor %s from process list", c)
			return c, nil
		}
	}
	return Unknown, nil
}

// Info returns the detected compositor with its version and session type.
// A version that cannot be read is left empty.
func (d *Detector) Info(ctx context.Context) (Info, error) {
	c, err := d.Detect(ctx)
	if err != nil {
		return Info{}, err
	}

	info := Info{Name: c.String(), SessionType: "x11"}
	if d.IsWayland() {
		info.SessionType = "wayland"
	}

	if c.IsKnown() && d.Run != nil {
		version, err := d.Version(ctx, c)
		if err != nil {
			klog.V(1).Infof("Could not read %s version: %v", c, err)
		} else {
			info.Version = version
			if v, ok := normalizeVersion(version); ok {
				info.SemVer = v.String()
			}
		}
	}
	return info, nil
}

// Version runs `<compositor> --version` and returns the first output line
func (d *Detector) Version(ctx context.Context, c Compositor) (string, error) {
	if !c.IsKnown() {
		return "", apperr.New(apperr.NotFound, "unknown compositor")
	}

	out, err := d.Run(ctx, c.ProcessName(), "--version")
	if err != nil {
		return "", &apperr.Error{Kind: apperr.Internal, Op: "getting " + c.ProcessName() + " version", Err: err}
	}

	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", apperr.New(apperr.Internal, "%s printed no version", c.ProcessName())
	}
	return line, nil
}

// IsRunning reports whether the named compositor is the one detected
func (d *Detector) IsRunning(ctx context.Context, name string) (bool, error) {
	want := Parse(name)
	if !want.IsKnown() {
		return false, nil
	}
	got, err := d.Detect(ctx)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

var versionPattern = regexp.MustCompile(`v?(\d+)\.(\d+)(?:\.(\d+))?`)

// normalizeVersion extracts the first dotted version from a --version line
// and completes a missing patch number
func normalizeVersion(line string) (semver.Version, bool) {
	m := versionPattern.FindStringSubmatch(line)
	if m == nil {
		return semver.Version{}, false
	}
	s := m[1] + "." + m[2]
	if m[3] != "" {
		s += "." + m[3]
	} else {
		s += ".0"
	}
	v, err := semver.Parse(s)
	if err != nil {
		return semver.Version{}, false
	}
	return v, true
}
