// Package waybar controls the running status bar process.
//
// Processes are found and signalled through the ProcessProbe and
// ProcessSignaler interfaces so the control logic can be exercised without
// touching real processes.
package waybar

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
)

const (
	// ProcessName is the executable and process name of the bar
	ProcessName = "waybar"

	// ReloadSignal makes Waybar re-read its config and style files
	ReloadSignal = unix.SIGUSR2
)

// ProcessProbe finds running processes by name
type ProcessProbe interface {
	PIDs(ctx context.Context, name string) ([]int, error)
}

// ProcessSignaler delivers signals to processes and launches new ones
type ProcessSignaler interface {
	Signal(pid int, sig syscall.Signal) error
	Start(name string, args ...string) error
}

// PgrepProbe lists processes with pgrep(1)
type PgrepProbe struct {
	// Exact matches the whole process name (pgrep -x)
	Exact bool
}

// PIDs returns the IDs of processes named name. No match is not an error.
func (p PgrepProbe) PIDs(ctx context.Context, name string) ([]int, error) {
	args := []string{name}
	if p.Exact {
		args = []string{"-x", name}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "pgrep", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		// pgrep exits 1 when nothing matched
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &apperr.Error{Kind: apperr.Internal, Op: "running pgrep", Msg: msg, Err: err}
	}

	return parsePIDs(stdout.String()), nil
}

func parsePIDs(out string) []int {
	var pids []int
	for _, line := range strings.Split(out, "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

// UnixSignaler signals processes with kill(2) and launches detached children
type UnixSignaler struct {
	// LogFile receives the started process's stdout and stderr. Empty
	// discards them.
	LogFile string
}

// Signal sends sig to pid. A process that has already exited is ignored.
func (s UnixSignaler) Signal(pid int, sig syscall.Signal) error {
	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		if errors.Is(err, unix.EPERM) {
			return &apperr.Error{Kind: apperr.PermissionDenied, Op: "signalling pid " + strconv.Itoa(pid), Err: err}
		}
		return &apperr.Error{Kind: apperr.Internal, Op: "signalling pid " + strconv.Itoa(pid), Err: err}
	}
	return nil
}

// Start launches name in its own session so it outlives barctl
func (s UnixSignaler) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if s.LogFile != "" {
		logFile, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return apperr.FromOS("opening log file", s.LogFile, err)
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return &apperr.Error{Kind: apperr.Internal, Op: "starting " + name, Err: err}
	}
	return cmd.Process.Release()
}
