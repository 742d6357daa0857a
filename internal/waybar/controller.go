package waybar

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
)

// Status describes the bar process at one point in time
type Status struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	PIDs    []int  `json:"pids"`
}

// Controller starts, stops and reloads one named process
type Controller struct {
	name     string
	args     []string
	probe    ProcessProbe
	signaler ProcessSignaler

	// grace is how long Stop waits before escalating to SIGKILL
	grace        time.Duration
	pollInterval time.Duration
}

// NewController creates a controller for the process called name
func NewController(name string, probe ProcessProbe, signaler ProcessSignaler) *Controller {
	return &Controller{
		name:         name,
		probe:        probe,
		signaler:     signaler,
		grace:        2 * time.Second,
		pollInterval: 100 * time.Millisecond,
	}
}

// SetGracePeriod sets how long a stop may take before the process is killed
func (c *Controller) SetGracePeriod(d time.Duration) {
	c.grace = d
}

// SetArgs sets the arguments used when starting the process
func (c *Controller) SetArgs(args ...string) {
	c.args = args
}

// Name returns the controlled process name
func (c *Controller) Name() string {
	return c.name
}

// PIDs returns the IDs of running instances
func (c *Controller) PIDs(ctx context.Context) ([]int, error) {
	return c.probe.PIDs(ctx, c.name)
}

// IsRunning reports whether at least one instance is running
func (c *Controller) IsRunning(ctx context.Context) (bool, error) {
	pids, err := c.PIDs(ctx)
	if err != nil {
		return false, err
	}
	return len(pids) > 0, nil
}

// Status returns the current process state
func (c *Controller) Status(ctx context.Context) (Status, error) {
	pids, err := c.PIDs(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Name: c.name, Running: len(pids) > 0, PIDs: pids}, nil
}

// Reload asks every running instance to re-read its configuration. It is not
// an error when nothing is running.
func (c *Controller) Reload(ctx context.Context) error {
	pids, err := c.PIDs(ctx)
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		klog.V(1).Infof("%s is not running, nothing to reload", c.name)
		return nil
	}

	if err := c.signalAll(pids, ReloadSignal); err != nil {
		return fmt.Errorf("reloading %s: %w", c.name, err)
	}
	klog.V(1).Infof("Sent %v to %s %v", ReloadSignal, c.name, pids)
	return nil
}

// Start launches the process unless it is already running
func (c *Controller) Start(ctx context.Context) error {
	running, err := c.IsRunning(ctx)
	if err != nil {
		return err
	}
	if running {
		klog.V(1).Infof("%s already running", c.name)
		return nil
	}

	if err := c.signaler.Start(c.name, c.args...); err != nil {
		return err
	}
	klog.InfoS("Started process", "name", c.name)
	return nil
}

// Stop terminates every running instance. Processes still alive after the
// grace period are killed.
func (c *Controller) Stop(ctx context.Context) error {
	pids, err := c.PIDs(ctx)
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		return nil
	}

	if err := c.signalAll(pids, syscall.SIGTERM); err != nil {
		return fmt.Errorf("stopping %s: %w", c.name, err)
	}

	stopped, err := c.waitForExit(ctx)
	if err != nil {
		return err
	}
	if stopped {
		klog.InfoS("Stopped process", "name", c.name, "pids", pids)
		return nil
	}

	// Graceful shutdown timed out
	remaining, err := c.PIDs(ctx)
	if err != nil {
		return err
	}
	klog.Warningf("%s did not exit within %s, killing %v", c.name, c.grace, remaining)
	if err := c.signalAll(remaining, syscall.SIGKILL); err != nil {
		return fmt.Errorf("killing %s: %w", c.name, err)
	}

	stopped, err = c.waitForExit(ctx)
	if err != nil {
		return err
	}
	if !stopped {
		return apperr.New(apperr.Internal, "%s is still running after SIGKILL", c.name)
	}
	return nil
}

// Restart stops the process, waits for it to exit and starts it again
func (c *Controller) Restart(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	return c.Start(ctx)
}

// waitForExit polls until no instance is left or the grace period ends
func (c *Controller) waitForExit(ctx context.Context) (bool, error) {
	deadline := time.NewTimer(c.grace)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		running, err := c.IsRunning(ctx)
		if err != nil {
			return false, err
		}
		if !running {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
	}
}

func (c *Controller) signalAll(pids []int, sig syscall.Signal) error {
	for _, pid := range pids {
		if err := c.signaler.Signal(pid, sig); err != nil {
			return err
		}
	}
	return nil
}
