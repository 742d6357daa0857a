package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
	"k8s.io/klog/v2"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
	"github.com/WhyIsSandwich/barctl/internal/compositor"
	"github.com/WhyIsSandwich/barctl/internal/editor"
	"github.com/WhyIsSandwich/barctl/internal/jsonc"
	"github.com/WhyIsSandwich/barctl/internal/settings"
	"github.com/WhyIsSandwich/barctl/internal/waybar"
	"github.com/WhyIsSandwich/barctl/internal/watch"
)

var errUnknownCommand = errors.New("unknown command")

type app struct {
	settings *settings.Settings
	editor   *editor.Editor
	out      *printer
	logFile  string
	barArgs  []string
	yes      bool
}

func newApp(s *settings.Settings, logFile string, yes bool) *app {
	return &app{
		settings: s,
		editor:   editor.New(s.DataDir),
		out:      newPrinter(s.NoColor),
		logFile:  logFile,
		yes:      yes,
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "paths":
		return a.handlePaths()
	case "load":
		return a.handleLoad(args)
	case "save":
		return a.handleSave(args)
	case "load-css":
		return a.handleLoadCSS(args)
	case "save-css":
		return a.handleSaveCSS(args)
	case "strip":
		return a.handleStrip(args)
	case "validate":
		return a.handleValidate(args)
	case "backup":
		return a.handleBackup(args)
	case "backups":
		return a.handleBackups()
	case "restore":
		return a.handleRestore(args)
	case "snapshot":
		return a.handleSnapshot()
	case "snapshots":
		return a.handleSnapshots()
	case "restore-snapshot":
		return a.handleRestoreSnapshot(args)
	case "reload", "start", "stop", "restart", "status":
		return a.handleProcess(ctx, command)
	case "compositor":
		return a.handleCompositor(ctx, args)
	case "watch":
		return a.handleWatch(ctx)
	default:
		return errUnknownCommand
	}
}

func (a *app) paths() (editor.Paths, error) {
	paths, err := editor.Detect(a.settings.ConfigDir)
	if err != nil {
		return editor.Paths{}, fmt.Errorf("%w\nHint: Set -config-dir or BARCTL_CONFIG_DIR", err)
	}
	return paths, nil
}

// target returns args[i] when present, otherwise the detected path picked by pick
func (a *app) target(args []string, i int, pick func(editor.Paths) string) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	paths, err := a.paths()
	if err != nil {
		return "", err
	}
	return pick(paths), nil
}

func configFile(p editor.Paths) string { return p.ConfigFile }
func styleFile(p editor.Paths) string  { return p.StyleFile }

// readSource reads a file, or stdin when src is "-"
func readSource(src string) (string, error) {
	if src == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", apperr.Wrap(apperr.IO, "reading stdin", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", apperr.FromOS("reading", src, err)
	}
	return string(data), nil
}

func (a *app) handlePaths() error {
	paths, err := a.paths()
	if err != nil {
		return err
	}
	a.out.Title("Waybar paths")
	a.out.Field("directory", paths.ConfigDir)
	a.out.Field("config", paths.ConfigFile)
	a.out.Field("style", paths.StyleFile)
	a.out.Field("snapshots", a.editor.SnapshotDir())
	return nil
}

func (a *app) handleLoad(args []string) error {
	path, err := a.target(args, 0, configFile)
	if err != nil {
		return err
	}
	cfg, err := a.editor.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("%w\nHint: Use 'barctl validate' for the error position", err)
	}
	fmt.Print(cfg.Content)
	if !strings.HasSuffix(cfg.Content, "\n") {
		fmt.Println()
	}
	return nil
}

func (a *app) handleSave(args []string) error {
	if len(args) < 1 {
		return apperr.New(apperr.Validation, "source file is required\nUsage: barctl save <src|-> [path]")
	}
	content, err := readSource(args[0])
	if err != nil {
		return err
	}
	path, err := a.target(args, 1, configFile)
	if err != nil {
		return err
	}

	backupPath, err := a.editor.SaveConfig(path, content)
	if err != nil {
		if apperr.Is(err, apperr.Validation) {
			return fmt.Errorf("%w\nHint: Saved configs must be plain JSON without comments or trailing commas", err)
		}
		return err
	}
	a.reportSave(path, backupPath)
	return nil
}

func (a *app) handleLoadCSS(args []string) error {
	path, err := a.target(args, 0, styleFile)
	if err != nil {
		return err
	}
	css, err := a.editor.LoadCSS(path)
	if err != nil {
		return err
	}
	fmt.Print(css)
	return nil
}

func (a *app) handleSaveCSS(args []string) error {
	if len(args) < 1 {
		return apperr.New(apperr.Validation, "source file is required\nUsage: barctl save-css <src|-> [path]")
	}
	content, err := readSource(args[0])
	if err != nil {
		return err
	}
	path, err := a.target(args, 1, styleFile)
	if err != nil {
		return err
	}

	backupPath, err := a.editor.SaveCSS(path, content)
	if err != nil {
		return err
	}
	a.reportSave(path, backupPath)
	return nil
}

func (a *app) reportSave(path, backupPath string) {
	a.out.Success("Saved %s", path)
	if backupPath != "" {
		a.out.Muted("Backup: %s", backupPath)
	}
}

func (a *app) handleStrip(args []string) error {
	path, err := a.target(args, 0, configFile)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.FromOS("reading", path, err)
	}
	os.Stdout.Write(jsonc.StripComments(data))
	return nil
}

func (a *app) handleValidate(args []string) error {
	path, err := a.target(args, 0, configFile)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.FromOS("reading", path, err)
	}
	if err := jsonc.ValidateJSONC(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	a.out.Success("%s is valid", path)
	return nil
}

func (a *app) handleBackup(args []string) error {
	path, err := a.target(args, 0, configFile)
	if err != nil {
		return err
	}
	backupPath, err := a.editor.Backup(path)
	if err != nil {
		return err
	}
	a.out.Success("Backed up %s", path)
	a.out.Muted("Backup: %s", backupPath)
	return nil
}

func (a *app) handleBackups() error {
	paths, err := a.paths()
	if err != nil {
		return err
	}
	backups, err := a.editor.ListBackups(paths.ConfigDir)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		a.out.Muted("No backups in %s", paths.ConfigDir)
		return nil
	}
	a.out.Title("Backups in %s (%d)", paths.ConfigDir, len(backups))
	for _, b := range backups {
		a.out.Item(b)
	}
	return nil
}

func (a *app) handleRestore(args []string) error {
	if len(args) < 1 {
		return apperr.New(apperr.Validation, "backup name is required\nUsage: barctl restore <backup> [target]")
	}

	backupPath := args[0]
	if !filepath.IsAbs(backupPath) && !strings.ContainsRune(backupPath, filepath.Separator) {
		paths, err := a.paths()
		if err != nil {
			return err
		}
		backupPath = editor.ResolveBackup(paths.ConfigDir, backupPath)
	}

	var target string
	if len(args) > 1 {
		target = args[1]
	} else {
		t, err := editor.TargetFor(backupPath)
		if err != nil {
			return err
		}
		target = t
	}

	ok, err := a.confirm(fmt.Sprintf("Restore %s over %s?", filepath.Base(backupPath), target))
	if err != nil {
		return err
	}
	if !ok {
		a.out.Muted("Restore cancelled")
		return nil
	}

	undo, err := a.editor.RestoreBackup(backupPath, target)
	if err != nil {
		return err
	}
	a.out.Success("Restored %s", target)
	if undo != "" {
		a.out.Muted("Previous version saved as %s", undo)
	}
	return nil
}

// confirm asks a yes/no question on an interactive terminal. Without a
// terminal, or with -yes, the answer is yes.
func (a *app) confirm(question string) (bool, error) {
	if a.yes || !term.IsTerminal(int(os.Stdin.Fd())) {
		return true, nil
	}

	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, apperr.Wrap(apperr.IO, "reading answer", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func (a *app) handleSnapshot() error {
	paths, err := a.paths()
	if err != nil {
		return err
	}
	snap, err := a.editor.Snapshot(paths.ConfigDir)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	a.out.Success("Snapshot written to %s", snap)
	return nil
}

func (a *app) handleSnapshots() error {
	snaps, err := a.editor.ListSnapshots()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		a.out.Muted("No snapshots in %s", a.editor.SnapshotDir())
		return nil
	}
	a.out.Title("Snapshots in %s (%d)", a.editor.SnapshotDir(), len(snaps))
	for _, s := range snaps {
		a.out.Item(s)
	}
	return nil
}

func (a *app) handleRestoreSnapshot(args []string) error {
	if len(args) < 1 {
		return apperr.New(apperr.Validation, "snapshot name is required\nUsage: barctl restore-snapshot <name>\nHint: Use 'barctl snapshots' to list them")
	}
	paths, err := a.paths()
	if err != nil {
		return err
	}

	ok, err := a.confirm(fmt.Sprintf("Restore %s into %s?", args[0], paths.ConfigDir))
	if err != nil {
		return err
	}
	if !ok {
		a.out.Muted("Restore cancelled")
		return nil
	}

	restored, err := a.editor.RestoreSnapshot(args[0], paths.ConfigDir)
	if err != nil {
		return err
	}
	a.out.Success("Restored %d files into %s", len(restored), paths.ConfigDir)
	for _, f := range restored {
		a.out.Item(f)
	}
	return nil
}

func (a *app) controller() *waybar.Controller {
	c := waybar.NewController(a.settings.ProcessName, waybar.PgrepProbe{Exact: true}, waybar.UnixSignaler{LogFile: a.logFile})
	c.SetGracePeriod(a.settings.RestartGrace)
	c.SetArgs(a.barArgs...)
	return c
}

func (a *app) handleProcess(ctx context.Context, command string) error {
	c := a.controller()

	switch command {
	case "reload":
		running, err := c.IsRunning(ctx)
		if err != nil {
			return err
		}
		if !running {
			a.out.Warn("%s is not running", c.Name())
			return nil
		}
		if err := c.Reload(ctx); err != nil {
			return err
		}
		a.out.Success("Reloaded %s", c.Name())
	case "start":
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("%w\nHint: Check that %s is installed and on PATH", err, c.Name())
		}
		a.out.Success("Started %s", c.Name())
	case "stop":
		if err := c.Stop(ctx); err != nil {
			return err
		}
		a.out.Success("Stopped %s", c.Name())
	case "restart":
		if err := c.Restart(ctx); err != nil {
			return err
		}
		a.out.Success("Restarted %s", c.Name())
	case "status":
		status, err := c.Status(ctx)
		if err != nil {
			return err
		}
		a.out.Field("process", status.Name)
		if status.Running {
			a.out.Field("status", a.out.render(a.out.success, "running"))
			a.out.Field("pids", status.PIDs)
		} else {
			a.out.Field("status", a.out.render(a.out.warn, "stopped"))
		}
	}
	return nil
}

func (a *app) handleCompositor(ctx context.Context, args []string) error {
	d := compositor.NewDetector(waybar.PgrepProbe{Exact: true})

	if len(args) > 0 {
		running, err := d.IsRunning(ctx, args[0])
		if err != nil {
			return err
		}
		if running {
			a.out.Success("%s is running", args[0])
		} else {
			a.out.Warn("%s is not running", args[0])
		}
		return nil
	}

	info, err := d.Info(ctx)
	if err != nil {
		return err
	}
	a.out.Field("compositor", info.Name)
	if info.Version != "" {
		a.out.Field("version", info.Version)
	}
	if info.SemVer != "" {
		a.out.Field("semver", info.SemVer)
	}
	a.out.Field("session", info.SessionType)
	return nil
}

func (a *app) handleWatch(ctx context.Context) error {
	paths, err := a.paths()
	if err != nil {
		return err
	}
	c := a.controller()
	configPath, err := filepath.Abs(paths.ConfigFile)
	if err != nil {
		return apperr.Wrap(apperr.IO, "resolving "+paths.ConfigFile, err)
	}
	configTargets := map[string]bool{configPath: true}
	if resolved, err := filepath.EvalSymlinks(configPath); err == nil {
		configTargets[resolved] = true
	}

	w, err := watch.New([]string{paths.ConfigFile, paths.StyleFile}, a.settings.WatchDebounce,
		func(ctx context.Context, changed []string) error {
			for _, f := range changed {
				if !configTargets[f] {
					continue
				}
				data, err := os.ReadFile(f)
				if err != nil {
					return apperr.FromOS("reading", f, err)
				}
				if err := jsonc.ValidateJSONC(data); err != nil {
					a.out.Warn("Not reloading, %s is invalid: %v", f, err)
					return nil
				}
			}
			if err := c.Reload(ctx); err != nil {
				return err
			}
			a.out.Success("Reloaded %s after changes to %s", c.Name(), strings.Join(changed, ", "))
			return nil
		})
	if err != nil {
		return err
	}

	a.out.Title("Watching %s (press Ctrl+C to stop)", paths.ConfigDir)
	for _, f := range w.Files() {
		a.out.Item(f)
	}
	if err := w.Run(ctx); err != nil {
		return err
	}
	klog.V(1).Info("Watch stopped")
	return nil
}
