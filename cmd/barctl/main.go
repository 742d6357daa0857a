package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/WhyIsSandwich/barctl/internal/settings"
)

const version = "0.1.0"

func main() {
	klog.InitFlags(nil)

	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configDir   = flag.String("config-dir", "", "Waybar configuration directory (default: $XDG_CONFIG_HOME/waybar)")
		dataDir     = flag.String("data-dir", "", "Directory for snapshots (default: platform-specific)")
		process     = flag.String("process", "", "Name of the bar process (default: waybar)")
		logFile     = flag.String("log-file", "", "File receiving the bar's output when started")
		barArgs     = flag.String("bar-args", "", "Arguments passed to the bar when started, space separated")
		noColor     = flag.Bool("no-color", false, "Disable styled output")
		yes         = flag.Bool("yes", false, "Do not ask for confirmation")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: barctl [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  paths                       Print the detected Waybar paths\n")
		fmt.Fprintf(os.Stderr, "  load [path]                 Validate and print the config\n")
		fmt.Fprintf(os.Stderr, "  save <src|-> [path]         Validate JSON from src and save it as the config\n")
		fmt.Fprintf(os.Stderr, "  load-css [path]             Print the style sheet\n")
		fmt.Fprintf(os.Stderr, "  save-css <src|-> [path]     Save the style sheet\n")
		fmt.Fprintf(os.Stderr, "  strip [path]                Print the config with comments removed\n")
		fmt.Fprintf(os.Stderr, "  validate [path]             Check that the config parses\n")
		fmt.Fprintf(os.Stderr, "  backup [path]               Back up a file without changing it\n")
		fmt.Fprintf(os.Stderr, "  backups                     List backups, newest first\n")
		fmt.Fprintf(os.Stderr, "  restore <backup> [target]   Restore a backup\n")
		fmt.Fprintf(os.Stderr, "  snapshot                    Archive the config directory\n")
		fmt.Fprintf(os.Stderr, "  snapshots                   List snapshots, newest first\n")
		fmt.Fprintf(os.Stderr, "  restore-snapshot <name>     Restore a snapshot into the config directory\n")
		fmt.Fprintf(os.Stderr, "  reload|start|stop|restart   Control the bar process\n")
		fmt.Fprintf(os.Stderr, "  status                      Show whether the bar is running\n")
		fmt.Fprintf(os.Stderr, "  compositor [name]           Show the Wayland compositor, or check one is running\n")
		fmt.Fprintf(os.Stderr, "  watch                       Reload the bar when config or style change\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("barctl version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	if envFile, err := settings.DefaultEnvFile(); err == nil {
		if err := settings.LoadEnvFile(envFile); err != nil {
			klog.Warningf("Ignoring env file: %v", err)
		}
	}
	s, err := settings.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
		os.Exit(1)
	}

	// Flags override settings
	if *configDir != "" {
		s.ConfigDir = *configDir
	}
	if *dataDir != "" {
		s.DataDir = *dataDir
	}
	if *process != "" {
		s.ProcessName = *process
	}
	if *noColor {
		s.NoColor = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApp(s, *logFile, *yes)
	app.barArgs = strings.Fields(*barArgs)
	command := args[0]

	if err := app.run(ctx, command, args[1:]); err != nil {
		if err == errUnknownCommand {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
			flag.Usage()
		} else {
			app.out.Fail(err)
		}
		stop()
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}
