package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vk/burstgraph/internal/app"
	"github.com/vk/burstgraph/internal/config"
	"github.com/vk/burstgraph/internal/engine"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

type flagValues struct {
	configPath string
	cfg        app.Config
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// Values are layered: built-in defaults, then the config file, then every
// flag that was set explicitly.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	var (
		fv  flagValues
		ran bool
		out *app.Config
	)

	cmd := &cobra.Command{
		Use:   "burstgraph [flags] [CONFIG_PATH]",
		Short: "burstgraph - a vertex-centric parallel graph computation engine.",
		Long: `burstgraph - a vertex-centric parallel graph computation engine.

Runs one of the built-in demo apps on a synthetic graph. CONFIG_PATH is an
optional .hcl file or a directory of .hcl files with engine and app blocks;
flags given on the command line override values from the file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			ran = true
			if len(posArgs) == 1 {
				if fv.configPath != "" && fv.configPath != posArgs[0] {
					return usageError("config path given twice: %q and %q", fv.configPath, posArgs[0])
				}
				fv.configPath = posArgs[0]
			}
			cfg, err := resolve(cmd, fv)
			if err != nil {
				return err
			}
			out = cfg
			return nil
		},
	}
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)

	f := cmd.Flags()
	f.StringVarP(&fv.configPath, "config", "c", "", "Path to an .hcl config file or directory.")
	f.StringVarP(&fv.cfg.AppName, "app", "a", "pagerank", "Demo app to run: chain or pagerank.")
	f.IntVarP(&fv.cfg.Vertices, "vertices", "n", 1000, "Number of vertices in the demo graph.")
	f.IntVarP(&fv.cfg.Workers, "workers", "w", 0, "Number of worker goroutines. 0 uses GOMAXPROCS.")
	f.StringVar(&fv.cfg.Scheduler, "scheduler", engine.DefaultScheduler, "Scheduler spec, e.g. fifo, priority or 'round_robin(max_iterations=3)'.")
	f.StringVar(&fv.cfg.Scope, "scope", engine.DefaultScope, "Consistency level: null, vertex, edge or full.")
	f.DurationVar(&fv.cfg.Timeout, "timeout", 0, "Stop the run after this long. 0 disables the timeout.")
	f.Uint64Var(&fv.cfg.TaskBudget, "task-budget", 0, "Stop the run after this many updates. 0 disables the budget.")
	f.BoolVar(&fv.cfg.CPUAffinity, "cpu-affinity", false, "Lock every worker to its own OS thread.")
	f.StringVar(&fv.cfg.LogLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	f.StringVar(&fv.cfg.LogFormat, "log-format", "auto", "Log output format. Options: 'text', 'json' or 'auto'.")
	f.IntVar(&fv.cfg.HealthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	f.StringVar(&fv.cfg.VisualizerURL, "visualizer-url", "", "socket.io URL of a visualizer to stream vertex values to.")
	f.Float64Var(&fv.cfg.VisualizerRate, "visualizer-rate", 200, "Maximum vertex value events per second sent to the visualizer.")

	if len(args) == 0 {
		slog.Debug("No arguments provided, printing usage and exiting.")
		_ = cmd.Help()
		return nil, true, nil
	}

	if err := cmd.Execute(); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if !ran {
		// Help was requested.
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "config", out)
	return out, false, nil
}

// resolve layers the config file and the explicitly set flags over the
// flag defaults and validates the result.
func resolve(cmd *cobra.Command, fv flagValues) (*app.Config, error) {
	flags := cmd.Flags()
	cfg := fv.cfg
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if fv.configPath != "" {
		file, err := config.Load(context.Background(), fv.configPath)
		if err != nil {
			return nil, usageError("failed to load config: %v", err)
		}
		if err := applyFile(&cfg, file, flags.Changed); err != nil {
			return nil, err
		}
		slog.Debug("Config file applied.", "path", fv.configPath)
	}

	validated, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError("%v", err)
	}
	return validated, nil
}

// applyFile copies every value the file sets into cfg unless the matching
// flag was given explicitly.
func applyFile(cfg *app.Config, file *config.File, changed func(string) bool) error {
	set := func(flag string, apply func()) {
		if !changed(flag) {
			apply()
		}
	}
	e := file.Engine
	if e.Workers != nil {
		set("workers", func() { cfg.Workers = *e.Workers })
	}
	if e.Scope != nil {
		set("scope", func() { cfg.Scope = *e.Scope })
	}
	if e.Timeout != nil {
		set("timeout", func() { cfg.Timeout = *e.Timeout })
	}
	if e.TaskBudget != nil {
		set("task-budget", func() { cfg.TaskBudget = *e.TaskBudget })
	}
	if e.CPUAffinity != nil {
		set("cpu-affinity", func() { cfg.CPUAffinity = *e.CPUAffinity })
	}
	if !changed("scheduler") && (e.Scheduler != nil || e.SchedulerOptions.Len() > 0) {
		spec, err := e.SchedulerSpec(cfg.Scheduler)
		if err != nil {
			return usageError("invalid scheduler in config: %v", err)
		}
		cfg.Scheduler = spec
	}
	if file.App.Name != nil {
		set("app", func() { cfg.AppName = *file.App.Name })
	}
	if file.App.Vertices != nil {
		set("vertices", func() { cfg.Vertices = *file.App.Vertices })
	}
	return nil
}
