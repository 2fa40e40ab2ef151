package engine

import (
	"fmt"
	"runtime"
	"time"

	"github.com/vk/burstgraph/internal/scheduler"
	"github.com/vk/burstgraph/internal/scope"
)

const (
	DefaultScheduler = scheduler.NameFIFO
	DefaultScope     = "edge"
)

// Config holds the settings an Engine is created with.
type Config struct {
	// Workers is the number of worker goroutines, and also the number of
	// syncer goroutines. Zero means runtime.GOMAXPROCS(0).
	Workers int
	// Scheduler is a scheduler spec such as "fifo" or
	// "round_robin(max_iterations=3)".
	Scheduler string
	// Scope is the default consistency level: null, vertex, edge or full.
	Scope string
	// CPUAffinity locks every worker goroutine to its own OS thread.
	CPUAffinity bool
	// Timeout ends a run after the given duration. Zero disables it.
	Timeout time.Duration
	// TaskBudget ends a run once more than this many updates ran. Zero
	// disables it.
	TaskBudget uint64
}

type parsedConfig struct {
	Config
	schedName   string
	schedOpts   scheduler.Options
	consistency scope.Consistency
}

func parseConfig(cfg Config) (parsedConfig, error) {
	if cfg.Workers < 0 {
		return parsedConfig{}, fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Scheduler == "" {
		cfg.Scheduler = DefaultScheduler
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.Timeout < 0 {
		return parsedConfig{}, fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}

	name, opts, err := scheduler.ParseSpec(cfg.Scheduler)
	if err != nil {
		return parsedConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !scheduler.Known(name) {
		return parsedConfig{}, fmt.Errorf("%w: unknown scheduler %q", ErrInvalidConfig, name)
	}
	consistency, err := scope.ParseConsistency(cfg.Scope)
	if err != nil {
		return parsedConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return parsedConfig{Config: cfg, schedName: name, schedOpts: opts, consistency: consistency}, nil
}
