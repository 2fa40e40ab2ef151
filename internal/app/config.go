package app

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vk/burstgraph/internal/engine"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json", "auto"}
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	AppName  string
	Vertices int

	Workers     int
	Scheduler   string
	Scope       string
	Timeout     time.Duration
	TaskBudget  uint64
	CPUAffinity bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// VisualizerURL enables streaming vertex values over socket.io.
	VisualizerURL string
	// VisualizerRate caps vertex value events per second.
	VisualizerRate float64
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.AppName == "" {
		return nil, errors.New("AppName is a required configuration field and cannot be empty")
	}
	if cfg.Vertices < 1 {
		return nil, fmt.Errorf("vertices must be at least 1, got %d", cfg.Vertices)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}
	if !slices.Contains(logLevels, cfg.LogLevel) {
		return nil, fmt.Errorf("invalid log-level %q: must be one of %v", cfg.LogLevel, logLevels)
	}
	if !slices.Contains(logFormats, cfg.LogFormat) {
		return nil, fmt.Errorf("invalid log-format %q: must be one of %v", cfg.LogFormat, logFormats)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("healthcheck-port %d out of range", cfg.HealthcheckPort)
	}
	if cfg.VisualizerURL != "" && cfg.VisualizerRate <= 0 {
		return nil, fmt.Errorf("visualizer rate must be positive, got %g", cfg.VisualizerRate)
	}
	return &cfg, nil
}

// EngineConfig returns the engine part of the configuration.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Workers:     c.Workers,
		Scheduler:   c.Scheduler,
		Scope:       c.Scope,
		CPUAffinity: c.CPUAffinity,
		Timeout:     c.Timeout,
		TaskBudget:  c.TaskBudget,
	}
}
