package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/burstgraph/internal/apps"
	"github.com/vk/burstgraph/internal/ctxlog"
	"github.com/vk/burstgraph/internal/engine"
	"github.com/vk/burstgraph/internal/monitor"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	ctx      context.Context
	config   *Config
	apps     *apps.Registry
	registry *prometheus.Registry

	httpServer *http.Server
	healthAddr string
	prom       *monitor.Prometheus

	mu      sync.Mutex
	metrics engine.Metrics
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and metrics
// registry. A nil registry means apps.Default().
func NewApp(outW io.Writer, cfg *Config, registry *apps.Registry) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if registry == nil {
		registry = apps.Default()
	}
	logger.Debug("Apps registered.", "apps", registry.Names())

	return &App{
		outW:     outW,
		logger:   logger,
		ctx:      ctx,
		config:   cfg,
		apps:     registry,
		registry: prometheus.NewRegistry(),
	}
}

// Metrics returns the engine metrics of the last run.
func (a *App) Metrics() engine.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

// PrometheusRegistry returns the registry served on /metrics. This is
// primarily for testing.
func (a *App) PrometheusRegistry() *prometheus.Registry {
	return a.registry
}
