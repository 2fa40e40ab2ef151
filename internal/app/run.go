package app

import (
	"cmp"
	"context"
	"fmt"
	"time"

	"github.com/vk/burstgraph/internal/ctxlog"
	"github.com/vk/burstgraph/internal/engine"
	"github.com/vk/burstgraph/internal/monitor"
	"github.com/vk/burstgraph/internal/scope"
)

// Run builds the configured app's graph, runs the engine over it and logs a
// summary. It returns the engine's error, if any.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		if err := a.healthCheckServer(fmt.Sprintf(":%d", a.config.HealthcheckPort)); err != nil {
			return err
		}
		defer a.closeHealthCheckServer()
	} else {
		a.logger.Debug("Health check server not started: disabled")
	}

	demo, err := a.apps.Lookup(a.config.AppName)
	if err != nil {
		return err
	}
	g, err := demo.Build(a.config.Vertices)
	if err != nil {
		return fmt.Errorf("failed to build %s graph: %w", demo.Name(), err)
	}
	a.logger.Debug("Graph built.", "app", demo.Name(), "vertices", g.NumVertices(), "edges", g.NumEdges())

	engCfg := a.config.EngineConfig()
	level, err := scope.ParseConsistency(cmp.Or(engCfg.Scope, engine.DefaultScope))
	if err != nil {
		return err
	}
	if level < demo.MinScope() {
		return fmt.Errorf("app %s reads neighbor data and needs at least %s scope, got %s", demo.Name(), demo.MinScope(), level)
	}

	eng, err := engine.New(ctx, g, engCfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	mon, closeMon, err := a.monitors(ctx)
	if err != nil {
		return err
	}
	defer closeMon()
	if err := eng.RegisterMonitor(mon); err != nil {
		return err
	}
	if err := demo.Setup(eng, mon); err != nil {
		return fmt.Errorf("failed to set up %s: %w", demo.Name(), err)
	}

	a.logger.Info("🚀 Running app.", "app", demo.Name(), "description", demo.Description())
	runErr := eng.Start(ctx)
	m := eng.Metrics()
	a.mu.Lock()
	a.metrics = m
	a.mu.Unlock()
	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}

	summary := append([]any{
		"app", demo.Name(),
		"reason", m.TerminationReason.String(),
		"updates", m.Updates,
		"runtime", m.Runtime.Round(time.Microsecond),
	}, demo.Summary(g)...)
	a.logger.Info("🏁 App finished.", summary...)
	a.logger.Debug("App.Run method finished.")
	return nil
}

// monitors builds the multiplexer handed to the engine and the app. The
// returned func releases the visualizer connection.
func (a *App) monitors(ctx context.Context) (*monitor.Multiplexer, func(), error) {
	if a.prom == nil {
		prom, err := monitor.NewPrometheus(a.registry)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		a.prom = prom
	}
	mux := monitor.NewMultiplexer(a.prom)

	if a.config.VisualizerURL == "" {
		return mux, func() {}, nil
	}
	emitter, err := monitor.DialVisualizer(ctx, monitor.DialOptions{URL: a.config.VisualizerURL})
	if err != nil {
		return nil, nil, err
	}
	vis := monitor.NewVisualizer(emitter, a.config.VisualizerRate, int(a.config.VisualizerRate)+1)
	mux.Add(vis)
	return mux, func() {
		a.logger.Debug("Visualizer events.", "sent", vis.Sent(), "dropped", vis.Dropped())
		emitter.Close()
	}, nil
}
