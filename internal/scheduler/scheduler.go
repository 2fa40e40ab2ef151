package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/vk/burstgraph/internal/ctxlog"
	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/monitor"
)

const (
	NameFIFO       = "fifo"
	NamePriority   = "priority"
	NameRoundRobin = "round_robin"
)

// Names returns the names accepted by New.
func Names() []string {
	return []string{NameFIFO, NamePriority, NameRoundRobin}
}

// Known reports whether New accepts name.
func Known(name string) bool {
	return slices.Contains(Names(), strings.ToLower(name))
}

// New builds the scheduler called name for a run with the given number of
// workers. A nil monitor is replaced by monitor.Nop.
func New[V, E any](ctx context.Context, name string, g graph.Graph[V, E], workers int, mon monitor.Monitor) (Scheduler[V, E], error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: worker count must be at least 1, got %d", ErrInvalidConfig, workers)
	}
	if mon == nil {
		mon = monitor.Nop{}
	}
	logger := ctxlog.FromContext(ctx).With("scheduler", name)
	switch strings.ToLower(name) {
	case NameFIFO:
		return NewFIFO(g, workers, mon), nil
	case NamePriority:
		return NewPriority(g, workers, mon), nil
	case NameRoundRobin:
		return NewRoundRobin(g, workers, mon, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown scheduler %q (valid: %s)", ErrInvalidConfig, name, strings.Join(Names(), ", "))
	}
}

func checkVertex(n int, v graph.VertexID) {
	if int(v) >= n {
		panic(fmt.Sprintf("scheduler: vertex %d out of range [0, %d)", v, n))
	}
}
