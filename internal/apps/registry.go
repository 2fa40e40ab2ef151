package apps

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vk/burstgraph/internal/engine"
	"github.com/vk/burstgraph/internal/graph"
	"github.com/vk/burstgraph/internal/monitor"
	"github.com/vk/burstgraph/internal/scope"
	"github.com/vk/burstgraph/internal/shared"
)

// Vertex is the vertex payload shared by the demo apps.
type Vertex struct {
	Value float64
}

// Edge is the edge payload shared by the demo apps.
type Edge struct {
	Weight float64
}

type (
	Graph  = graph.Memory[Vertex, Edge]
	Engine = engine.Engine[Vertex, Edge]
)

// App is a runnable demo program.
type App interface {
	Name() string
	Description() string
	// MinScope is the weakest consistency level the app's update function
	// is correct under.
	MinScope() scope.Consistency
	// Build creates the app's graph with n vertices.
	Build(n int) (*Graph, error)
	// Setup seeds e with tasks and syncs. Vertex values are reported to mon.
	Setup(e *Engine, mon monitor.Monitor) error
	// Summary returns slog key/value pairs describing the finished run.
	Summary(g *Graph) []any
}

// Registry maps app names to apps.
type Registry struct {
	apps map[string]App
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{apps: make(map[string]App)}
}

// Default returns a registry holding every built-in app.
func Default() *Registry {
	r := NewRegistry()
	for _, a := range []App{NewPageRank(), NewChain()} {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a under its name.
func (r *Registry) Register(a App) error {
	name := strings.ToLower(a.Name())
	if _, ok := r.apps[name]; ok {
		return fmt.Errorf("app %q already registered", name)
	}
	r.apps[name] = a
	return nil
}

// Lookup returns the app registered under name.
func (r *Registry) Lookup(name string) (App, error) {
	a, ok := r.apps[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown app %q (valid: %s)", name, strings.Join(r.Names(), ", "))
	}
	return a, nil
}

// Names returns the registered app names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.apps))
	for n := range r.apps {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// sumSync returns a sync that publishes the sum of every vertex value into
// target every interval updates.
func sumSync(target *shared.Value[float64], interval uint64) engine.SyncSpec[Vertex, Edge] {
	return engine.SyncSpec[Vertex, Edge]{
		Target: target,
		Reduce: func(s *scope.Scope[Vertex, Edge], acc any) any {
			return acc.(float64) + s.VertexData().Value
		},
		Merge:     func(a, b any) any { return a.(float64) + b.(float64) },
		Apply:     func(_, acc any) any { return acc },
		Zero:      0.0,
		Interval:  interval,
		RangeHigh: graph.InvalidVertex,
	}
}
