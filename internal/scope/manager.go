package scope

import (
	"fmt"
	"sync"

	"github.com/vk/burstgraph/internal/graph"
)

// Manager hands out scopes over a graph.
type Manager[V, E any] struct {
	g     graph.Graph[V, E]
	locks []sync.RWMutex
	def   Consistency
}

// NewManager creates a manager over g whose GetDefault grants def.
func NewManager[V, E any](g graph.Graph[V, E], def Consistency) (*Manager[V, E], error) {
	if !def.Valid() {
		return nil, fmt.Errorf("%w: unknown consistency level %d", ErrInvalidConfig, int(def))
	}
	return &Manager[V, E]{
		g:     g,
		locks: make([]sync.RWMutex, g.NumVertices()),
		def:   def,
	}, nil
}

// Default returns the level used by GetDefault.
func (m *Manager[V, E]) Default() Consistency { return m.def }

// GetDefault is Get at the manager's default level.
func (m *Manager[V, E]) GetDefault(worker int, v graph.VertexID) *Scope[V, E] {
	return m.Get(worker, v, m.def)
}

// Get blocks until the locks for v at level c are held and returns the scope.
func (m *Manager[V, E]) Get(worker int, v graph.VertexID, c Consistency) *Scope[V, E] {
	if int(v) >= len(m.locks) {
		panic(fmt.Sprintf("scope: vertex %d out of range [0, %d)", v, len(m.locks)))
	}
	s := &Scope[V, E]{g: m.g, vertex: v, consistency: c, worker: worker}
	s.locks = m.lockSet(v, c)
	for _, tok := range s.locks {
		if tok.write {
			m.locks[tok.v].Lock()
		} else {
			m.locks[tok.v].RLock()
		}
	}
	return s
}

// lockSet returns the tokens for v at level c in ascending vertex order with
// duplicates merged.
func (m *Manager[V, E]) lockSet(v graph.VertexID, c Consistency) []lockToken {
	switch c {
	case Null:
		return nil
	case Vertex:
		return []lockToken{{v: v, write: true}}
	}

	neighbors := graph.Neighbors(m.g, v)
	toks := make([]lockToken, 0, len(neighbors)+1)
	inserted := false
	for _, u := range neighbors {
		if !inserted && u > v {
			toks = append(toks, lockToken{v: v, write: true})
			inserted = true
		}
		if u == v {
			continue
		}
		toks = append(toks, lockToken{v: u, write: c == Full})
	}
	if !inserted {
		toks = append(toks, lockToken{v: v, write: true})
	}
	return toks
}

// Release runs the scope's commit hooks and unlocks it.
func (m *Manager[V, E]) Release(s *Scope[V, E]) {
	for _, fn := range s.commits {
		fn()
	}
	m.Discard(s)
}

// Discard unlocks the scope without running its commit hooks. The engine
// uses it when an update function panicked.
func (m *Manager[V, E]) Discard(s *Scope[V, E]) {
	for i := len(s.locks) - 1; i >= 0; i-- {
		tok := s.locks[i]
		if tok.write {
			m.locks[tok.v].Unlock()
		} else {
			m.locks[tok.v].RUnlock()
		}
	}
	s.locks = nil
	s.commits = nil
}

// AcquireRange write-locks every vertex in [low, high] in ascending order.
func (m *Manager[V, E]) AcquireRange(low, high graph.VertexID) {
	m.checkRange(low, high)
	for v := low; ; v++ {
		m.locks[v].Lock()
		if v == high {
			return
		}
	}
}

// ReleaseRange unlocks a range taken with AcquireRange.
func (m *Manager[V, E]) ReleaseRange(low, high graph.VertexID) {
	m.checkRange(low, high)
	for v := high; ; v-- {
		m.locks[v].Unlock()
		if v == low {
			return
		}
	}
}

func (m *Manager[V, E]) checkRange(low, high graph.VertexID) {
	if low > high || int(high) >= len(m.locks) {
		panic(fmt.Sprintf("scope: invalid vertex range [%d, %d] for %d vertices", low, high, len(m.locks)))
	}
}
