package engine

import (
	"errors"
	"fmt"

	"github.com/vk/burstgraph/internal/graph"
)

var (
	// ErrInvalidConfig is returned when the engine cannot start or accept a
	// setting because of its configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")
	// ErrRunning is returned by operations that are not allowed while a run
	// is in progress.
	ErrRunning = errors.New("engine is running")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine is closed")
)

// UpdateError reports a panic raised by an update function, or by a
// terminator function when Vertex is graph.InvalidVertex.
type UpdateError struct {
	Worker  int
	Vertex  graph.VertexID
	Payload any
	Stack   []byte
}

func (e *UpdateError) Error() string {
	if e.Vertex == graph.InvalidVertex {
		return fmt.Sprintf("terminator function panicked (worker %d): %v", e.Worker, e.Payload)
	}
	return fmt.Sprintf("update function panicked on vertex %d (worker %d): %v", e.Vertex, e.Worker, e.Payload)
}

// Unwrap returns the panic payload when it is an error.
func (e *UpdateError) Unwrap() error {
	if err, ok := e.Payload.(error); ok {
		return err
	}
	return nil
}
