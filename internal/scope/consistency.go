package scope

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned for unknown consistency levels.
var ErrInvalidConfig = errors.New("invalid scope configuration")

// Consistency is the guarantee a scope gives an update function about
// concurrent updates around its vertex. Levels are ordered from weakest to
// strongest.
type Consistency int

const (
	// Null takes no locks.
	Null Consistency = iota
	// Vertex write-locks the center vertex.
	Vertex
	// Edge write-locks the center and read-locks every neighbor.
	Edge
	// Full write-locks the center and every neighbor.
	Full
)

func (c Consistency) String() string {
	switch c {
	case Null:
		return "null"
	case Vertex:
		return "vertex"
	case Edge:
		return "edge"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("consistency(%d)", int(c))
	}
}

// Valid reports whether c is one of the defined levels.
func (c Consistency) Valid() bool { return c >= Null && c <= Full }

// ParseConsistency converts a level name into a Consistency.
func ParseConsistency(s string) (Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "null", "none":
		return Null, nil
	case "vertex":
		return Vertex, nil
	case "edge":
		return Edge, nil
	case "full":
		return Full, nil
	default:
		return Null, fmt.Errorf("%w: unknown consistency level %q (valid: null, vertex, edge, full)", ErrInvalidConfig, s)
	}
}
