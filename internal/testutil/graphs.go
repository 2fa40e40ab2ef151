// Package testutil holds graph fixtures and probes shared by package tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/burstgraph/internal/graph"
)

// Chain builds 0 -> 1 -> ... -> n-1. Vertex data is the vertex id.
func Chain(t *testing.T, n int) *graph.Memory[int, int] {
	t.Helper()
	g := vertices(n)
	for i := 1; i < n; i++ {
		_, err := g.AddEdge(graph.VertexID(i-1), graph.VertexID(i), 0)
		require.NoError(t, err)
	}
	g.Finalize()
	return g
}

// Path links every pair of consecutive vertices in both directions.
func Path(t *testing.T, n int) *graph.Memory[int, int] {
	t.Helper()
	g := vertices(n)
	for i := 1; i < n; i++ {
		_, err := g.AddEdge(graph.VertexID(i-1), graph.VertexID(i), 0)
		require.NoError(t, err)
		_, err = g.AddEdge(graph.VertexID(i), graph.VertexID(i-1), 0)
		require.NoError(t, err)
	}
	g.Finalize()
	return g
}

// Ring is Chain closed by the edge n-1 -> 0.
func Ring(t *testing.T, n int) *graph.Memory[int, int] {
	t.Helper()
	g := Chain(t, n)
	if n > 2 {
		_, err := g.AddEdge(graph.VertexID(n-1), 0, 0)
		require.NoError(t, err)
		g.Finalize()
	}
	return g
}

// Star links vertex 0 to every other vertex and back.
func Star(t *testing.T, n int) *graph.Memory[int, int] {
	t.Helper()
	g := vertices(n)
	for i := 1; i < n; i++ {
		_, err := g.AddEdge(0, graph.VertexID(i), 0)
		require.NoError(t, err)
		_, err = g.AddEdge(graph.VertexID(i), 0, 0)
		require.NoError(t, err)
	}
	g.Finalize()
	return g
}

func vertices(n int) *graph.Memory[int, int] {
	g := graph.NewMemory[int, int](n)
	for i := 0; i < n; i++ {
		g.AddVertex(i)
	}
	return g
}
