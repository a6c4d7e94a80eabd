package reflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCycleCollectionReclaimsDetachedCycle builds two nodes that refer
// to each other via AddKeepAlive (a strong cycle no ordinary
// reference-count decrement alone can break), drops every external
// reference, and checks that CollectCycles frees both.
func TestCycleCollectionReclaimsDetachedCycle(t *testing.T) {
	rt := NewRuntime()
	baseline := rt.NodeCount()

	a := newNode(rt, "a", nil, nil)
	b := newNode(rt, "b", nil, nil)
	a.AddKeepAlive(b)
	b.AddKeepAlive(a)
	require.Equal(t, baseline+2, rt.NodeCount())

	// The caller's own strong references are the only thing keeping
	// this pair alive now; drop them and let the collector find the
	// cycle via trial deletion.
	a.Release()
	b.Release()

	rt.gc.CollectCycles()

	require.True(t, a.freed, "expected node a to be freed after cycle collection")
	require.True(t, b.freed, "expected node b to be freed after cycle collection")
	require.Equal(t, baseline, rt.NodeCount(), "node count for the reclaimed subgraph should return to zero")
}

func TestAcyclicChainFreedByPlainRefcounting(t *testing.T) {
	rt := NewRuntime()
	baseline := rt.NodeCount()

	in := NewStreamSink[int](rt)
	mapped := MapTo(in.Stream, func(v int) int { return v + 1 })
	require.Equal(t, baseline+2, rt.NodeCount())

	// mapped has no dependents: releasing the caller's only reference to
	// it frees it immediately, no CollectCycles pass required.
	mapped.node.Release()
	require.True(t, mapped.node.freed, "expected mapped node to be freed immediately on release")
	require.Equal(t, baseline+1, rt.NodeCount())

	// Releasing mapped decremented in's strong count by one via the
	// dependency edge, but in's own owner reference still holds it.
	require.False(t, in.Stream.node.freed, "expected in's node to stay alive while its own reference is live")

	in.Stream.node.Release()
	require.True(t, in.Stream.node.freed, "expected in's node to be freed once its last reference drops")
	require.Equal(t, baseline, rt.NodeCount(), "node count for the reclaimed chain should return to zero")
}
