package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectDisconnectRestoresDependencies(t *testing.T) {
	for _, before := range [][]string{nil, {"x"}} {
		s := mustState(t, []Node{task("t0", "x"), task("t1", "task-1"), task("t2", "task-2")}, nil)
		if len(before) > 0 {
			s, _ = mustConnect(t, s, "t0", "t2")
		}
		edges := len(s.Edges())

		s, e := mustConnect(t, s, "t1", "t2")
		require.Equal(t, append(append([]string(nil), before...), "task-1"), depsOf(t, s, "t2"))

		s = Disconnect(s, e.ID)
		require.Equal(t, before, depsOf(t, s, "t2"))
		require.Len(t, s.Edges(), edges)
	}
}

func TestConnectProcessEntryBlocksTaskSource(t *testing.T) {
	s := mustState(t, []Node{process("p1", "process-1"), task("t1", "task-1"), task("t2", "task-2")}, nil)

	s, _ = mustConnect(t, s, "p1", "t1")
	require.Empty(t, depsOf(t, s, "t1"))

	_, _, err := Connect(s, "t2", "t1")
	require.ErrorIs(t, err, ErrInvalidDependencyConnection)
	require.Empty(t, depsOf(t, s, "t1"))
	require.Len(t, s.Edges(), 1)
}

func TestConnectProcessIntoDependentTask(t *testing.T) {
	s := mustState(t, []Node{process("p1", "proc"), task("t1", "a"), task("t2", "b")}, nil)
	s, _ = mustConnect(t, s, "t1", "t2")

	_, _, err := Connect(s, "p1", "t2")
	require.ErrorIs(t, err, ErrInvalidDependencyConnection)
}

func TestConnectRejects(t *testing.T) {
	s := mustState(t, []Node{process("p1", "proc"), task("t1", "a"), master("m1", "m")}, nil)

	tests := []struct {
		name           string
		source, target string
		want           error
	}{
		{"self loop", "t1", "t1", ErrSelfLoop},
		{"unknown source", "nope", "t1", ErrNodeNotFound},
		{"unknown target", "t1", "nope", ErrNodeNotFound},
		{"task into process", "t1", "p1", ErrInvalidDependencyConnection},
		{"process into master", "p1", "m1", ErrInvalidDependencyConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := Connect(s, tt.source, tt.target)
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, s, out)
		})
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	s := mustState(t, []Node{task("t1", "a"), task("t2", "b")}, nil)
	s, first := mustConnect(t, s, "t1", "t2")
	s, second := mustConnect(t, s, "t1", "t2")

	require.Equal(t, first, second)
	require.Len(t, s.Edges(), 1)
	require.Equal(t, []string{"a"}, depsOf(t, s, "t2"))
}

func TestConnectRejectsCycle(t *testing.T) {
	s := mustState(t, []Node{task("t1", "a"), task("t2", "b"), task("t3", "c")}, nil)
	s, _ = mustConnect(t, s, "t1", "t2")
	s, _ = mustConnect(t, s, "t2", "t3")

	_, _, err := Connect(s, "t3", "t1")
	require.ErrorIs(t, err, ErrCyclicDependency)
	require.Empty(t, depsOf(t, s, "t1"))
}

func TestDisconnectKeepsSlugWithRemainingSource(t *testing.T) {
	// Two nodes sharing a slug both feed t3; dropping one edge keeps the slug.
	s := mustState(t, []Node{task("t1", "dup"), task("t2", "dup"), task("t3", "c")}, nil)
	s, e1 := mustConnect(t, s, "t1", "t3")
	s, _ = mustConnect(t, s, "t2", "t3")
	require.Equal(t, []string{"dup"}, depsOf(t, s, "t3"))

	s = Disconnect(s, e1.ID)
	require.Equal(t, []string{"dup"}, depsOf(t, s, "t3"))
}

func TestDisconnectProcessEdge(t *testing.T) {
	s := mustState(t, []Node{process("p1", "proc"), task("t1", "a")}, nil)
	s, e := mustConnect(t, s, "p1", "t1")

	s = Disconnect(s, e.ID)
	require.Empty(t, s.Edges())
	require.Empty(t, depsOf(t, s, "t1"))

	// Unknown edges are ignored.
	require.Equal(t, s, Disconnect(s, "missing"))
}

func TestDisconnectWithDanglingEndpoint(t *testing.T) {
	s := mustState(t, []Node{task("t1", "a"), task("t2", "b")}, nil)
	s, e := mustConnect(t, s, "t1", "t2")

	// Drop t1 without bookkeeping, then remove the edge.
	i := s.nodeIndex("t1")
	s = GraphState{nodes: append([]Node(nil), s.nodes[i+1:]...), edges: s.edges}
	s = Disconnect(s, e.ID)
	require.Empty(t, s.Edges())
	require.Equal(t, []string{"a"}, depsOf(t, s, "t2"))
}
