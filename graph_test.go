package flow

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func process(id, slug string) Node {
	return NewProcessNode(id, ProcessData{Name: "Process " + slug, Slug: slug})
}

func task(id, slug string, deps ...string) Node {
	return NewTaskNode(id, TaskData{Name: "Task " + slug, Slug: slug, DependentTaskSlug: NewSlugSet(deps...)})
}

func master(id, slug string) Node {
	return NewMasterNode(id, MasterData{TaskData: TaskData{Name: "Master " + slug, Slug: slug}})
}

func mustState(t *testing.T, nodes []Node, edges []Edge) GraphState {
	t.Helper()
	s, err := NewGraphState(nodes, edges)
	require.NoError(t, err)
	return s
}

func mustConnect(t *testing.T, s GraphState, source, target string) (GraphState, Edge) {
	t.Helper()
	out, e, err := Connect(s, source, target)
	require.NoError(t, err)
	return out, e
}

func depsOf(t *testing.T, s GraphState, id string) []string {
	t.Helper()
	n, ok := s.Node(id)
	require.True(t, ok, "node %s", id)
	return n.Dependencies().Slice()
}

func TestAddNodeAssignsID(t *testing.T) {
	s, err := GraphState{}.AddNode(NewTaskNode("", TaskData{Name: "A", Slug: "a"}))
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	require.Regexp(t, `^task-[0-9a-f-]{36}$`, s.Nodes()[0].ID)
}

func TestAddNodeRejectsSecondProcess(t *testing.T) {
	s := mustState(t, []Node{process("p1", "proc")}, nil)
	_, err := s.AddNode(process("p2", "other"))
	require.ErrorIs(t, err, ErrDuplicateProcessNode)

	_, err = s.AddNode(task("p1", "a"))
	require.ErrorIs(t, err, ErrDuplicateNode)
}

func TestAddNodeRejectsMismatchedPayload(t *testing.T) {
	_, err := GraphState{}.AddNode(Node{ID: "x", Kind: KindTask, Process: &ProcessData{}})
	require.ErrorIs(t, err, ErrInvalidNode)

	_, err = GraphState{}.AddNode(Node{ID: "x", Kind: "bogus"})
	require.ErrorIs(t, err, ErrInvalidNode)
}

func TestGraphStateIsImmutable(t *testing.T) {
	s := mustState(t, []Node{task("t1", "a"), task("t2", "b")}, nil)
	next, _ := mustConnect(t, s, "t1", "t2")

	require.Empty(t, s.Edges())
	require.Empty(t, depsOf(t, s, "t2"))
	require.Len(t, next.Edges(), 1)
	require.Equal(t, []string{"a"}, depsOf(t, next, "t2"))

	nodes := next.Nodes()
	nodes[1].Task.Slug = "mutated"
	n, _ := next.Node("t2")
	require.Equal(t, "b", n.Slug())
}

func TestNewGraphStateChecksDependencies(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		edges []Edge
	}{
		{
			name:  "task edge without recorded dependency",
			nodes: []Node{process("p", "proc"), task("a", "a"), task("b", "b")},
			edges: []Edge{{ID: "e1", Source: "p", Target: "a"}, {ID: "e2", Source: "b", Target: "a"}},
		},
		{
			name:  "flow entry that also depends on a task",
			nodes: []Node{process("p", "proc"), task("a", "a", "b"), task("b", "b")},
			edges: []Edge{{ID: "e1", Source: "p", Target: "a"}, {ID: "e2", Source: "b", Target: "a"}},
		},
		{
			name:  "dependency without an edge",
			nodes: []Node{process("p", "proc"), task("b", "b", "ghost")},
		},
		{
			name:  "duplicate edge",
			nodes: []Node{task("a", "a"), task("b", "b", "a")},
			edges: []Edge{{ID: "e1", Source: "a", Target: "b"}, {ID: "e2", Source: "a", Target: "b"}},
		},
		{
			name:  "task into process",
			nodes: []Node{process("p", "proc"), task("a", "a")},
			edges: []Edge{{ID: "e1", Source: "a", Target: "p"}},
		},
		{
			name:  "process into master",
			nodes: []Node{process("p", "proc"), master("m", "m")},
			edges: []Edge{{ID: "e1", Source: "p", Target: "m"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraphState(tt.nodes, tt.edges)
			require.ErrorIs(t, err, ErrInvalidDependencyConnection)
		})
	}

	_, err := NewGraphState([]Node{task("a", "a")}, []Edge{{ID: "e1", Source: "a", Target: "a"}})
	require.ErrorIs(t, err, ErrSelfLoop)

	s := mustState(t,
		[]Node{process("p", "proc"), task("a", "a"), task("b", "b", "a"), master("m", "m"), task("c", "c", "b", "m")},
		[]Edge{
			{ID: "e1", Source: "p", Target: "a"},
			{ID: "e2", Source: "a", Target: "b"},
			{ID: "e3", Source: "b", Target: "c"},
			{ID: "e4", Source: "m", Target: "c"},
		})
	_, _, err = Connect(s, "p", "b")
	require.ErrorIs(t, err, ErrInvalidDependencyConnection)
}

func TestNewGraphStateRejectsDanglingEdge(t *testing.T) {
	_, err := NewGraphState([]Node{task("t1", "a")}, []Edge{{ID: "e1", Source: "t1", Target: "missing"}})
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestRemoveNodeCleansDependents(t *testing.T) {
	s := mustState(t, []Node{process("p", "proc"), task("t1", "a"), task("t2", "b"), task("t3", "c")}, nil)
	s, _ = mustConnect(t, s, "p", "t1")
	s, _ = mustConnect(t, s, "t1", "t2")
	s, _ = mustConnect(t, s, "t1", "t3")
	s, _ = mustConnect(t, s, "t2", "t3")
	require.Equal(t, []string{"a", "b"}, depsOf(t, s, "t3"))

	s, err := s.RemoveNode("t1")
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	require.Len(t, s.Edges(), 1)
	require.Empty(t, depsOf(t, s, "t2"))
	require.Equal(t, []string{"b"}, depsOf(t, s, "t3"))

	_, err = s.RemoveNode("t1")
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestUpdateNodeKeepsDependenciesAndRenames(t *testing.T) {
	s := mustState(t, []Node{task("t1", "a"), task("t2", "b"), task("t3", "c")}, nil)
	s, _ = mustConnect(t, s, "t1", "t2")
	s, _ = mustConnect(t, s, "t2", "t3")

	// The form never carries dependencies; they stay as recorded.
	s, err := s.UpdateNode("t2", NewTaskNode("", TaskData{Name: "Renamed", Slug: "b2"}))
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, depsOf(t, s, "t2"))
	require.Equal(t, []string{"b2"}, depsOf(t, s, "t3"))

	n, _ := s.Node("t2")
	require.Equal(t, "Renamed", n.Name())
	require.Equal(t, "t2", n.ID)
}

func TestUpdateNodeRejects(t *testing.T) {
	s := mustState(t, []Node{task("t1", "a")}, nil)

	_, err := s.UpdateNode("missing", task("", "x"))
	require.ErrorIs(t, err, ErrNodeNotFound)

	_, err = s.UpdateNode("t1", process("", "x"))
	require.ErrorIs(t, err, ErrInvalidNode)

	_, err = s.UpdateNode("t1", NewTaskNode("", TaskData{Name: "A", Slug: "a", ETA: `{"days":`}))
	require.ErrorIs(t, err, ErrMalformedJSONField)

	_, err = s.UpdateNode("t1", NewTaskNode("", TaskData{Name: "A", Slug: "a,b"}))
	require.ErrorIs(t, err, ErrInvalidNode)
}

func TestConvertMaster(t *testing.T) {
	s := mustState(t, []Node{task("t1", "a"), master("m1", "shared")}, nil)
	s, _ = mustConnect(t, s, "t1", "m1")

	s, err := s.ConvertMaster("m1")
	require.NoError(t, err)
	n, _ := s.Node("m1")
	require.Equal(t, KindTask, n.Kind)
	require.Nil(t, n.Master)
	require.Equal(t, "shared", n.Task.MasterTaskTemplateSlug)
	require.Equal(t, []string{"a"}, n.Dependencies().Slice())
	require.Len(t, s.Edges(), 1)

	_, err = s.ConvertMaster("t1")
	require.ErrorIs(t, err, ErrInvalidNode)
}

func TestValidateAcyclic(t *testing.T) {
	nodes := []Node{task("t1", "a"), task("t2", "b"), task("t3", "c")}
	require.NoError(t, ValidateAcyclic(nodes, []Edge{
		{ID: "e1", Source: "t1", Target: "t2"},
		{ID: "e2", Source: "t2", Target: "t3"},
	}))

	err := ValidateAcyclic(nodes, []Edge{
		{ID: "e1", Source: "t1", Target: "t2"},
		{ID: "e2", Source: "t2", Target: "t3"},
		{ID: "e3", Source: "t3", Target: "t1"},
	})
	require.ErrorIs(t, err, ErrCyclicDependency)
	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	require.ElementsMatch(t, []string{"a", "b", "c"}, cycle.Slugs)
}

func TestNodeJSON(t *testing.T) {
	raw := `{
		"id": "task-1",
		"type": "task",
		"position": {"x": 10, "y": 20},
		"data": {
			"name": "Fetch",
			"slug": "fetch",
			"dependent_task_slug": "a, b,a",
			"input_format": {"url": "string"},
			"is_optional": true,
			"delay_in_ms": 250
		}
	}`
	var n Node
	require.NoError(t, json.Unmarshal([]byte(raw), &n))
	require.Equal(t, KindTask, n.Kind)
	require.Equal(t, Position{X: 10, Y: 20}, n.Position)
	require.Equal(t, []string{"a", "b"}, n.Dependencies().Slice())
	require.JSONEq(t, `{"url": "string"}`, string(n.Task.InputFormat))
	require.True(t, *n.Task.IsOptional)
	require.EqualValues(t, 250, *n.Task.DelayMs)

	out, err := json.Marshal(n)
	require.NoError(t, err)
	var back Node
	require.NoError(t, json.Unmarshal(out, &back))
	require.Equal(t, n, back)

	require.Error(t, json.Unmarshal([]byte(`{"id":"x","type":"bogus","data":{}}`), &n))
}
