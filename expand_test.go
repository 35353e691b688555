package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandBlueprint(t *testing.T) {
	bp := ProcessBlueprint{
		ID:      "7",
		Process: ProcessData{Name: "Proc", Slug: "proc"},
		Tasks: []BlueprintTask{
			{ID: 10, Data: TaskData{Name: "A", Slug: "a"}},
			{ID: 11, Data: TaskData{Name: "B", Slug: "b", DependentTaskSlug: NewSlugSet("stale")}},
			{ID: 12, Data: TaskData{Name: "C", Slug: "c"}},
		},
		Parents: map[int64][]int64{
			10: {ProcessEntryParent},
			11: {10, 99},
			12: {10, 11},
		},
	}

	s, err := ExpandBlueprint(bp, Position{X: 500, Y: 100})
	require.NoError(t, err)
	require.Equal(t, 4, s.Len())
	require.Len(t, s.Edges(), 4)

	p, ok := s.Process()
	require.True(t, ok)
	require.Equal(t, Position{X: 500, Y: 100}, p.Position)

	tasks := s.Tasks()
	require.Len(t, tasks, 3)
	require.Empty(t, tasks[0].Dependencies().Slice())
	require.Equal(t, []string{"a"}, tasks[1].Dependencies().Slice())
	require.Equal(t, []string{"a", "b"}, tasks[2].Dependencies().Slice())

	// Three tasks on one row centred under the process, one grid step below.
	require.Equal(t, Position{X: 200, Y: 400}, tasks[0].Position)
	require.Equal(t, Position{X: 500, Y: 400}, tasks[1].Position)
	require.Equal(t, Position{X: 800, Y: 400}, tasks[2].Position)

	order, err := Linearize(tasks)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
	require.NoError(t, ValidateForExport(s, ExportOptions{}))
}

func TestExpandBlueprintFollowsConnectRules(t *testing.T) {
	bp := ProcessBlueprint{
		Process: ProcessData{Name: "P", Slug: "p"},
		Tasks: []BlueprintTask{
			{ID: 1, Data: TaskData{Name: "A", Slug: "a"}},
			{ID: 2, Data: TaskData{Name: "B", Slug: "b"}},
		},
		Parents: map[int64][]int64{
			1: {ProcessEntryParent, ProcessEntryParent},
			2: {ProcessEntryParent, 1, 1, 2},
		},
	}

	s, err := ExpandBlueprint(bp, Position{})
	require.NoError(t, err)
	p, _ := s.Process()
	tasks := s.Tasks()
	a, b := tasks[0], tasks[1]

	require.Len(t, s.Edges(), 2)
	_, ok := s.edgeBetween(p.ID, a.ID)
	require.True(t, ok)
	_, ok = s.edgeBetween(a.ID, b.ID)
	require.True(t, ok)
	require.False(t, s.hasProcessEntry(b.ID))
	require.Equal(t, []string{"a"}, b.Dependencies().Slice())

	// The expanded canvas survives a save and reload.
	_, err = NewGraphState(s.Nodes(), s.Edges())
	require.NoError(t, err)
}

func TestExpandBlueprintRejectsCycle(t *testing.T) {
	bp := ProcessBlueprint{
		Process: ProcessData{Name: "P", Slug: "p"},
		Tasks: []BlueprintTask{
			{ID: 1, Data: TaskData{Name: "A", Slug: "a"}},
			{ID: 2, Data: TaskData{Name: "B", Slug: "b"}},
		},
		Parents: map[int64][]int64{1: {2}, 2: {1}},
	}
	_, err := ExpandBlueprint(bp, Position{})
	require.ErrorIs(t, err, ErrCyclicDependency)
}

func TestExpandBlueprintWrapsRows(t *testing.T) {
	bp := ProcessBlueprint{Process: ProcessData{Name: "P", Slug: "p"}}
	for i := int64(1); i <= 7; i++ {
		bp.Tasks = append(bp.Tasks, BlueprintTask{ID: i, Data: TaskData{Name: "T", Slug: string(rune('a' + i))}})
	}
	s, err := ExpandBlueprint(bp, Position{})
	require.NoError(t, err)

	tasks := s.Tasks()
	require.Equal(t, tasks[0].Position.X, tasks[5].Position.X)
	require.Equal(t, tasks[0].Position.Y+gridSpacing, tasks[5].Position.Y)
}

func TestExpandBlueprintDuplicateTask(t *testing.T) {
	bp := ProcessBlueprint{
		Process: ProcessData{Name: "P", Slug: "p"},
		Tasks:   []BlueprintTask{{ID: 1}, {ID: 1}},
	}
	_, err := ExpandBlueprint(bp, Position{})
	require.ErrorIs(t, err, ErrInvalidNode)
}

func TestRegenerateIDs(t *testing.T) {
	in := Template{
		ID:    "tpl",
		Nodes: []Node{task("t1", "a"), task("t2", "b", "a")},
		Edges: []Edge{{ID: "e1", Source: "t1", Target: "t2"}},
	}
	out, err := RegenerateIDs(in)
	require.NoError(t, err)
	require.Equal(t, "tpl", out.ID)
	require.NotEqual(t, "t1", out.Nodes[0].ID)
	require.Equal(t, Edge{ID: out.Edges[0].ID, Source: out.Nodes[0].ID, Target: out.Nodes[1].ID}, out.Edges[0])
	require.Equal(t, "t1", in.Nodes[0].ID)

	in.Edges = append(in.Edges, Edge{ID: "e2", Source: "t2", Target: "gone"})
	_, err = RegenerateIDs(in)
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestTemplateFrom(t *testing.T) {
	s := exportable(t)
	tpl := TemplateFrom(s, "", "Onboarding")
	require.Regexp(t, `^template-`, tpl.ID)
	require.Equal(t, "Onboarding", tpl.Name)
	require.Equal(t, 3, tpl.Metadata.NodeCount)
	require.Equal(t, 2, tpl.Metadata.EdgeCount)
	require.False(t, tpl.Metadata.CreatedAt.IsZero())
}
