package flow

import (
	"fmt"
)

// Grid used when laying out the tasks of an expanded process template.
const (
	gridSpacing    = 300
	maxNodesPerRow = 5
)

// ProcessEntryParent is the parent id that marks a task as a flow entry in
// a remote child/parent mapping.
const ProcessEntryParent int64 = 0

// ProcessBlueprint is a remote process template: the process, its tasks and
// for every task the ids of the tasks it depends on.
type ProcessBlueprint struct {
	ID      string
	Process ProcessData
	Tasks   []BlueprintTask
	Parents map[int64][]int64
}

// BlueprintTask is a task of a remote process template.
type BlueprintTask struct {
	ID   int64
	Data TaskData
}

// ExpandBlueprint builds a canvas from a remote process template: the
// process node at origin, the tasks on a grid below it, and edges and
// dependency lists derived from the parent mapping. Edges go through Connect,
// so the result obeys the same rules as a hand-built canvas: repeated parents
// collapse into one edge, and a task that has task parents does not also get
// a process entry edge. Parents that are not part of the blueprint are
// skipped. A parent mapping with a cycle returns a *CycleError.
func ExpandBlueprint(b ProcessBlueprint, origin Position) (GraphState, error) {
	process := NewProcessNode(NewNodeID(KindProcess), b.Process)
	process.Position = origin

	nodes := []Node{process}
	ids := make(map[int64]string, len(b.Tasks))
	for _, t := range b.Tasks {
		if _, dup := ids[t.ID]; dup {
			return GraphState{}, fmt.Errorf("%w: task %d appears twice in process template %s", ErrInvalidNode, t.ID, b.ID)
		}
		ids[t.ID] = NewNodeID(KindTask)
	}

	rowWidth := float64(min(len(b.Tasks), maxNodesPerRow) * gridSpacing)
	startX := origin.X - rowWidth/2 + gridSpacing/2
	startY := origin.Y + gridSpacing

	for i, t := range b.Tasks {
		data := t.Data.clone()
		data.DependentTaskSlug = SlugSet{}
		n := NewTaskNode(ids[t.ID], data)
		n.Position = Position{
			X: startX + float64(i%maxNodesPerRow)*gridSpacing,
			Y: startY + float64(i/maxNodesPerRow)*gridSpacing,
		}
		nodes = append(nodes, n)
	}

	s, err := NewGraphState(nodes, nil)
	if err != nil {
		return GraphState{}, err
	}
	for _, t := range b.Tasks {
		target := ids[t.ID]
		entry, parents := false, 0
		for _, parent := range b.Parents[t.ID] {
			if parent == ProcessEntryParent {
				entry = true
				continue
			}
			src, ok := ids[parent]
			if !ok || src == target {
				continue
			}
			if s, _, err = Connect(s, src, target); err != nil {
				return GraphState{}, err
			}
			parents++
		}
		if entry && parents == 0 {
			if s, _, err = Connect(s, process.ID, target); err != nil {
				return GraphState{}, err
			}
		}
	}
	return s, nil
}
