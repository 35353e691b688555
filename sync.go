package flow

import (
	"fmt"
)

// Connect adds an edge from source to target and keeps the target's
// dependent_task_slug in step with it.
//
// Rules:
//   - source == target returns ErrSelfLoop and the state is unchanged.
//   - A process source may only start a task, and not one that already
//     depends on tasks or already has a process entry edge.
//   - A task source cannot feed the process node or a task that is a flow
//     entry (already has a process edge).
//   - A task edge that would close a dependency cycle returns a *CycleError.
//   - A task source adds its slug to the target's dependencies; adding a
//     slug that is already recorded is a no-op.
//
// Master nodes count as tasks on both ends: an edge from a master records
// the master's slug on the target, and a master keeps its own dependency
// list so ConvertMaster yields a consistent task. For the same reason a
// process edge cannot start a master.
//
// Connecting a pair that already has an edge returns that edge unchanged.
func Connect(s GraphState, source, target string) (GraphState, Edge, error) {
	if source == target {
		return s, Edge{}, ErrSelfLoop
	}
	si, ti := s.nodeIndex(source), s.nodeIndex(target)
	if si < 0 {
		return s, Edge{}, &NodeError{NodeID: source, Err: ErrNodeNotFound}
	}
	if ti < 0 {
		return s, Edge{}, &NodeError{NodeID: target, Err: ErrNodeNotFound}
	}
	src, dst := s.nodes[si], s.nodes[ti]

	if e, ok := s.edgeBetween(source, target); ok {
		return s, e, nil
	}

	switch {
	case src.Kind == KindProcess:
		if dst.Kind != KindTask {
			return s, Edge{}, rejectf(dst, "process can only start a task, not a %s", dst.Kind)
		}
		if !dst.Dependencies().Empty() {
			return s, Edge{}, rejectf(dst, "task already depends on %s", dst.Dependencies())
		}
		if s.hasProcessEntry(target) {
			return s, Edge{}, rejectf(dst, "task is already connected to the process")
		}
	case src.dependencyCarrier():
		if dst.Kind == KindProcess {
			return s, Edge{}, rejectf(dst, "a task cannot lead into the process")
		}
		if s.hasProcessEntry(target) {
			return s, Edge{}, rejectf(dst, "task is already connected to the process")
		}
		if s.reaches(target, source) {
			return s, Edge{}, &CycleError{Slugs: []string{src.Slug(), dst.Slug()}}
		}
	}

	edge := Edge{ID: NewEdgeID(), Source: source, Target: target}
	out, err := s.AddEdge(edge)
	if err != nil {
		return s, Edge{}, err
	}
	if src.dependencyCarrier() && dst.dependencyCarrier() {
		updated := dst.Clone()
		td := updated.taskData()
		td.DependentTaskSlug = td.DependentTaskSlug.Add(src.Slug())
		out = out.replaceNode(ti, updated)
	}
	return out, edge, nil
}

// Disconnect removes an edge and drops the source's slug from the target's
// dependencies. The slug stays when another remaining edge into the target
// comes from a node with the same slug. If either endpoint no longer exists
// only the edge is removed. Disconnecting an unknown edge is a no-op.
func Disconnect(s GraphState, edgeID string) GraphState {
	e, ok := s.Edge(edgeID)
	if !ok {
		return s
	}
	out := s.RemoveEdge(edgeID)

	si, ti := out.nodeIndex(e.Source), out.nodeIndex(e.Target)
	if si < 0 || ti < 0 {
		return out
	}
	src, dst := out.nodes[si], out.nodes[ti]
	if !src.dependencyCarrier() || !dst.dependencyCarrier() {
		return out
	}

	slug := src.Slug()
	for _, other := range out.edges {
		if other.Target != e.Target {
			continue
		}
		if j := out.nodeIndex(other.Source); j >= 0 && out.nodes[j].dependencyCarrier() && out.nodes[j].Slug() == slug {
			return out
		}
	}

	updated := dst.Clone()
	td := updated.taskData()
	td.DependentTaskSlug = td.DependentTaskSlug.Remove(slug)
	return out.replaceNode(ti, updated)
}

func rejectf(n Node, format string, args ...any) error {
	return &NodeError{
		NodeID: n.ID,
		Slug:   n.Slug(),
		Err:    fmt.Errorf("%w: %s", ErrInvalidDependencyConnection, fmt.Sprintf(format, args...)),
	}
}

func (s GraphState) edgeBetween(source, target string) (Edge, bool) {
	for _, e := range s.edges {
		if e.Source == source && e.Target == target {
			return e, true
		}
	}
	return Edge{}, false
}

// hasProcessEntry reports whether id has an incoming edge from the process.
func (s GraphState) hasProcessEntry(id string) bool {
	for _, e := range s.edges {
		if e.Target != id {
			continue
		}
		if i := s.nodeIndex(e.Source); i >= 0 && s.nodes[i].Kind == KindProcess {
			return true
		}
	}
	return false
}

// reaches reports whether to can be reached from from by following edges.
func (s GraphState) reaches(from, to string) bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		for _, e := range s.edges {
			if e.Source == cur && !seen[e.Target] {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return false
}
