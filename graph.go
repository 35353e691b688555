package flow

import (
	"fmt"
)

// GraphState is the node and edge set of one canvas.
//
// The zero value is an empty graph. GraphState is immutable: reads return
// copies and mutations return a new state, so a state can be shared freely
// and a failed mutation never leaves a half-applied change behind.
type GraphState struct {
	nodes []Node
	edges []Edge
}

// NewGraphState builds a state from existing nodes and edges, as when a saved
// template is loaded. It enforces the same invariants as the incremental
// mutations: unique ids, a single process node, payloads matching kinds,
// edges with resolvable endpoints, and edges that Connect would have
// accepted. Every task's recorded dependencies must equal the slugs of its
// task-sourced predecessors; a mismatch returns ErrInvalidDependencyConnection.
// Cycles are left to ValidateAcyclic and Linearize.
func NewGraphState(nodes []Node, edges []Edge) (GraphState, error) {
	var s GraphState
	var err error
	for _, n := range nodes {
		if n.ID == "" {
			return GraphState{}, &NodeError{Err: fmt.Errorf("%w: missing id", ErrInvalidNode)}
		}
		if s, err = s.AddNode(n); err != nil {
			return GraphState{}, err
		}
	}
	for _, e := range edges {
		if s, err = s.AddEdge(e); err != nil {
			return GraphState{}, err
		}
	}
	if err := s.checkEdges(); err != nil {
		return GraphState{}, err
	}
	return s, nil
}

// checkEdges verifies a state built in bulk against the rules Connect applies
// one edge at a time.
func (s GraphState) checkEdges() error {
	type pair struct{ source, target string }
	seen := make(map[pair]bool, len(s.edges))
	want := make(map[string]SlugSet)
	entry := make(map[string]bool)

	for _, e := range s.edges {
		if e.Source == e.Target {
			return &NodeError{NodeID: e.Source, Err: ErrSelfLoop}
		}
		if seen[pair{e.Source, e.Target}] {
			return fmt.Errorf("%w: duplicate edge %s from %s to %s", ErrInvalidDependencyConnection, e.ID, e.Source, e.Target)
		}
		seen[pair{e.Source, e.Target}] = true

		src, dst := s.nodes[s.nodeIndex(e.Source)], s.nodes[s.nodeIndex(e.Target)]
		switch {
		case src.Kind == KindProcess:
			if dst.Kind != KindTask {
				return rejectf(dst, "process can only start a task, not a %s", dst.Kind)
			}
			entry[dst.ID] = true
		case dst.Kind == KindProcess:
			return rejectf(dst, "a task cannot lead into the process")
		default:
			want[dst.ID] = want[dst.ID].Add(src.Slug())
		}
	}

	for _, n := range s.nodes {
		if !n.dependencyCarrier() {
			continue
		}
		have, expect := n.Dependencies(), want[n.ID]
		if entry[n.ID] && !expect.Empty() {
			return rejectf(n, "flow entry task also depends on %s", expect)
		}
		if !sameSlugs(have, expect) {
			return rejectf(n, "dependent_task_slug %q does not match incoming task edges %q", have, expect)
		}
	}
	return nil
}

func sameSlugs(a, b SlugSet) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, slug := range a.Slice() {
		if !b.Contains(slug) {
			return false
		}
	}
	return true
}

// Nodes returns a snapshot of the nodes in insertion order.
func (s GraphState) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Clone()
	}
	return out
}

// Edges returns a snapshot of the edges in insertion order.
func (s GraphState) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// Len returns the number of nodes.
func (s GraphState) Len() int { return len(s.nodes) }

// Empty reports whether the canvas has no nodes.
func (s GraphState) Empty() bool { return len(s.nodes) == 0 }

// Node returns a copy of the node with the given id.
func (s GraphState) Node(id string) (Node, bool) {
	i := s.nodeIndex(id)
	if i < 0 {
		return Node{}, false
	}
	return s.nodes[i].Clone(), true
}

// Edge returns the edge with the given id.
func (s GraphState) Edge(id string) (Edge, bool) {
	i := s.edgeIndex(id)
	if i < 0 {
		return Edge{}, false
	}
	return s.edges[i], true
}

// Process returns the process node, if any.
func (s GraphState) Process() (Node, bool) {
	for _, n := range s.nodes {
		if n.Kind == KindProcess {
			return n.Clone(), true
		}
	}
	return Node{}, false
}

// Tasks returns the task nodes in insertion order.
func (s GraphState) Tasks() []Node {
	return s.ofKind(KindTask)
}

// Masters returns the master nodes in insertion order.
func (s GraphState) Masters() []Node {
	return s.ofKind(KindMaster)
}

func (s GraphState) ofKind(k NodeKind) []Node {
	var out []Node
	for _, n := range s.nodes {
		if n.Kind == k {
			out = append(out, n.Clone())
		}
	}
	return out
}

// Incident reports whether any edge starts or ends at id.
func (s GraphState) Incident(id string) bool {
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			return true
		}
	}
	return false
}

// AddNode returns a state with n appended. A node without an id gets a fresh
// one. A second process node is rejected with ErrDuplicateProcessNode.
func (s GraphState) AddNode(n Node) (GraphState, error) {
	if err := n.check(); err != nil {
		return s, err
	}
	if n.ID == "" {
		n.ID = NewNodeID(n.Kind)
	}
	if s.nodeIndex(n.ID) >= 0 {
		return s, &NodeError{NodeID: n.ID, Err: ErrDuplicateNode}
	}
	if n.Kind == KindProcess {
		if _, ok := s.Process(); ok {
			return s, &NodeError{NodeID: n.ID, Slug: n.Slug(), Err: ErrDuplicateProcessNode}
		}
	}

	nodes := make([]Node, len(s.nodes), len(s.nodes)+1)
	copy(nodes, s.nodes)
	return GraphState{nodes: append(nodes, n.Clone()), edges: s.edges}, nil
}

// AddEdge returns a state with e appended, without any dependency
// bookkeeping. Use Connect for edits coming from the canvas.
func (s GraphState) AddEdge(e Edge) (GraphState, error) {
	if e.ID == "" {
		e.ID = NewEdgeID()
	}
	if s.edgeIndex(e.ID) >= 0 {
		return s, fmt.Errorf("flow: edge %s already exists", e.ID)
	}
	if s.nodeIndex(e.Source) < 0 {
		return s, fmt.Errorf("%w: edge %s source %q", ErrNodeNotFound, e.ID, e.Source)
	}
	if s.nodeIndex(e.Target) < 0 {
		return s, fmt.Errorf("%w: edge %s target %q", ErrNodeNotFound, e.ID, e.Target)
	}

	edges := make([]Edge, len(s.edges), len(s.edges)+1)
	copy(edges, s.edges)
	return GraphState{nodes: s.nodes, edges: append(edges, e)}, nil
}

// RemoveEdge returns a state without the edge, without any dependency
// bookkeeping. Removing an unknown edge is a no-op.
func (s GraphState) RemoveEdge(id string) GraphState {
	i := s.edgeIndex(id)
	if i < 0 {
		return s
	}
	edges := make([]Edge, 0, len(s.edges)-1)
	edges = append(edges, s.edges[:i]...)
	edges = append(edges, s.edges[i+1:]...)
	return GraphState{nodes: s.nodes, edges: edges}
}

// RemoveNode returns a state without the node and its incident edges. Each
// removed edge goes through Disconnect so dependents forget the node's slug.
func (s GraphState) RemoveNode(id string) (GraphState, error) {
	if s.nodeIndex(id) < 0 {
		return s, &NodeError{NodeID: id, Err: ErrNodeNotFound}
	}
	out := s
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			out = Disconnect(out, e.ID)
		}
	}
	i := out.nodeIndex(id)
	nodes := make([]Node, 0, len(out.nodes)-1)
	nodes = append(nodes, out.nodes[:i]...)
	nodes = append(nodes, out.nodes[i+1:]...)
	return GraphState{nodes: nodes, edges: out.edges}, nil
}

// UpdateNode replaces the payload of node id with the payload of n, as when a
// node form is saved. The kind, position and recorded dependencies of the
// existing node are kept. Renaming a task's slug renames it in the
// dependency lists of its dependents.
func (s GraphState) UpdateNode(id string, n Node) (GraphState, error) {
	i := s.nodeIndex(id)
	if i < 0 {
		return s, &NodeError{NodeID: id, Err: ErrNodeNotFound}
	}
	old := s.nodes[i]
	if n.Kind != old.Kind {
		return s, &NodeError{NodeID: id, Err: fmt.Errorf("%w: cannot change type %s to %s", ErrInvalidNode, old.Kind, n.Kind)}
	}
	if err := n.check(); err != nil {
		return s, err
	}
	if err := checkFields(n); err != nil {
		return s, &NodeError{NodeID: id, Slug: n.Slug(), Err: err}
	}

	updated := n.Clone()
	updated.ID = old.ID
	updated.Position = old.Position
	if td := updated.taskData(); td != nil {
		td.DependentTaskSlug = old.Dependencies().clone()
	}

	out := s.replaceNode(i, updated)
	if old.dependencyCarrier() && old.Slug() != updated.Slug() {
		out = out.renameDependency(id, old.Slug(), updated.Slug())
	}
	return out, nil
}

// ConvertMaster turns a master node into a task node that references the
// master's slug. Edges and recorded dependencies are kept.
func (s GraphState) ConvertMaster(id string) (GraphState, error) {
	i := s.nodeIndex(id)
	if i < 0 {
		return s, &NodeError{NodeID: id, Err: ErrNodeNotFound}
	}
	old := s.nodes[i]
	if old.Kind != KindMaster {
		return s, &NodeError{NodeID: id, Err: fmt.Errorf("%w: %s node is not a master", ErrInvalidNode, old.Kind)}
	}
	td := old.Master.TaskData.clone()
	if td.MasterTaskTemplateSlug == "" {
		td.MasterTaskTemplateSlug = td.Slug
	}
	converted := Node{ID: old.ID, Kind: KindTask, Position: old.Position, Task: &td}
	return s.replaceNode(i, converted), nil
}

// renameDependency rewrites from to to in every direct dependent of source.
func (s GraphState) renameDependency(source, from, to string) GraphState {
	out := s
	for _, e := range s.edges {
		if e.Source != source {
			continue
		}
		j := out.nodeIndex(e.Target)
		if j < 0 {
			continue
		}
		dst := out.nodes[j]
		if !dst.dependencyCarrier() {
			continue
		}
		dst = dst.Clone()
		td := dst.taskData()
		td.DependentTaskSlug = td.DependentTaskSlug.Rename(from, to)
		out = out.replaceNode(j, dst)
	}
	return out
}

func (s GraphState) replaceNode(i int, n Node) GraphState {
	nodes := make([]Node, len(s.nodes))
	copy(nodes, s.nodes)
	nodes[i] = n
	return GraphState{nodes: nodes, edges: s.edges}
}

func (s GraphState) nodeIndex(id string) int {
	for i, n := range s.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (s GraphState) edgeIndex(id string) int {
	for i, e := range s.edges {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// ValidateAcyclic checks that the edges don't form a cycle using DFS.
func ValidateAcyclic(nodes []Node, edges []Edge) error {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	// Walk in node order so the reported cycle is stable.
	var order []string
	state := make(map[string]int)
	add := func(id string) {
		if _, ok := state[id]; !ok {
			state[id] = unvisited
			order = append(order, id)
		}
	}
	for _, n := range nodes {
		add(n.ID)
	}
	// Also include nodes referenced only in edges.
	for _, e := range edges {
		add(e.Source)
		add(e.Target)
	}

	var stack []string
	var cycle []string
	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = visiting
		stack = append(stack, id)
		for _, next := range adj[id] {
			switch state[next] {
			case visiting:
				for k := len(stack) - 1; k >= 0; k-- {
					if stack[k] == next {
						cycle = append([]string(nil), stack[k:]...)
						break
					}
				}
				return true
			case unvisited:
				if dfs(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = visited
		return false
	}

	for _, id := range order {
		if state[id] == unvisited && dfs(id) {
			return &CycleError{Slugs: slugsFor(nodes, cycle)}
		}
	}
	return nil
}

// slugsFor maps node ids to slugs, falling back to the id.
func slugsFor(nodes []Node, ids []string) []string {
	slugByID := make(map[string]string, len(nodes))
	for _, n := range nodes {
		slugByID[n.ID] = n.Slug()
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if slug := slugByID[id]; slug != "" {
			out[i] = slug
		} else {
			out[i] = id
		}
	}
	return out
}
