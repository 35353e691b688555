package flow

import (
	"errors"

	"go.uber.org/zap"
)

// ConnectResult is what the canvas gets back for a connect gesture.
type ConnectResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	Edge     *Edge  `json:"edge,omitempty"`
}

// LoadToken is issued when an asynchronous load starts. ApplyLoad refuses a
// token that was issued before the canvas was cleared or repopulated.
type LoadToken struct {
	generation uint64
}

// Session is one editing canvas. It is not safe for concurrent use; callers
// serialize mutations the way a UI event loop would.
type Session struct {
	state      GraphState
	dirty      bool
	loaded     bool
	generation uint64
	log        *zap.Logger
}

// NewSession returns an empty session.
func NewSession(log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{log: log}
}

// State returns the current graph. The value is immutable, so it is safe to
// keep after further edits.
func (s *Session) State() GraphState { return s.state }

// Dirty reports whether the canvas changed since it was loaded or saved.
func (s *Session) Dirty() bool { return s.dirty }

// Loaded reports whether the canvas came from a saved or remote template.
func (s *Session) Loaded() bool { return s.loaded }

// CanExport reports whether submitting makes sense: a process node exists
// and the canvas is either new or changed since it was loaded or saved.
func (s *Session) CanExport() bool {
	if _, ok := s.state.Process(); !ok {
		return false
	}
	return !s.loaded || s.dirty
}

// AddNode places a node on the canvas and returns it with its id filled in.
// A new node has no edges yet, so any dependencies it carries are dropped.
func (s *Session) AddNode(n Node) (Node, error) {
	n = n.Clone()
	if n.ID == "" {
		n.ID = NewNodeID(n.Kind)
	}
	if td := n.taskData(); td != nil {
		td.DependentTaskSlug = SlugSet{}
	}
	next, err := s.state.AddNode(n)
	if err != nil {
		s.log.Info("node rejected", zap.String("node", n.ID), zap.String("type", string(n.Kind)), zap.Error(err))
		return Node{}, err
	}
	s.commit(next)
	added, _ := next.Node(n.ID)
	return added, nil
}

// OnEdgeConnect handles a connect gesture. A self-loop is not accepted and
// carries no reason; every other refusal explains itself.
func (s *Session) OnEdgeConnect(source, target string) ConnectResult {
	next, edge, err := Connect(s.state, source, target)
	switch {
	case errors.Is(err, ErrSelfLoop):
		return ConnectResult{}
	case err != nil:
		s.log.Info("connection rejected",
			zap.String("source", source), zap.String("target", target), zap.Error(err))
		return ConnectResult{Reason: err.Error()}
	}
	s.commit(next)
	return ConnectResult{Accepted: true, Edge: &edge}
}

// OnEdgeRemove handles an edge deletion. It always succeeds.
func (s *Session) OnEdgeRemove(edgeID string) {
	if _, ok := s.state.Edge(edgeID); !ok {
		return
	}
	s.commit(Disconnect(s.state, edgeID))
}

// RemoveNode deletes a node and its edges.
func (s *Session) RemoveNode(id string) error {
	next, err := s.state.RemoveNode(id)
	if err != nil {
		return err
	}
	s.commit(next)
	return nil
}

// UpdateNode applies a node form.
func (s *Session) UpdateNode(id string, n Node) (Node, error) {
	next, err := s.state.UpdateNode(id, n)
	if err != nil {
		s.log.Info("node update rejected", zap.String("node", id), zap.Error(err))
		return Node{}, err
	}
	s.commit(next)
	updated, _ := next.Node(id)
	return updated, nil
}

// ConvertMaster turns a master node into a task node.
func (s *Session) ConvertMaster(id string) (Node, error) {
	next, err := s.state.ConvertMaster(id)
	if err != nil {
		return Node{}, err
	}
	s.commit(next)
	converted, _ := next.Node(id)
	return converted, nil
}

// Clear empties the canvas and invalidates pending loads.
func (s *Session) Clear() {
	s.state = GraphState{}
	s.dirty = false
	s.loaded = false
	s.generation++
}

// BeginLoad starts an asynchronous load.
func (s *Session) BeginLoad() LoadToken {
	return LoadToken{generation: s.generation}
}

// ApplyLoad replaces the canvas with state if nothing replaced or cleared the
// canvas since tok was issued.
func (s *Session) ApplyLoad(tok LoadToken, state GraphState) error {
	if tok.generation != s.generation {
		s.log.Info("discarding stale load", zap.Uint64("token", tok.generation), zap.Uint64("generation", s.generation))
		return ErrStaleLoad
	}
	s.state = state
	s.loaded = true
	s.dirty = false
	s.generation++
	return nil
}

// LoadTemplate replaces the canvas with a saved template, giving every node
// and edge a fresh id.
func (s *Session) LoadTemplate(t Template) error {
	fresh, err := RegenerateIDs(t)
	if err != nil {
		return err
	}
	state, err := NewGraphState(fresh.Nodes, fresh.Edges)
	if err != nil {
		return err
	}
	return s.ApplyLoad(s.BeginLoad(), state)
}

// ApplyExpansion places an expanded remote process template on the canvas.
// The canvas must still be empty and unchanged since tok was issued.
func (s *Session) ApplyExpansion(tok LoadToken, b ProcessBlueprint, origin Position) error {
	if tok.generation != s.generation {
		return ErrStaleLoad
	}
	if !s.state.Empty() {
		return ErrCanvasNotEmpty
	}
	state, err := ExpandBlueprint(b, origin)
	if err != nil {
		return err
	}
	return s.ApplyLoad(tok, state)
}

// MarkSaved records that the current canvas was submitted. Exporting again
// requires another change.
func (s *Session) MarkSaved() {
	s.loaded = true
	s.dirty = false
}

func (s *Session) commit(next GraphState) {
	s.state = next
	s.dirty = true
}
