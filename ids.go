package flow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewNodeID returns a fresh node id prefixed with the node kind.
func NewNodeID(kind NodeKind) string {
	return string(kind) + "-" + uuid.NewString()
}

// NewEdgeID returns a fresh edge id.
func NewEdgeID() string {
	return "edge-" + uuid.NewString()
}

// RegenerateIDs returns a copy of t where every node and edge has a new id
// and edge endpoints point at the renamed nodes. Loading the same template
// twice therefore never produces colliding ids.
func RegenerateIDs(t Template) (Template, error) {
	out := Template{
		ID:       t.ID,
		Name:     t.Name,
		Nodes:    make([]Node, 0, len(t.Nodes)),
		Edges:    make([]Edge, 0, len(t.Edges)),
		Metadata: t.Metadata,
	}

	renamed := make(map[string]string, len(t.Nodes))
	for _, n := range t.Nodes {
		nn := n.Clone()
		nn.ID = NewNodeID(n.Kind)
		renamed[n.ID] = nn.ID
		out.Nodes = append(out.Nodes, nn)
	}

	for _, e := range t.Edges {
		src, ok := renamed[e.Source]
		if !ok {
			return Template{}, fmt.Errorf("%w: edge %s source %q", ErrNodeNotFound, e.ID, e.Source)
		}
		dst, ok := renamed[e.Target]
		if !ok {
			return Template{}, fmt.Errorf("%w: edge %s target %q", ErrNodeNotFound, e.ID, e.Target)
		}
		out.Edges = append(out.Edges, Edge{ID: NewEdgeID(), Source: src, Target: dst})
	}

	return out, nil
}

// TemplateFrom captures state as a template ready to be saved.
func TemplateFrom(s GraphState, id, name string) Template {
	if id == "" {
		id = "template-" + uuid.NewString()
	}
	nodes, edges := s.Nodes(), s.Edges()
	return Template{
		ID:    id,
		Name:  name,
		Nodes: nodes,
		Edges: edges,
		Metadata: TemplateMetadata{
			NodeCount: len(nodes),
			EdgeCount: len(edges),
			CreatedAt: time.Now().UTC(),
		},
	}
}
