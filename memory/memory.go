// Package memory implements flow.Store in process memory. It is used when no
// database is configured and in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meikuraledutech/flow"
)

// Store keeps templates in insertion order.
type Store struct {
	mu        sync.RWMutex
	templates []flow.Template
	tasks     []flow.TaskTemplate
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// CreateSchema is a no-op.
func (s *Store) CreateSchema(ctx context.Context) error { return nil }

// DropSchema forgets everything.
func (s *Store) DropSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = nil
	s.tasks = nil
	return nil
}

// SaveTemplate stores t, replacing any template with the same id.
func (s *Store) SaveTemplate(ctx context.Context, t *flow.Template) (*flow.Template, error) {
	if len(t.Nodes) == 0 {
		return nil, flow.ErrEmptyTemplate
	}
	if err := flow.CheckTemplate(t); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Metadata.NodeCount = len(t.Nodes)
	t.Metadata.EdgeCount = len(t.Edges)
	if t.Metadata.CreatedAt.IsZero() {
		t.Metadata.CreatedAt = time.Now().UTC()
	}

	stored := cloneTemplate(*t)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.templates {
		if s.templates[i].ID == t.ID {
			s.templates[i] = stored
			return t, nil
		}
	}
	s.templates = append(s.templates, stored)
	return t, nil
}

// GetTemplate returns nil, nil if the template does not exist.
func (s *Store) GetTemplate(ctx context.Context, id string) (*flow.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.templates {
		if t.ID == id {
			out := cloneTemplate(t)
			return &out, nil
		}
	}
	return nil, nil
}

// ListTemplates returns every template in save order.
func (s *Store) ListTemplates(ctx context.Context) ([]flow.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]flow.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, cloneTemplate(t))
	}
	return out, nil
}

// DeleteTemplate removes a template. No error if it doesn't exist.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.templates {
		if t.ID == id {
			s.templates = append(s.templates[:i], s.templates[i+1:]...)
			break
		}
	}
	return nil
}

// SaveTaskTemplate stores a task template and returns its id.
func (s *Store) SaveTaskTemplate(ctx context.Context, t *flow.TaskTemplate) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Kind == "" {
		t.Kind = flow.KindTask
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t.Clone())
	return t.ID, nil
}

// UpdateTaskTemplate returns flow.ErrTemplateNotFound for unknown ids.
func (s *Store) UpdateTaskTemplate(ctx context.Context, t *flow.TaskTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == t.ID {
			t.CreatedAt = s.tasks[i].CreatedAt
			if t.Kind == "" {
				t.Kind = s.tasks[i].Kind
			}
			s.tasks[i] = t.Clone()
			return nil
		}
	}
	return flow.ErrTemplateNotFound
}

// ListTaskTemplates returns every task template in save order.
func (s *Store) ListTaskTemplates(ctx context.Context) ([]flow.TaskTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]flow.TaskTemplate, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out, nil
}

// DeleteTaskTemplate removes a task template. No error if it doesn't exist.
func (s *Store) DeleteTaskTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			break
		}
	}
	return nil
}

func cloneTemplate(t flow.Template) flow.Template {
	out := t
	out.Nodes = make([]flow.Node, len(t.Nodes))
	for i, n := range t.Nodes {
		out.Nodes[i] = n.Clone()
	}
	out.Edges = append([]flow.Edge(nil), t.Edges...)
	return out
}

var _ flow.Store = (*Store)(nil)
