package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meikuraledutech/flow"
)

// SaveTemplate saves a full canvas (nodes + edges) in one transaction.
// A template without an ID gets an auto-generated UUID. Saving an existing
// ID replaces it. Returns the template with its ID and metadata filled in.
func (s *PGStore) SaveTemplate(ctx context.Context, t *flow.Template) (*flow.Template, error) {
	if len(t.Nodes) == 0 {
		return nil, flow.ErrEmptyTemplate
	}
	// Same invariants as a live canvas.
	if err := flow.CheckTemplate(t); err != nil {
		return nil, err
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Metadata.CreatedAt.IsZero() {
		t.Metadata.CreatedAt = time.Now().UTC()
	}
	t.Metadata.NodeCount = len(t.Nodes)
	t.Metadata.EdgeCount = len(t.Edges)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("flow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Replace semantics: nodes and edges cascade with the template row.
	if _, err := tx.Exec(ctx, `DELETE FROM flow_templates WHERE id = $1`, t.ID); err != nil {
		return nil, fmt.Errorf("flow: delete template: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO flow_templates (id, name, created_at) VALUES ($1, $2, $3)`,
		t.ID, t.Name, t.Metadata.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("flow: insert template: %w", err)
	}

	for i, n := range t.Nodes {
		data, err := n.PayloadJSON()
		if err != nil {
			return nil, err
		}
		pos, err := json.Marshal(n.Position)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO flow_template_nodes (id, template_id, seq, kind, position, data) VALUES ($1, $2, $3, $4, $5, $6)`,
			n.ID, t.ID, i, string(n.Kind), pos, data,
		); err != nil {
			return nil, fmt.Errorf("flow: insert node %s: %w", n.ID, err)
		}
	}

	for i, e := range t.Edges {
		if _, err := tx.Exec(ctx,
			`INSERT INTO flow_template_edges (id, template_id, seq, source_id, target_id) VALUES ($1, $2, $3, $4, $5)`,
			e.ID, t.ID, i, e.Source, e.Target,
		); err != nil {
			return nil, fmt.Errorf("flow: insert edge %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("flow: commit: %w", err)
	}
	return t, nil
}

// GetTemplate retrieves a full canvas by its ID.
// Returns nil, nil if the template doesn't exist.
func (s *PGStore) GetTemplate(ctx context.Context, id string) (*flow.Template, error) {
	t := &flow.Template{ID: id}
	err := s.db.QueryRow(ctx,
		`SELECT name, created_at FROM flow_templates WHERE id = $1`, id,
	).Scan(&t.Name, &t.Metadata.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("flow: get template: %w", err)
	}
	if err := s.loadGraph(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTemplates returns every template, oldest first.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListTemplates(ctx context.Context) ([]flow.Template, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, created_at FROM flow_templates ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("flow: list templates: %w", err)
	}
	templates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (flow.Template, error) {
		var t flow.Template
		err := row.Scan(&t.ID, &t.Name, &t.Metadata.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("flow: scan template: %w", err)
	}

	for i := range templates {
		if err := s.loadGraph(ctx, &templates[i]); err != nil {
			return nil, err
		}
	}
	if templates == nil {
		templates = []flow.Template{}
	}
	return templates, nil
}

// DeleteTemplate removes a template with its nodes and edges.
// No error if the template doesn't exist.
func (s *PGStore) DeleteTemplate(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM flow_templates WHERE id = $1`, id); err != nil {
		return fmt.Errorf("flow: delete template: %w", err)
	}
	return nil
}

func (s *PGStore) loadGraph(ctx context.Context, t *flow.Template) error {
	rows, err := s.db.Query(ctx,
		`SELECT id, kind, position, data FROM flow_template_nodes WHERE template_id = $1 ORDER BY seq`, t.ID)
	if err != nil {
		return fmt.Errorf("flow: query nodes: %w", err)
	}
	defer rows.Close()

	t.Nodes = []flow.Node{}
	for rows.Next() {
		var (
			id, kind  string
			pos, data []byte
		)
		if err := rows.Scan(&id, &kind, &pos, &data); err != nil {
			return fmt.Errorf("flow: scan node: %w", err)
		}
		var p flow.Position
		if err := json.Unmarshal(pos, &p); err != nil {
			return fmt.Errorf("flow: decode position of node %s: %w", id, err)
		}
		n, err := flow.DecodeNode(id, flow.NodeKind(kind), p, data)
		if err != nil {
			return err
		}
		t.Nodes = append(t.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("flow: rows nodes: %w", err)
	}

	rows, err = s.db.Query(ctx,
		`SELECT id, source_id, target_id FROM flow_template_edges WHERE template_id = $1 ORDER BY seq`, t.ID)
	if err != nil {
		return fmt.Errorf("flow: query edges: %w", err)
	}
	defer rows.Close()

	t.Edges = []flow.Edge{}
	for rows.Next() {
		var e flow.Edge
		if err := rows.Scan(&e.ID, &e.Source, &e.Target); err != nil {
			return fmt.Errorf("flow: scan edge: %w", err)
		}
		t.Edges = append(t.Edges, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("flow: rows edges: %w", err)
	}

	t.Metadata.NodeCount = len(t.Nodes)
	t.Metadata.EdgeCount = len(t.Edges)
	return nil
}
