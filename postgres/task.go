package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/meikuraledutech/flow"
)

// SaveTaskTemplate inserts a reusable task template.
// If t.ID is empty, a UUID is auto-generated.
// Returns the template ID (generated or provided).
func (s *PGStore) SaveTaskTemplate(ctx context.Context, t *flow.TaskTemplate) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Kind == "" {
		t.Kind = flow.KindTask
	}
	data, err := json.Marshal(t.Data)
	if err != nil {
		return "", fmt.Errorf("flow: encode task template: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO task_templates (id, kind, data) VALUES ($1, $2, $3) RETURNING created_at`,
		t.ID, string(t.Kind), data,
	).Scan(&t.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("flow: insert task template: %w", err)
	}
	return t.ID, nil
}

// UpdateTaskTemplate updates the data of an existing task template.
// Returns ErrTemplateNotFound if it doesn't exist.
func (s *PGStore) UpdateTaskTemplate(ctx context.Context, t *flow.TaskTemplate) error {
	data, err := json.Marshal(t.Data)
	if err != nil {
		return fmt.Errorf("flow: encode task template: %w", err)
	}
	ct, err := s.db.Exec(ctx,
		`UPDATE task_templates SET data = $1 WHERE id = $2`,
		data, t.ID,
	)
	if err != nil {
		return fmt.Errorf("flow: update task template: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return flow.ErrTemplateNotFound
	}
	return nil
}

// ListTaskTemplates returns all task templates, ordered by created_at.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListTaskTemplates(ctx context.Context) ([]flow.TaskTemplate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, kind, data, created_at FROM task_templates ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("flow: list task templates: %w", err)
	}
	defer rows.Close()

	out := []flow.TaskTemplate{}
	for rows.Next() {
		var (
			t    flow.TaskTemplate
			kind string
			data []byte
		)
		if err := rows.Scan(&t.ID, &kind, &data, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("flow: scan task template: %w", err)
		}
		t.Kind = flow.NodeKind(kind)
		if err := json.Unmarshal(data, &t.Data); err != nil {
			return nil, fmt.Errorf("flow: decode task template %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flow: rows task templates: %w", err)
	}
	return out, nil
}

// DeleteTaskTemplate deletes a task template by its ID.
// No error if it doesn't exist.
func (s *PGStore) DeleteTaskTemplate(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM task_templates WHERE id = $1`, id); err != nil {
		return fmt.Errorf("flow: delete task template: %w", err)
	}
	return nil
}
