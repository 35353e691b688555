package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS flow_templates (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS flow_template_nodes (
    template_id TEXT NOT NULL REFERENCES flow_templates(id) ON DELETE CASCADE,
    id          TEXT NOT NULL,
    seq         INT NOT NULL,
    kind        TEXT NOT NULL,
    position    JSONB NOT NULL DEFAULT '{}',
    data        JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (template_id, id)
);

CREATE TABLE IF NOT EXISTS flow_template_edges (
    template_id TEXT NOT NULL REFERENCES flow_templates(id) ON DELETE CASCADE,
    id          TEXT NOT NULL,
    seq         INT NOT NULL,
    source_id   TEXT NOT NULL,
    target_id   TEXT NOT NULL,
    PRIMARY KEY (template_id, id),
    FOREIGN KEY (template_id, source_id) REFERENCES flow_template_nodes(template_id, id) ON DELETE CASCADE,
    FOREIGN KEY (template_id, target_id) REFERENCES flow_template_nodes(template_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS task_templates (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL DEFAULT 'task',
    data       JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_task_templates_created ON task_templates(created_at);
`

// CreateSchema creates the template tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the template tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS flow_template_edges, flow_template_nodes, flow_templates, task_templates CASCADE;`)
	return err
}
