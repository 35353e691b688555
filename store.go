package flow

import (
	"context"
	"errors"
)

var (
	ErrDuplicateProcessNode        = errors.New("flow: only one process node is allowed")
	ErrDuplicateNode               = errors.New("flow: node id already exists")
	ErrInvalidNode                 = errors.New("flow: invalid node")
	ErrInvalidDependencyConnection = errors.New("flow: invalid dependency connection")
	ErrCyclicDependency            = errors.New("flow: cyclic task dependency")
	ErrDisconnectedTaskNode        = errors.New("flow: task node is not connected to any other node")
	ErrMalformedJSONField          = errors.New("flow: field is not valid JSON")
	ErrSelfLoop                    = errors.New("flow: node cannot connect to itself")
	ErrMissingProcessNode          = errors.New("flow: template has no process node")
	ErrMasterNodePresent           = errors.New("flow: master nodes must be converted or removed")
	ErrDuplicateSlug               = errors.New("flow: slug is used by more than one task")
	ErrNodeNotFound                = errors.New("flow: node not found")
	ErrEdgeNotFound                = errors.New("flow: edge not found")
	ErrTemplateNotFound            = errors.New("flow: template not found")
	ErrEmptyTemplate               = errors.New("flow: cannot save an empty template")
	ErrStaleLoad                   = errors.New("flow: canvas changed while the load was pending")
	ErrCanvasNotEmpty              = errors.New("flow: canvas is not empty")
)

// Store persists saved canvas templates and reusable task templates.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Canvas templates
	SaveTemplate(ctx context.Context, t *Template) (*Template, error)
	GetTemplate(ctx context.Context, id string) (*Template, error)
	ListTemplates(ctx context.Context) ([]Template, error)
	DeleteTemplate(ctx context.Context, id string) error

	// Task templates
	SaveTaskTemplate(ctx context.Context, t *TaskTemplate) (string, error)
	UpdateTaskTemplate(ctx context.Context, t *TaskTemplate) error
	ListTaskTemplates(ctx context.Context) ([]TaskTemplate, error)
	DeleteTaskTemplate(ctx context.Context, id string) error
}
