// Package server exposes template storage and editing sessions over HTTP.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/admin"
	"github.com/meikuraledutech/flow/export"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Admin is the remote admin API as seen by the server.
type Admin interface {
	FetchProcessTemplate(ctx context.Context, id string) (*flow.ProcessBlueprint, error)
	Submit(ctx context.Context, b *export.Bundle) error
	CreateMasterTaskTemplate(ctx context.Context, d flow.TaskData) error
	UpdateMasterTaskTemplate(ctx context.Context, id string, d flow.TaskData) error
}

// Options tunes the server.
type Options struct {
	Export flow.ExportOptions
}

// Server wires the store, the admin API and the editing sessions to routes.
type Server struct {
	app      *fiber.App
	store    flow.Store
	admin    Admin
	sessions *registry
	log      *zap.Logger
	opts     Options
}

var errAdminDisabled = errors.New("admin API is not configured")

// New builds the server. adm may be nil, in which case the routes that need
// the admin API answer 503.
func New(store flow.Store, adm Admin, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		app:      fiber.New(),
		store:    store,
		admin:    adm,
		sessions: newRegistry(),
		log:      log,
		opts:     opts,
	}
	s.app.Use(s.logRequests)
	s.routes()
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.Info("listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	app := s.app

	// ── Schema ────────────────────────────────────────────────────────
	app.Post("/schema", s.createSchema)
	app.Delete("/schema", s.dropSchema)

	// ── Saved canvas templates ────────────────────────────────────────
	app.Post("/templates", s.saveTemplate)
	app.Get("/templates", s.listTemplates)
	app.Get("/templates/:id", s.getTemplate)
	app.Delete("/templates/:id", s.deleteTemplate)

	// ── Task templates ────────────────────────────────────────────────
	app.Post("/tasks", s.saveTaskTemplate)
	app.Get("/tasks", s.listTaskTemplates)
	app.Put("/tasks/:id", s.updateTaskTemplate)
	app.Delete("/tasks/:id", s.deleteTaskTemplate)
	app.Post("/tasks/:id/publish", s.publishTaskTemplate)
	app.Put("/tasks/:id/publish/:master", s.republishTaskTemplate)

	// ── Editing sessions ──────────────────────────────────────────────
	app.Post("/sessions", s.createSession)
	app.Get("/sessions/:id", s.getSession)
	app.Delete("/sessions/:id", s.clearSession)
	app.Post("/sessions/:id/nodes", s.addNode)
	app.Put("/sessions/:id/nodes/:node", s.updateNode)
	app.Delete("/sessions/:id/nodes/:node", s.removeNode)
	app.Post("/sessions/:id/nodes/:node/convert", s.convertMaster)
	app.Post("/sessions/:id/edges", s.connect)
	app.Delete("/sessions/:id/edges/:edge", s.disconnect)
	app.Post("/sessions/:id/load/:template", s.loadTemplate)
	app.Post("/sessions/:id/expand/:process", s.expandProcess)
	app.Get("/sessions/:id/order", s.order)
	app.Get("/sessions/:id/export.csv", s.exportCSV)
	app.Post("/sessions/:id/submit", s.submit)
	app.Post("/sessions/:id/save", s.saveSession)
}

func (s *Server) logRequests(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Info("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("took", time.Since(start)),
	)
	return err
}

// fail writes err as {"error": ..., "problems": [...]} with a status derived
// from its kind.
func (s *Server) fail(c fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	body := fiber.Map{"error": err.Error()}
	if errs := multierr.Errors(err); len(errs) > 1 {
		problems := make([]string, len(errs))
		for i, e := range errs {
			problems[i] = e.Error()
		}
		body["problems"] = problems
	}
	return c.Status(status).JSON(body)
}

func statusFor(err error) int {
	var apiErr *admin.APIError
	switch {
	case errors.As(err, &apiErr):
		return fiber.StatusBadGateway
	case errors.Is(err, errAdminDisabled):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, flow.ErrNodeNotFound),
		errors.Is(err, flow.ErrEdgeNotFound),
		errors.Is(err, flow.ErrTemplateNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, flow.ErrStaleLoad),
		errors.Is(err, flow.ErrCanvasNotEmpty):
		return fiber.StatusConflict
	case errors.Is(err, flow.ErrDuplicateProcessNode),
		errors.Is(err, flow.ErrDuplicateNode),
		errors.Is(err, flow.ErrInvalidNode),
		errors.Is(err, flow.ErrInvalidDependencyConnection),
		errors.Is(err, flow.ErrCyclicDependency),
		errors.Is(err, flow.ErrDisconnectedTaskNode),
		errors.Is(err, flow.ErrMalformedJSONField),
		errors.Is(err, flow.ErrMissingProcessNode),
		errors.Is(err, flow.ErrMasterNodePresent),
		errors.Is(err, flow.ErrDuplicateSlug),
		errors.Is(err, flow.ErrEmptyTemplate),
		errors.Is(err, flow.ErrSelfLoop):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

func badBody(c fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
}
