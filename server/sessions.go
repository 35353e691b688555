package server

import (
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/export"
	"go.uber.org/zap"
)

// entry is one open canvas. mu serializes edits the way a UI event loop
// would.
type entry struct {
	mu   sync.Mutex
	sess *flow.Session
}

type registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func (r *registry) create(log *zap.Logger) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.entries[id] = &entry{sess: flow.NewSession(log.With(zap.String("session", id)))}
	r.mu.Unlock()
	return id
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *registry) delete(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

type sessionView struct {
	ID        string      `json:"id"`
	Nodes     []flow.Node `json:"nodes"`
	Edges     []flow.Edge `json:"edges"`
	Dirty     bool        `json:"dirty"`
	Loaded    bool        `json:"loaded"`
	CanExport bool        `json:"can_export"`
}

func viewOf(id string, sess *flow.Session) sessionView {
	st := sess.State()
	nodes, edges := st.Nodes(), st.Edges()
	if nodes == nil {
		nodes = []flow.Node{}
	}
	if edges == nil {
		edges = []flow.Edge{}
	}
	return sessionView{
		ID:        id,
		Nodes:     nodes,
		Edges:     edges,
		Dirty:     sess.Dirty(),
		Loaded:    sess.Loaded(),
		CanExport: sess.CanExport(),
	}
}

// withSession runs fn with the session named by the :id route parameter
// locked.
func (s *Server) withSession(c fiber.Ctx, fn func(*flow.Session) error) error {
	e, ok := s.sessions.get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.sess)
}

func (s *Server) createSession(c fiber.Ctx) error {
	id := s.sessions.create(s.log)
	e, _ := s.sessions.get(id)
	return c.Status(fiber.StatusCreated).JSON(viewOf(id, e.sess))
}

func (s *Server) getSession(c fiber.Ctx) error {
	return s.withSession(c, func(sess *flow.Session) error {
		return c.JSON(viewOf(c.Params("id"), sess))
	})
}

// clearSession empties the canvas. With ?close=true the session is dropped.
func (s *Server) clearSession(c fiber.Ctx) error {
	return s.withSession(c, func(sess *flow.Session) error {
		sess.Clear()
		if c.Query("close") == "true" {
			s.sessions.delete(c.Params("id"))
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func (s *Server) addNode(c fiber.Ctx) error {
	var n flow.Node
	if err := c.Bind().JSON(&n); err != nil {
		return badBody(c)
	}
	return s.withSession(c, func(sess *flow.Session) error {
		added, err := sess.AddNode(n)
		if err != nil {
			return s.fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(added)
	})
}

func (s *Server) updateNode(c fiber.Ctx) error {
	var n flow.Node
	if err := c.Bind().JSON(&n); err != nil {
		return badBody(c)
	}
	return s.withSession(c, func(sess *flow.Session) error {
		updated, err := sess.UpdateNode(c.Params("node"), n)
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(updated)
	})
}

func (s *Server) removeNode(c fiber.Ctx) error {
	return s.withSession(c, func(sess *flow.Session) error {
		if err := sess.RemoveNode(c.Params("node")); err != nil {
			return s.fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func (s *Server) convertMaster(c fiber.Ctx) error {
	return s.withSession(c, func(sess *flow.Session) error {
		converted, err := sess.ConvertMaster(c.Params("node"))
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(converted)
	})
}

type connectRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// connect answers 200 with the edge when the connection is accepted and 422
// with the reason when it is not.
func (s *Server) connect(c fiber.Ctx) error {
	var req connectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badBody(c)
	}
	return s.withSession(c, func(sess *flow.Session) error {
		res := sess.OnEdgeConnect(req.Source, req.Target)
		if !res.Accepted {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(res)
		}
		return c.JSON(res)
	})
}

func (s *Server) disconnect(c fiber.Ctx) error {
	return s.withSession(c, func(sess *flow.Session) error {
		sess.OnEdgeRemove(c.Params("edge"))
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func (s *Server) loadTemplate(c fiber.Ctx) error {
	t, err := s.store.GetTemplate(c.Context(), c.Params("template"))
	if err != nil {
		return s.fail(c, err)
	}
	if t == nil {
		return s.fail(c, flow.ErrTemplateNotFound)
	}
	return s.withSession(c, func(sess *flow.Session) error {
		if err := sess.LoadTemplate(*t); err != nil {
			return s.fail(c, err)
		}
		return c.JSON(viewOf(c.Params("id"), sess))
	})
}

type expandRequest struct {
	Position flow.Position `json:"position"`
}

// expandProcess places a remote process template on an empty canvas. The
// session is unlocked while the admin API is queried, so edits made in the
// meantime turn the fetched template into a stale load.
func (s *Server) expandProcess(c fiber.Ctx) error {
	if s.admin == nil {
		return s.fail(c, errAdminDisabled)
	}
	var req expandRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badBody(c)
		}
	}
	e, ok := s.sessions.get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}

	e.mu.Lock()
	empty := e.sess.State().Empty()
	tok := e.sess.BeginLoad()
	e.mu.Unlock()
	if !empty {
		return s.fail(c, flow.ErrCanvasNotEmpty)
	}

	bp, err := s.admin.FetchProcessTemplate(c.Context(), c.Params("process"))
	if err != nil {
		return s.fail(c, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.sess.ApplyExpansion(tok, *bp, req.Position); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(viewOf(c.Params("id"), e.sess))
}

func (s *Server) order(c fiber.Ctx) error {
	return s.withSession(c, func(sess *flow.Session) error {
		order, err := flow.Linearize(sess.State().Tasks())
		if err != nil {
			return s.fail(c, err)
		}
		if order == nil {
			order = []string{}
		}
		return c.JSON(fiber.Map{"order": order})
	})
}

func (s *Server) exportCSV(c fiber.Ctx) error {
	return s.withSession(c, func(sess *flow.Session) error {
		b, err := export.Build(sess.State(), s.opts.Export)
		if err != nil {
			return s.fail(c, err)
		}
		c.Set(fiber.HeaderContentType, "text/csv")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, export.FileName))
		return c.Send(b.CSV)
	})
}

// submit sends the canvas to the admin API. Only a new canvas, or one that
// changed since it was loaded or submitted, can be submitted.
func (s *Server) submit(c fiber.Ctx) error {
	if s.admin == nil {
		return s.fail(c, errAdminDisabled)
	}
	return s.withSession(c, func(sess *flow.Session) error {
		if !sess.CanExport() {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "nothing to submit"})
		}
		b, err := export.Build(sess.State(), s.opts.Export)
		if err != nil {
			return s.fail(c, err)
		}
		if err := s.admin.Submit(c.Context(), b); err != nil {
			return s.fail(c, err)
		}
		sess.MarkSaved()
		return c.JSON(fiber.Map{"process": b.Process.Slug, "order": b.Order})
	})
}

type saveRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// saveSession stores the canvas as a template.
func (s *Server) saveSession(c fiber.Ctx) error {
	var req saveRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badBody(c)
		}
	}
	return s.withSession(c, func(sess *flow.Session) error {
		st := sess.State()
		if st.Empty() {
			return s.fail(c, flow.ErrEmptyTemplate)
		}
		t, err := flow.RegenerateIDs(flow.TemplateFrom(st, req.ID, req.Name))
		if err != nil {
			return s.fail(c, err)
		}
		saved, err := s.store.SaveTemplate(c.Context(), &t)
		if err != nil {
			return s.fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(saved)
	})
}
