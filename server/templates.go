package server

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/meikuraledutech/flow"
)

func (s *Server) createSchema(c fiber.Ctx) error {
	if err := s.store.CreateSchema(c.Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "schema created"})
}

func (s *Server) dropSchema(c fiber.Ctx) error {
	if err := s.store.DropSchema(c.Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "schema dropped"})
}

// saveTemplate stores a canvas posted by the editor. Ids are regenerated so
// the stored copy never collides with a canvas that is still open.
func (s *Server) saveTemplate(c fiber.Ctx) error {
	var t flow.Template
	if err := c.Bind().JSON(&t); err != nil {
		return badBody(c)
	}
	fresh, err := flow.RegenerateIDs(t)
	if err != nil {
		return s.fail(c, err)
	}
	saved, err := s.store.SaveTemplate(c.Context(), &fresh)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (s *Server) listTemplates(c fiber.Ctx) error {
	templates, err := s.store.ListTemplates(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(templates)
}

func (s *Server) getTemplate(c fiber.Ctx) error {
	t, err := s.store.GetTemplate(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if t == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "template not found"})
	}
	return c.JSON(t)
}

func (s *Server) deleteTemplate(c fiber.Ctx) error {
	if err := s.store.DeleteTemplate(c.Context(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) saveTaskTemplate(c fiber.Ctx) error {
	var t flow.TaskTemplate
	if err := c.Bind().JSON(&t); err != nil {
		return badBody(c)
	}
	if err := checkTaskTemplate(t); err != nil {
		return s.fail(c, err)
	}
	id, err := s.store.SaveTaskTemplate(c.Context(), &t)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (s *Server) listTaskTemplates(c fiber.Ctx) error {
	tasks, err := s.store.ListTaskTemplates(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(tasks)
}

func (s *Server) updateTaskTemplate(c fiber.Ctx) error {
	var t flow.TaskTemplate
	if err := c.Bind().JSON(&t); err != nil {
		return badBody(c)
	}
	t.ID = c.Params("id")
	if err := checkTaskTemplate(t); err != nil {
		return s.fail(c, err)
	}
	if err := s.store.UpdateTaskTemplate(c.Context(), &t); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) deleteTaskTemplate(c fiber.Ctx) error {
	if err := s.store.DeleteTaskTemplate(c.Context(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// publishTaskTemplate sends a stored task template to the admin API as a
// master task template.
func (s *Server) publishTaskTemplate(c fiber.Ctx) error {
	if s.admin == nil {
		return s.fail(c, errAdminDisabled)
	}
	t, err := s.findTaskTemplate(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.admin.CreateMasterTaskTemplate(c.Context(), t.Data); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "master task template created"})
}

// republishTaskTemplate overwrites the remote master task template :master
// with a stored task template.
func (s *Server) republishTaskTemplate(c fiber.Ctx) error {
	if s.admin == nil {
		return s.fail(c, errAdminDisabled)
	}
	t, err := s.findTaskTemplate(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.admin.UpdateMasterTaskTemplate(c.Context(), c.Params("master"), t.Data); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "master task template updated"})
}

func (s *Server) findTaskTemplate(ctx context.Context, id string) (*flow.TaskTemplate, error) {
	tasks, err := s.store.ListTaskTemplates(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i], nil
		}
	}
	return nil, flow.ErrTemplateNotFound
}

// checkTaskTemplate applies the task form rules to a stored template.
func checkTaskTemplate(t flow.TaskTemplate) error {
	if t.Kind == flow.KindMaster {
		return flow.CheckNode(flow.NewMasterNode("", flow.MasterData{TaskData: t.Data}))
	}
	return flow.CheckNode(flow.NewTaskNode("", t.Data))
}
