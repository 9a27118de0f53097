package server

import (
	"github.com/gofiber/fiber/v2"

	"reverie/internal/middleware"
	"reverie/internal/models"
	"reverie/internal/service"
)

// CreateDream handles POST /api/dreams
func (s *Server) CreateDream(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)

	var req service.CreateDreamInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	dream, err := s.dreamService.Create(c.UserContext(), userID, req)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dream)
}

// GetDreams handles GET /api/dreams with filtering, sorting and pagination.
func (s *Server) GetDreams(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)

	page, err := s.dreamService.List(c.UserContext(), userID,
		parseFilter(c), parseSort(c), parsePage(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(page)
}

// GetDream handles GET /api/dreams/:id
func (s *Server) GetDream(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}

	dream, err := s.dreamService.Get(c.UserContext(), userID, id)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(dream)
}

// UpdateDream handles PUT /api/dreams/:id with partial update semantics:
// absent fields are untouched, explicit nulls clear nullable fields.
func (s *Server) UpdateDream(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}

	var req service.UpdateDreamInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	dream, err := s.dreamService.Update(c.UserContext(), userID, id, req)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(dream)
}

// DeleteDream handles DELETE /api/dreams/:id
func (s *Server) DeleteDream(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}

	if err := s.dreamService.Delete(c.UserContext(), userID, id); err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Dream deleted"})
}

// ToggleFavorite handles POST /api/dreams/:id/favorite
func (s *Server) ToggleFavorite(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}

	favorite, err := s.dreamService.ToggleFavorite(c.UserContext(), userID, id)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "is_favorite": favorite})
}

// GetDreamAnalyses handles GET /api/dreams/:id/analyses
func (s *Server) GetDreamAnalyses(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}

	analyses, err := s.dreamService.Analyses(c.UserContext(), userID, id)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"items": analyses})
}

// GetDreamStats handles GET /api/dreams/stats
func (s *Server) GetDreamStats(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)

	stats, err := s.dreamService.Stats(c.UserContext(), userID)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(stats)
}
