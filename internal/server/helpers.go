package server

import (
	"errors"
	"strings"
	"time"

	"reverie/internal/models"
	"reverie/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil after seeing it so Fiber's
// ErrorHandler does not overwrite the response.
var errResponseWritten = errors.New("response already written")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// parseID extracts the :id route parameter as a positive uint. On failure it
// writes a 400 JSON response and returns errResponseWritten; callers should
// return nil.
func (s *Server) parseID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid ID"))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// parsePage extracts page/pageSize query parameters with clamped bounds.
func parsePage(c *fiber.Ctx) repository.Page {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	size := c.QueryInt("pageSize", defaultPageSize)
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return repository.Page{Number: page, Size: size}
}

// parseFilter builds the dream list filter from query parameters. All
// criteria are optional and combined conjunctively.
func parseFilter(c *fiber.Ctx) repository.DreamFilter {
	filter := repository.DreamFilter{
		Search:        strings.TrimSpace(c.Query("search")),
		Mood:          strings.TrimSpace(c.Query("mood")),
		FavoritesOnly: c.QueryBool("favorites", false),
	}

	if raw := c.Query("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Tags = append(filter.Tags, t)
			}
		}
	}

	if from, ok := parseDate(c.Query("from")); ok {
		filter.From = &from
	}
	if to, ok := parseDate(c.Query("to")); ok {
		filter.To = &to
	}

	return filter
}

// parseSort extracts sortBy/sortDir query parameters. Unknown fields fall
// back in the repository layer.
func parseSort(c *fiber.Ctx) repository.Sort {
	return repository.Sort{
		Field:     c.Query("sortBy"),
		Direction: c.Query("sortDir"),
	}
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
