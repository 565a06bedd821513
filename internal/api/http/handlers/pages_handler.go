package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/gift-exchange/internal/api/dto"
	"github.com/spec-kit/gift-exchange/internal/auth"
)

// PagesHandler renders the placeholder for any page the Route Guard allowed.
type PagesHandler struct{}

// NewPagesHandler constructs handler.
func NewPagesHandler() *PagesHandler {
	return &PagesHandler{}
}

// Render handles GET on page paths.
func (h *PagesHandler) Render(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"path":    c.Path(),
			"session": dto.NewSessionResponse(auth.SessionFromContext(c)),
		},
	})
}
