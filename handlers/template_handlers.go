package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/carlvellotti/meme-mage-sub001/internal/db"
	"github.com/carlvellotti/meme-mage-sub001/utils"
)

// ListTemplates returns all templates, newest first.
func (h *ApplicationHandler) ListTemplates(c *fiber.Ctx) error {
	templates, err := h.Templates.List(c.Context())
	if err != nil {
		h.Logger.Errorf("Error listing templates: %v", err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not list templates")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, templates)
}

// GetTemplate returns a single template by ID.
func (h *ApplicationHandler) GetTemplate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid template ID format: %v", err))
	}

	tpl, err := h.Templates.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrTemplateNotFound) {
			return utils.RespondWithError(c, fiber.StatusNotFound, "Template not found")
		}
		h.Logger.Errorf("Error fetching template %s: %v", id, err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not fetch template")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, tpl)
}
