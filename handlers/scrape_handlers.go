package handlers

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/carlvellotti/meme-mage-sub001/utils"
)

// ScrapeTemplatesRequest defines the expected request body for batch ingestion.
type ScrapeTemplatesRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,dive,required,url"`
}

var validate = validator.New()

// ScrapeTemplates ingests a batch of source URLs. Items are processed
// independently; the response reports the terminal outcome of each one.
func (h *ApplicationHandler) ScrapeTemplates(c *fiber.Ctx) error {
	var payload ScrapeTemplatesRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Cannot parse JSON: %v", err))
	}

	if err := validate.Struct(payload); err != nil {
		errors := utils.FormatValidationErrors(err)
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(errors, ", "))
	}

	h.Logger.Infof("Received scrape request for %d URLs", len(payload.URLs))

	// Stage timeouts are enforced inside the orchestrator, so the batch
	// only ends early if the client goes away.
	results := h.Orchestrator.ProcessBatch(c.Context(), payload.URLs)

	return utils.RespondWithJSON(c, fiber.StatusOK, results)
}
