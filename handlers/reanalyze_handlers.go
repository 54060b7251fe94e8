package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/carlvellotti/meme-mage-sub001/internal/db"
	"github.com/carlvellotti/meme-mage-sub001/internal/jobs"
	"github.com/carlvellotti/meme-mage-sub001/utils"
)

// ReanalyzeTemplateRequest optionally carries reviewer feedback to steer
// the new analysis.
type ReanalyzeTemplateRequest struct {
	Feedback string `json:"feedback"`
}

// ReanalyzeTemplate queues a background re-analysis of an existing
// template and returns the job ID.
func (h *ApplicationHandler) ReanalyzeTemplate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid template ID format: %v", err))
	}

	// The body is optional; an empty POST re-analyzes without feedback.
	var payload ReanalyzeTemplateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Cannot parse JSON: %v", err))
		}
	}

	if _, err := h.Templates.Get(c.Context(), id); err != nil {
		if errors.Is(err, db.ErrTemplateNotFound) {
			return utils.RespondWithError(c, fiber.StatusNotFound, "Template not found")
		}
		h.Logger.Errorf("Error fetching template %s: %v", id, err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not fetch template")
	}

	job := jobs.NewReanalyzeTemplateJob(id, payload.Feedback, h.Orchestrator, h.Logger, h.OperationTimeout)
	if err := h.Dispatcher.SubmitJob(job); err != nil {
		h.Logger.Warnf("Could not queue re-analysis for template %s: %v", id, err)
		return utils.RespondWithError(c, fiber.StatusServiceUnavailable, "Re-analysis queue is full, try again later")
	}

	h.Logger.Infof("Queued re-analysis job %s for template %s", job.ID(), id)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":  "success",
		"message": "Re-analysis queued",
		"job_id":  job.ID(),
	})
}
