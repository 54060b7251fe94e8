package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/carlvellotti/meme-mage-sub001/internal/db"
	"github.com/carlvellotti/meme-mage-sub001/internal/media"
	"github.com/carlvellotti/meme-mage-sub001/utils"
)

// CropTemplateRequest is the requested crop rectangle in source pixels.
// Offsets may be negative; they are clamped against the actual video
// dimensions before transcoding.
type CropTemplateRequest struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width" validate:"gt=0"`
	Height int `json:"height" validate:"gt=0"`
}

// CropTemplate crops the template's current video into a new storage
// object and repoints video_url at it.
func (h *ApplicationHandler) CropTemplate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid template ID format: %v", err))
	}

	var payload CropTemplateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Cannot parse JSON: %v", err))
	}

	if err := validate.Struct(payload); err != nil {
		errors := utils.FormatValidationErrors(err)
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(errors, ", "))
	}

	h.Logger.Infof("Received crop request for template %s: %dx%d at (%d,%d)", id, payload.Width, payload.Height, payload.X, payload.Y)

	ctx, cancel := context.WithTimeout(c.Context(), h.OperationTimeout)
	defer cancel()

	rect := media.CropRect{X: payload.X, Y: payload.Y, Width: payload.Width, Height: payload.Height}
	outcome, err := h.Cropper.Apply(ctx, id, rect)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrTemplateNotFound):
			return utils.RespondWithError(c, fiber.StatusNotFound, "Template not found")
		case errors.Is(err, media.ErrInvalidCropGeometry):
			return utils.RespondWithError(c, fiber.StatusBadRequest, err.Error())
		default:
			h.Logger.Errorf("Crop failed for template %s: %v", id, err)
			return utils.RespondWithError(c, fiber.StatusInternalServerError, fmt.Sprintf("Crop failed: %v", err))
		}
	}

	return c.JSON(fiber.Map{
		"success":           true,
		"updated_video_url": outcome.UpdatedVideoURL,
	})
}
