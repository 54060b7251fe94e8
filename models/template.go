package models

import (
	"time"

	"github.com/google/uuid"
)

// Template represents one ingested meme source clip and its derived artifacts
// in the unprocessed_templates table. Pointer fields map to nullable columns;
// they stay absent until the stage that produces them has succeeded.
type Template struct {
	ID             uuid.UUID `json:"id"`
	SourceURL      string    `json:"source_url"`
	VideoURL       string    `json:"video_url"`
	PosterURL      *string   `json:"poster_url,omitempty"`
	Name           *string   `json:"name,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
	Reviewed       bool      `json:"reviewed"`
	CaptionExample *string   `json:"caption_example,omitempty"`
	Status         string    `json:"status"` // processing, completed, failed
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}
