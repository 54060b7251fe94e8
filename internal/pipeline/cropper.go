package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/carlvellotti/meme-mage-sub001/internal/artifacts"
	"github.com/carlvellotti/meme-mage-sub001/internal/media"
)

// CropOutcome reports a successful crop operation.
type CropOutcome struct {
	TemplateID      uuid.UUID
	UpdatedVideoURL string
}

// Cropper applies a crop to the current video of a persisted template.
// The cropped result is written under a new storage key and video_url is
// repointed only after the upload succeeds, so a failure at any stage
// leaves the record and the original object untouched.
type Cropper struct {
	templates  TemplateStore
	store      ObjectStore
	tool       media.Tool
	scratchDir string
	log        *logrus.Logger
}

// NewCropper creates a Cropper.
func NewCropper(templates TemplateStore, store ObjectStore, tool media.Tool, scratchDir string, log *logrus.Logger) *Cropper {
	return &Cropper{
		templates:  templates,
		store:      store,
		tool:       tool,
		scratchDir: scratchDir,
		log:        log,
	}
}

// Apply crops the template's video to the requested rectangle, clamped to
// the actual dimensions of the file.
func (cr *Cropper) Apply(ctx context.Context, id uuid.UUID, requested media.CropRect) (*CropOutcome, error) {
	tpl, err := cr.templates.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	bucket, key, err := artifacts.ParsePublicURL(tpl.VideoURL)
	if err != nil {
		return nil, fmt.Errorf("locating source object: %w", err)
	}

	content, err := cr.store.Download(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("downloading source object: %w", err)
	}

	// Scratch files are unique per operation so concurrent crops of the
	// same template cannot collide.
	opID := uuid.NewString()
	inputPath := filepath.Join(cr.scratchDir, fmt.Sprintf("crop_src_%s%s", opID, path.Ext(key)))
	outputPath := filepath.Join(cr.scratchDir, fmt.Sprintf("crop_out_%s%s", opID, path.Ext(key)))
	defer cleanupFiles(cr.log, inputPath, outputPath)

	if err := os.WriteFile(inputPath, content, 0o644); err != nil {
		return nil, fmt.Errorf("staging source object: %w", err)
	}

	// Probe the staged file rather than trusting any stored dimensions;
	// the object behind video_url may have changed since ingestion.
	dims, err := cr.tool.Probe(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("probing source video: %w", err)
	}

	rect, err := media.ClampCrop(requested, dims)
	if err != nil {
		return nil, err
	}

	cr.log.Infof("Cropping template %s to %dx%d at (%d,%d)", id, rect.Width, rect.Height, rect.X, rect.Y)

	if err := cr.tool.Crop(ctx, inputPath, outputPath, rect); err != nil {
		return nil, fmt.Errorf("cropping video: %w", err)
	}

	cropped, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("reading cropped output: %w", err)
	}

	newKey := artifacts.DeriveCroppedKey(key, time.Now())
	newURL, err := cr.store.Upload(ctx, bucket, newKey, cropped, "")
	if err != nil {
		return nil, fmt.Errorf("uploading cropped object: %w", err)
	}

	if err := cr.templates.Update(ctx, id, map[string]interface{}{"video_url": newURL}); err != nil {
		return nil, fmt.Errorf("repointing video_url: %w", err)
	}

	cr.log.Infof("Template %s video_url repointed to %s", id, newURL)
	return &CropOutcome{TemplateID: id, UpdatedVideoURL: newURL}, nil
}
