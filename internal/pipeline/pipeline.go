// Package pipeline sequences the ingestion stages that turn a scraped
// source clip into a persisted template record, and applies on-demand
// crop operations to records that already exist. Stages run against
// small interfaces so tests can swap the external tools and services
// for fakes.
package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/carlvellotti/meme-mage-sub001/internal/aiclient"
	"github.com/carlvellotti/meme-mage-sub001/internal/scraper"
	"github.com/carlvellotti/meme-mage-sub001/models"
)

// ObjectStore is the slice of the artifact store the pipeline uses.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key string, content []byte, contentType string) (string, error)
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// AIClient analyzes template videos and generates embeddings.
type AIClient interface {
	AnalyzeTemplate(ctx context.Context, videoURL, captionExample, feedback string) (*aiclient.Analysis, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ThumbnailGenerator produces a poster frame URL for a video URL.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, videoURL string) (string, error)
}

// Scraper fetches a source clip onto the local filesystem.
type Scraper interface {
	Fetch(ctx context.Context, sourceURL string) (*scraper.Result, error)
}

// TemplateStore persists template records.
type TemplateStore interface {
	Create(ctx context.Context, tpl *models.Template) (*models.Template, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Template, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
}

// Config carries the pipeline tunables.
type Config struct {
	VideoBucket     string
	ThumbnailBucket string
	ScratchDir      string
	Workers         int
	StageTimeout    time.Duration
}

// stageContext bounds a single external call. A zero timeout means the
// caller's context is used as-is.
func stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// cleanupFiles removes scratch files, ignoring paths that are already gone.
func cleanupFiles(log *logrus.Logger, paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warnf("Could not remove temporary file %s: %v", path, err)
		}
	}
}
