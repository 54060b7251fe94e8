package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/carlvellotti/meme-mage-sub001/internal/media"
	"github.com/carlvellotti/meme-mage-sub001/models"
)

// Terminal outcomes for one batch item.
const (
	StatusPersisted = "persisted"
	StatusAborted   = "aborted"
)

// ItemResult reports the terminal outcome for one source URL in a batch.
type ItemResult struct {
	SourceURL  string     `json:"source_url"`
	TemplateID *uuid.UUID `json:"template_id,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
}

// Deps bundles the collaborators the orchestrator drives.
type Deps struct {
	Scraper    Scraper
	Tool       media.Tool
	Store      ObjectStore
	Thumbnails ThumbnailGenerator
	AI         AIClient
	Templates  TemplateStore
}

// Orchestrator runs the per-item ingestion chain: fetch, normalize,
// upload, persist, then the best-effort enrichment stages.
type Orchestrator struct {
	scraper    Scraper
	tool       media.Tool
	store      ObjectStore
	thumbnails ThumbnailGenerator
	ai         AIClient
	templates  TemplateStore
	cfg        Config
	log        *logrus.Logger
}

// NewOrchestrator creates an Orchestrator from its collaborators.
func NewOrchestrator(deps Deps, cfg Config, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		scraper:    deps.Scraper,
		tool:       deps.Tool,
		store:      deps.Store,
		thumbnails: deps.Thumbnails,
		ai:         deps.AI,
		templates:  deps.Templates,
		cfg:        cfg,
		log:        log,
	}
}

// ProcessBatch ingests a batch of source URLs with bounded concurrency.
// Each item runs independently; results come back in input order.
func (o *Orchestrator) ProcessBatch(ctx context.Context, urls []string) []ItemResult {
	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	results := make([]ItemResult, len(urls))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = o.ProcessOne(ctx, url)
		}(i, url)
	}
	wg.Wait()
	return results
}

// ProcessOne runs the full ingestion chain for a single source URL.
// Failures before the record exists abort the item; later stage failures
// leave the corresponding fields absent but the record still persists.
func (o *Orchestrator) ProcessOne(ctx context.Context, sourceURL string) ItemResult {
	result := ItemResult{SourceURL: sourceURL, Status: StatusAborted}

	sctx, cancel := stageContext(ctx, o.cfg.StageTimeout)
	fetched, err := o.scraper.Fetch(sctx, sourceURL)
	cancel()
	if err != nil {
		o.log.Errorf("Failed to download %s: %v", sourceURL, err)
		result.Error = fmt.Sprintf("download failed: %v", err)
		return result
	}

	normalizedPath := filepath.Join(o.cfg.ScratchDir, fetched.SourceID+".mp4")
	defer cleanupFiles(o.log, fetched.LocalPath, normalizedPath)

	sctx, cancel = stageContext(ctx, o.cfg.StageTimeout)
	err = o.tool.Normalize(sctx, fetched.LocalPath, normalizedPath)
	cancel()
	if err != nil {
		o.log.Errorf("Failed to normalize %s: %v", sourceURL, err)
		result.Error = fmt.Sprintf("normalize failed: %v", err)
		return result
	}

	content, err := os.ReadFile(normalizedPath)
	if err != nil {
		o.log.Errorf("Failed to read normalized video for %s: %v", sourceURL, err)
		result.Error = fmt.Sprintf("read failed: %v", err)
		return result
	}

	key := fmt.Sprintf("video_%s%s", fetched.SourceID, filepath.Ext(normalizedPath))
	sctx, cancel = stageContext(ctx, o.cfg.StageTimeout)
	videoURL, err := o.store.Upload(sctx, o.cfg.VideoBucket, key, content, "")
	cancel()
	if err != nil {
		o.log.Errorf("Failed to upload video for %s: %v", sourceURL, err)
		result.Error = fmt.Sprintf("upload failed: %v", err)
		return result
	}

	now := time.Now()
	tpl := &models.Template{
		ID:        uuid.New(),
		SourceURL: sourceURL,
		VideoURL:  videoURL,
		Status:    "processing",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if fetched.Caption != "" {
		tpl.CaptionExample = &fetched.Caption
	}

	created, err := o.templates.Create(ctx, tpl)
	if err != nil {
		o.log.Errorf("Failed to create template record for %s: %v", sourceURL, err)
		result.Error = fmt.Sprintf("persist failed: %v", err)
		return result
	}
	result.TemplateID = &created.ID

	// The record exists now. Enrichment failures from here on leave the
	// field absent rather than failing the item.
	updates := map[string]interface{}{"status": "completed"}

	sctx, cancel = stageContext(ctx, o.cfg.StageTimeout)
	posterURL, err := o.thumbnails.Generate(sctx, videoURL)
	cancel()
	if err != nil {
		o.log.Warnf("Thumbnail generation failed for %s: %v", sourceURL, err)
	} else {
		updates["poster_url"] = posterURL
	}

	sctx, cancel = stageContext(ctx, o.cfg.StageTimeout)
	analysis, err := o.ai.AnalyzeTemplate(sctx, videoURL, fetched.Caption, "")
	cancel()
	if err != nil {
		o.log.Warnf("Analysis failed for %s: %v", sourceURL, err)
	} else {
		updates["description"] = analysis.Description
		if analysis.SuggestedName != "" {
			updates["name"] = analysis.SuggestedName
		}

		sctx, cancel = stageContext(ctx, o.cfg.StageTimeout)
		embedding, err := o.ai.Embed(sctx, analysis.Description)
		cancel()
		if err != nil {
			o.log.Warnf("Embedding failed for %s: %v", sourceURL, err)
		} else {
			updates["embedding"] = embedding
		}
	}

	if err := o.templates.Update(ctx, created.ID, updates); err != nil {
		o.log.Errorf("Failed to finalize template %s: %v", created.ID, err)
		result.Status = StatusPersisted
		result.Error = fmt.Sprintf("finalize failed: %v", err)
		return result
	}

	o.log.Infof("Persisted template %s for %s", created.ID, sourceURL)
	result.Status = StatusPersisted
	return result
}

// Reanalyze regenerates the description, suggested name and embedding for
// an existing template, optionally steered by reviewer feedback.
func (o *Orchestrator) Reanalyze(ctx context.Context, id uuid.UUID, feedback string) error {
	tpl, err := o.templates.Get(ctx, id)
	if err != nil {
		return err
	}

	caption := ""
	if tpl.CaptionExample != nil {
		caption = *tpl.CaptionExample
	}

	sctx, cancel := stageContext(ctx, o.cfg.StageTimeout)
	analysis, err := o.ai.AnalyzeTemplate(sctx, tpl.VideoURL, caption, feedback)
	cancel()
	if err != nil {
		o.markFailed(ctx, id, fmt.Sprintf("re-analysis failed: %v", err))
		return fmt.Errorf("re-analysis failed: %w", err)
	}

	updates := map[string]interface{}{
		"description":   analysis.Description,
		"status":        "completed",
		"error_message": nil,
	}
	if analysis.SuggestedName != "" {
		updates["name"] = analysis.SuggestedName
	}

	sctx, cancel = stageContext(ctx, o.cfg.StageTimeout)
	embedding, err := o.ai.Embed(sctx, analysis.Description)
	cancel()
	if err != nil {
		// The description changed, so the stored vector must not survive.
		o.log.Warnf("Embedding failed for template %s, clearing stored vector: %v", id, err)
		updates["embedding"] = nil
	} else {
		updates["embedding"] = embedding
	}

	return o.templates.Update(ctx, id, updates)
}

// markFailed records a failure on the template row. Best effort.
func (o *Orchestrator) markFailed(ctx context.Context, id uuid.UUID, msg string) {
	updates := map[string]interface{}{
		"status":        "failed",
		"error_message": msg,
	}
	if err := o.templates.Update(ctx, id, updates); err != nil {
		o.log.Errorf("Could not record failure on template %s: %v", id, err)
	}
}
