package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/carlvellotti/meme-mage-sub001/internal/aiclient"
	"github.com/carlvellotti/meme-mage-sub001/internal/artifacts"
	"github.com/carlvellotti/meme-mage-sub001/internal/db"
	"github.com/carlvellotti/meme-mage-sub001/internal/media"
	"github.com/carlvellotti/meme-mage-sub001/internal/scraper"
	"github.com/carlvellotti/meme-mage-sub001/models"
)

const fakeStorageBase = "https://fake.supabase.co"

type fakeScraper struct {
	dir     string
	caption string
	failing map[string]bool
}

func (f *fakeScraper) Fetch(ctx context.Context, sourceURL string) (*scraper.Result, error) {
	if f.failing[sourceURL] {
		return nil, errors.New("download blocked")
	}
	id := scraper.ExtractSourceID(sourceURL)
	localPath := filepath.Join(f.dir, "temp_"+id+".mp4")
	if err := os.WriteFile(localPath, []byte("raw video"), 0o644); err != nil {
		return nil, err
	}
	return &scraper.Result{LocalPath: localPath, SourceID: id, Caption: f.caption}, nil
}

type fakeTool struct {
	dims       media.Dimensions
	probeErr   error
	normErr    error
	cropErr    error
	normalized []byte
	cropped    []byte
}

func (f *fakeTool) Probe(ctx context.Context, path string) (media.Dimensions, error) {
	if f.probeErr != nil {
		return media.Dimensions{}, f.probeErr
	}
	return f.dims, nil
}

func (f *fakeTool) Normalize(ctx context.Context, inputPath, outputPath string) error {
	if f.normErr != nil {
		return f.normErr
	}
	return os.WriteFile(outputPath, f.normalized, 0o644)
}

func (f *fakeTool) Crop(ctx context.Context, inputPath, outputPath string, rect media.CropRect) error {
	if f.cropErr != nil {
		return f.cropErr
	}
	return os.WriteFile(outputPath, f.cropped, 0o644)
}

func (f *fakeTool) ExtractFrame(ctx context.Context, inputPath, outputPath string, offsetSeconds float64) error {
	return errors.New("not implemented")
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Upload(ctx context.Context, bucket, key string, content []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	full := bucket + "/" + key
	if _, taken := f.objects[full]; taken {
		return "", artifacts.ErrObjectExists
	}
	f.objects[full] = content
	f.uploads++
	return artifacts.PublicURL(fakeStorageBase, bucket, key, time.Now()), nil
}

func (f *fakeStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, artifacts.ErrObjectNotFound
	}
	return content, nil
}

func (f *fakeStore) get(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.objects[bucket+"/"+key]
	return content, ok
}

type fakeThumbs struct {
	url string
	err error
}

func (f *fakeThumbs) Generate(ctx context.Context, videoURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeAI struct {
	mu           sync.Mutex
	analysis     *aiclient.Analysis
	analyzeErr   error
	embedding    []float32
	embedErr     error
	embedCalls   int
	lastCaption  string
	lastFeedback string
}

func (f *fakeAI) AnalyzeTemplate(ctx context.Context, videoURL, captionExample, feedback string) (*aiclient.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCaption = captionExample
	f.lastFeedback = feedback
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return f.analysis, nil
}

func (f *fakeAI) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedding, nil
}

type fakeTemplates struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*models.Template
	updates   map[uuid.UUID][]map[string]interface{}
	createErr error
	updateErr error
}

func newFakeTemplates() *fakeTemplates {
	return &fakeTemplates{
		rows:    make(map[uuid.UUID]*models.Template),
		updates: make(map[uuid.UUID][]map[string]interface{}),
	}
}

func (f *fakeTemplates) Create(ctx context.Context, tpl *models.Template) (*models.Template, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *tpl
	f.rows[tpl.ID] = &stored
	out := stored
	return &out, nil
}

func (f *fakeTemplates) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tpl, ok := f.rows[id]
	if !ok {
		return nil, db.ErrTemplateNotFound
	}
	out := *tpl
	return &out, nil
}

func (f *fakeTemplates) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tpl, ok := f.rows[id]
	if !ok {
		return db.ErrTemplateNotFound
	}
	f.updates[id] = append(f.updates[id], updates)
	if v, ok := updates["video_url"].(string); ok {
		tpl.VideoURL = v
	}
	return nil
}

func (f *fakeTemplates) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeTemplates) lastUpdate(id uuid.UUID) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.updates[id]
	if len(history) == 0 {
		return nil
	}
	return history[len(history)-1]
}

type fixture struct {
	scraper   *fakeScraper
	tool      *fakeTool
	store     *fakeStore
	thumbs    *fakeThumbs
	ai        *fakeAI
	templates *fakeTemplates
	scratch   string
	orch      *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	scratch := t.TempDir()
	f := &fixture{
		scraper: &fakeScraper{dir: scratch, caption: "when the build finally passes"},
		tool: &fakeTool{
			dims:       media.Dimensions{Width: 1080, Height: 1920},
			normalized: []byte("normalized video"),
			cropped:    []byte("cropped video"),
		},
		store:  newFakeStore(),
		thumbs: &fakeThumbs{url: fakeStorageBase + "/storage/v1/object/public/unprocessed-thumbnails/thumbnail_x.jpg"},
		ai: &fakeAI{
			analysis:  &aiclient.Analysis{Description: "a cat spins on a turntable", SuggestedName: "Spinning Cat"},
			embedding: []float32{0.25, -0.5, 0.75},
		},
		templates: newFakeTemplates(),
		scratch:   scratch,
	}
	f.orch = NewOrchestrator(Deps{
		Scraper:    f.scraper,
		Tool:       f.tool,
		Store:      f.store,
		Thumbnails: f.thumbs,
		AI:         f.ai,
		Templates:  f.templates,
	}, Config{
		VideoBucket:     "unprocessed-videos",
		ThumbnailBucket: "unprocessed-thumbnails",
		ScratchDir:      scratch,
		Workers:         3,
		StageTimeout:    time.Minute,
	}, logrus.New())
	return f
}

func TestProcessOnePersistsTemplate(t *testing.T) {
	f := newFixture(t)

	result := f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Chappy1/")

	assert.Equal(t, StatusPersisted, result.Status)
	assert.Empty(t, result.Error)
	assert.NotNil(t, result.TemplateID)

	// The normalized bytes landed under the stable video key.
	stored, ok := f.store.get("unprocessed-videos", "video_Chappy1.mp4")
	assert.True(t, ok)
	assert.Equal(t, []byte("normalized video"), stored)

	created, err := f.templates.Get(context.Background(), *result.TemplateID)
	assert.Nil(t, err)
	assert.Equal(t, "https://www.instagram.com/reel/Chappy1/", created.SourceURL)
	assert.Contains(t, created.VideoURL, "/unprocessed-videos/video_Chappy1.mp4?t=")
	assert.Equal(t, "processing", created.Status)
	assert.NotNil(t, created.CaptionExample)
	assert.Equal(t, "when the build finally passes", *created.CaptionExample)

	updates := f.templates.lastUpdate(*result.TemplateID)
	assert.Equal(t, "completed", updates["status"])
	assert.Equal(t, f.thumbs.url, updates["poster_url"])
	assert.Equal(t, "a cat spins on a turntable", updates["description"])
	assert.Equal(t, "Spinning Cat", updates["name"])
	assert.Equal(t, []float32{0.25, -0.5, 0.75}, updates["embedding"])
}

func TestProcessOneAnalysisFailureStillPersists(t *testing.T) {
	f := newFixture(t)
	f.ai.analyzeErr = errors.New("model overloaded")

	result := f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Cpartial/")

	assert.Equal(t, StatusPersisted, result.Status)
	assert.NotNil(t, result.TemplateID)

	updates := f.templates.lastUpdate(*result.TemplateID)
	assert.Equal(t, "completed", updates["status"])
	assert.NotContains(t, updates, "description")
	assert.NotContains(t, updates, "embedding")
	assert.Contains(t, updates, "poster_url")
	assert.Equal(t, 0, f.ai.embedCalls)
}

func TestProcessOneEmbedFailureLeavesEmbeddingAbsent(t *testing.T) {
	f := newFixture(t)
	f.ai.embedErr = errors.New("quota exceeded")

	result := f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Cembed/")

	assert.Equal(t, StatusPersisted, result.Status)
	updates := f.templates.lastUpdate(*result.TemplateID)
	assert.Equal(t, "a cat spins on a turntable", updates["description"])
	assert.NotContains(t, updates, "embedding")
}

func TestProcessOneThumbnailFailureStillPersists(t *testing.T) {
	f := newFixture(t)
	f.thumbs.err = errors.New("frame grab crashed")

	result := f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Cthumb/")

	assert.Equal(t, StatusPersisted, result.Status)
	updates := f.templates.lastUpdate(*result.TemplateID)
	assert.NotContains(t, updates, "poster_url")
	assert.Equal(t, "completed", updates["status"])
}

func TestProcessOneDownloadFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.scraper.failing = map[string]bool{"https://www.instagram.com/reel/Cgone/": true}

	result := f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Cgone/")

	assert.Equal(t, StatusAborted, result.Status)
	assert.Contains(t, result.Error, "download failed")
	assert.Nil(t, result.TemplateID)
	// No record and no artifact exists for an aborted item.
	assert.Equal(t, 0, f.templates.count())
	assert.Equal(t, 0, f.store.uploads)
}

func TestProcessOneDuplicateUploadAborts(t *testing.T) {
	f := newFixture(t)

	first := f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Cdupe/")
	second := f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Cdupe/")

	assert.Equal(t, StatusPersisted, first.Status)
	assert.Equal(t, StatusAborted, second.Status)
	assert.Contains(t, second.Error, "upload failed")
	assert.Equal(t, 1, f.templates.count())
}

func TestProcessOneCleansScratchFiles(t *testing.T) {
	f := newFixture(t)

	f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Cclean/")

	leftovers, err := os.ReadDir(f.scratch)
	assert.Nil(t, err)
	assert.Empty(t, leftovers)
}

func TestProcessOneCleansScratchFilesOnFailure(t *testing.T) {
	f := newFixture(t)
	f.tool.normErr = errors.New("codec exploded")

	result := f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Cfail/")

	assert.Equal(t, StatusAborted, result.Status)
	leftovers, err := os.ReadDir(f.scratch)
	assert.Nil(t, err)
	assert.Empty(t, leftovers)
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	urls := []string{
		"https://www.instagram.com/reel/Cbatch1/",
		"https://www.instagram.com/reel/Cbatch2/",
		"https://www.instagram.com/reel/Cbatch3/",
		"https://www.instagram.com/reel/Cbatch4/",
	}
	f.scraper.failing = map[string]bool{urls[2]: true}

	results := f.orch.ProcessBatch(context.Background(), urls)

	assert.Equal(t, len(urls), len(results))
	for i, result := range results {
		assert.Equal(t, urls[i], result.SourceURL)
		if i == 2 {
			assert.Equal(t, StatusAborted, result.Status)
		} else {
			assert.Equal(t, StatusPersisted, result.Status)
		}
	}
	assert.Equal(t, 3, f.templates.count())
}

func TestReanalyzeRegeneratesEmbedding(t *testing.T) {
	f := newFixture(t)
	result := f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Cagain/")
	f.ai.analysis = &aiclient.Analysis{Description: "actually a dog, not a cat", SuggestedName: "Spinning Dog"}
	f.ai.embedding = []float32{0.9, 0.8}

	err := f.orch.Reanalyze(context.Background(), *result.TemplateID, "the animal is a dog")

	assert.Nil(t, err)
	assert.Equal(t, "the animal is a dog", f.ai.lastFeedback)
	updates := f.templates.lastUpdate(*result.TemplateID)
	assert.Equal(t, "actually a dog, not a cat", updates["description"])
	assert.Equal(t, "Spinning Dog", updates["name"])
	assert.Equal(t, []float32{0.9, 0.8}, updates["embedding"])
	assert.Nil(t, updates["error_message"])
}

func TestReanalyzeClearsEmbeddingWhenEmbedFails(t *testing.T) {
	f := newFixture(t)
	result := f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Cclear/")
	f.ai.analysis = &aiclient.Analysis{Description: "a new reading of the scene"}
	f.ai.embedErr = errors.New("quota exceeded")

	err := f.orch.Reanalyze(context.Background(), *result.TemplateID, "")

	assert.Nil(t, err)
	updates := f.templates.lastUpdate(*result.TemplateID)
	assert.Equal(t, "a new reading of the scene", updates["description"])
	// The description changed, so the stale vector is cleared rather than kept.
	assert.Contains(t, updates, "embedding")
	assert.Nil(t, updates["embedding"])
}

func TestReanalyzeRecordsAnalysisFailure(t *testing.T) {
	f := newFixture(t)
	result := f.orch.ProcessOne(context.Background(), "https://www.instagram.com/reel/Crecord/")
	f.ai.analyzeErr = errors.New("model overloaded")

	err := f.orch.Reanalyze(context.Background(), *result.TemplateID, "")

	assert.NotNil(t, err)
	updates := f.templates.lastUpdate(*result.TemplateID)
	assert.Equal(t, "failed", updates["status"])
	assert.Contains(t, updates["error_message"], "re-analysis failed")
}

func TestReanalyzeMissingTemplate(t *testing.T) {
	f := newFixture(t)

	err := f.orch.Reanalyze(context.Background(), uuid.New(), "")

	assert.ErrorIs(t, err, db.ErrTemplateNotFound)
}
