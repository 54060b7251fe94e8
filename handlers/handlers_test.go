package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/carlvellotti/meme-mage-sub001/internal/aiclient"
	"github.com/carlvellotti/meme-mage-sub001/internal/artifacts"
	"github.com/carlvellotti/meme-mage-sub001/internal/db"
	"github.com/carlvellotti/meme-mage-sub001/internal/media"
	"github.com/carlvellotti/meme-mage-sub001/internal/pipeline"
	"github.com/carlvellotti/meme-mage-sub001/internal/scraper"
	"github.com/carlvellotti/meme-mage-sub001/internal/worker"
	"github.com/carlvellotti/meme-mage-sub001/models"
)

const testStorageBase = "https://test.supabase.co"

// stubTemplates backs both the handler-facing reads and the pipeline-facing
// writes with one in-memory table.
type stubTemplates struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*models.Template
	listErr error
}

func newStubTemplates() *stubTemplates {
	return &stubTemplates{rows: make(map[uuid.UUID]*models.Template)}
}

func (s *stubTemplates) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl, ok := s.rows[id]
	if !ok {
		return nil, db.ErrTemplateNotFound
	}
	out := *tpl
	return &out, nil
}

func (s *stubTemplates) List(ctx context.Context) ([]models.Template, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Template, 0, len(s.rows))
	for _, tpl := range s.rows {
		out = append(out, *tpl)
	}
	return out, nil
}

func (s *stubTemplates) Create(ctx context.Context, tpl *models.Template) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *tpl
	s.rows[tpl.ID] = &stored
	out := stored
	return &out, nil
}

func (s *stubTemplates) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl, ok := s.rows[id]
	if !ok {
		return db.ErrTemplateNotFound
	}
	if v, ok := updates["video_url"].(string); ok {
		tpl.VideoURL = v
	}
	return nil
}

func (s *stubTemplates) add(tpl *models.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *tpl
	s.rows[tpl.ID] = &stored
}

type stubStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newStubStore() *stubStore {
	return &stubStore{objects: make(map[string][]byte)}
}

func (s *stubStore) Upload(ctx context.Context, bucket, key string, content []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	full := bucket + "/" + key
	if _, taken := s.objects[full]; taken {
		return "", artifacts.ErrObjectExists
	}
	s.objects[full] = content
	return artifacts.PublicURL(testStorageBase, bucket, key, time.Now()), nil
}

func (s *stubStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, artifacts.ErrObjectNotFound
	}
	return content, nil
}

type stubTool struct {
	dims     media.Dimensions
	probeErr error
}

func (s *stubTool) Probe(ctx context.Context, path string) (media.Dimensions, error) {
	if s.probeErr != nil {
		return media.Dimensions{}, s.probeErr
	}
	return s.dims, nil
}

func (s *stubTool) Normalize(ctx context.Context, inputPath, outputPath string) error {
	return os.WriteFile(outputPath, []byte("normalized video"), 0o644)
}

func (s *stubTool) Crop(ctx context.Context, inputPath, outputPath string, rect media.CropRect) error {
	return os.WriteFile(outputPath, []byte("cropped video"), 0o644)
}

func (s *stubTool) ExtractFrame(ctx context.Context, inputPath, outputPath string, offsetSeconds float64) error {
	return errors.New("not implemented")
}

type stubScraper struct {
	dir string
}

func (s *stubScraper) Fetch(ctx context.Context, sourceURL string) (*scraper.Result, error) {
	id := scraper.ExtractSourceID(sourceURL)
	localPath := filepath.Join(s.dir, "temp_"+id+".mp4")
	if err := os.WriteFile(localPath, []byte("raw video"), 0o644); err != nil {
		return nil, err
	}
	return &scraper.Result{LocalPath: localPath, SourceID: id, Caption: "me explaining the deadline"}, nil
}

type stubThumbs struct{}

func (stubThumbs) Generate(ctx context.Context, videoURL string) (string, error) {
	return testStorageBase + "/storage/v1/object/public/unprocessed-thumbnails/thumbnail_x.jpg", nil
}

type stubAI struct{}

func (stubAI) AnalyzeTemplate(ctx context.Context, videoURL, captionExample, feedback string) (*aiclient.Analysis, error) {
	return &aiclient.Analysis{Description: "two ducks argue over bread", SuggestedName: "Bread Ducks"}, nil
}

func (stubAI) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type handlerFixture struct {
	templates *stubTemplates
	store     *stubStore
	tool      *stubTool
	handler   *ApplicationHandler
	app       *fiber.App
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	log := logrus.New()
	scratch := t.TempDir()
	templates := newStubTemplates()
	store := newStubStore()
	tool := &stubTool{dims: media.Dimensions{Width: 1080, Height: 1920}}

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Scraper:    &stubScraper{dir: scratch},
		Tool:       tool,
		Store:      store,
		Thumbnails: stubThumbs{},
		AI:         stubAI{},
		Templates:  templates,
	}, pipeline.Config{
		VideoBucket:     "unprocessed-videos",
		ThumbnailBucket: "unprocessed-thumbnails",
		ScratchDir:      scratch,
		Workers:         2,
		StageTimeout:    time.Minute,
	}, log)

	cropper := pipeline.NewCropper(templates, store, tool, scratch, log)

	// The dispatcher is deliberately never started, so queued jobs stay
	// queued and tests can assert on the accepted response alone.
	dispatcher := worker.NewDispatcher(1, 8, log)

	h := NewApplicationHandler(log, templates, orch, cropper, dispatcher, time.Minute)
	return &handlerFixture{
		templates: templates,
		store:     store,
		tool:      tool,
		handler:   h,
		app:       newTestApp(h),
	}
}

func newTestApp(h *ApplicationHandler) *fiber.App {
	app := fiber.New()
	api := app.Group("/api/v1")
	api.Post("/templates/scrape", h.ScrapeTemplates)
	api.Get("/templates", h.ListTemplates)
	api.Get("/templates/:id", h.GetTemplate)
	api.Post("/templates/:id/crop", h.CropTemplate)
	api.Post("/templates/:id/reanalyze", h.ReanalyzeTemplate)
	return app
}

func (f *handlerFixture) seedTemplate(t *testing.T) *models.Template {
	url, err := f.store.Upload(context.Background(), "unprocessed-videos", "video_seed.mp4", []byte("original video"), "video/mp4")
	assert.Nil(t, err)
	tpl := &models.Template{
		ID:        uuid.New(),
		SourceURL: "https://www.instagram.com/reel/Cseed/",
		VideoURL:  url,
		Status:    "completed",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.templates.add(tpl)
	return tpl
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	assert.Nil(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	defer resp.Body.Close()
	var body map[string]interface{}
	assert.Nil(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}
