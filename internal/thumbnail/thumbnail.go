// Package thumbnail produces poster frames for ingested template videos,
// either through the external thumbnail service or by extracting a frame
// locally with ffmpeg.
package thumbnail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carlvellotti/meme-mage-sub001/internal/artifacts"
	"github.com/carlvellotti/meme-mage-sub001/internal/media"
)

// Service calls the external thumbnail service over HTTP.
type Service struct {
	endpoint   string
	httpClient *http.Client
	log        *logrus.Logger
}

// NewService creates a Service that POSTs to the given endpoint.
func NewService(endpoint string, timeout time.Duration, log *logrus.Logger) *Service {
	return &Service{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type serviceRequest struct {
	VideoURL string `json:"videoUrl"`
}

type serviceResponse struct {
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Generate asks the thumbnail service for a poster frame of the video at
// videoURL and returns the public URL of the generated image.
func (s *Service) Generate(ctx context.Context, videoURL string) (string, error) {
	payload, err := json.Marshal(serviceRequest{VideoURL: videoURL})
	if err != nil {
		return "", fmt.Errorf("failed to marshal thumbnail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build thumbnail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("thumbnail service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read thumbnail response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("thumbnail service returned status %d: %s", resp.StatusCode, string(body))
	}

	var decoded serviceResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode thumbnail response: %w", err)
	}
	if decoded.ThumbnailURL == "" {
		return "", fmt.Errorf("thumbnail service returned no thumbnailUrl")
	}

	s.log.Infof("Thumbnail service produced %s for %s", decoded.ThumbnailURL, videoURL)
	return decoded.ThumbnailURL, nil
}

// Extractor generates a poster frame locally by downloading the video and
// grabbing its first frame with ffmpeg. It is used when no thumbnail service
// is configured.
type Extractor struct {
	tool       media.Tool
	store      *artifacts.Store
	bucket     string
	scratchDir string
	log        *logrus.Logger
}

// NewExtractor creates an Extractor that uploads frames to the given bucket.
func NewExtractor(tool media.Tool, store *artifacts.Store, bucket, scratchDir string, log *logrus.Logger) *Extractor {
	return &Extractor{
		tool:       tool,
		store:      store,
		bucket:     bucket,
		scratchDir: scratchDir,
		log:        log,
	}
}

// Generate downloads the video behind videoURL, extracts its first frame and
// uploads the frame as thumbnail_<id>.jpg. It returns the public URL of the
// uploaded frame.
func (e *Extractor) Generate(ctx context.Context, videoURL string) (string, error) {
	bucket, key, err := artifacts.ParsePublicURL(videoURL)
	if err != nil {
		return "", fmt.Errorf("failed to locate video for thumbnail: %w", err)
	}

	content, err := e.store.Download(ctx, bucket, key)
	if err != nil {
		return "", fmt.Errorf("failed to download video for thumbnail: %w", err)
	}

	base := path.Base(key)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	videoPath := filepath.Join(e.scratchDir, base)
	framePath := filepath.Join(e.scratchDir, stem+"_frame.jpg")
	defer func() {
		os.Remove(videoPath) //nolint:errcheck
		os.Remove(framePath) //nolint:errcheck
	}()

	if err := os.WriteFile(videoPath, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to stage video for thumbnail: %w", err)
	}

	if err := e.tool.ExtractFrame(ctx, videoPath, framePath, 0); err != nil {
		return "", fmt.Errorf("failed to extract frame: %w", err)
	}

	frame, err := os.ReadFile(framePath)
	if err != nil {
		return "", fmt.Errorf("failed to read extracted frame: %w", err)
	}

	// Video objects are named video_<id>.<ext>; thumbnails mirror the ID.
	thumbKey := "thumbnail_" + strings.TrimPrefix(stem, "video_") + ".jpg"
	thumbURL, err := e.store.Upload(ctx, e.bucket, thumbKey, frame, "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("failed to upload frame: %w", err)
	}

	e.log.Infof("Extracted thumbnail %s for %s", thumbKey, videoURL)
	return thumbURL, nil
}
