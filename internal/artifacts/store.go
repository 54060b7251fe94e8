package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/sirupsen/logrus"
)

var (
	// ErrObjectExists means an insert-only upload found the key taken.
	ErrObjectExists = errors.New("object already exists")
	// ErrObjectNotFound means the requested object is absent.
	ErrObjectNotFound = errors.New("object not found")
)

// Store talks to the storage service's object REST API. Uploads are
// insert-only: an existing object at the same key is a hard failure, which is
// what keeps crop operations non-destructive.
type Store struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	log        *logrus.Logger
}

// NewStore creates a Store against the storage API at baseURL.
func NewStore(baseURL, serviceKey string, timeout time.Duration, log *logrus.Logger) *Store {
	return &Store{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Upload writes content under bucket/key and returns the cache-busted public
// URL. The key must not already exist. An empty contentType is sniffed from
// the content itself.
func (s *Store) Upload(ctx context.Context, bucket, key string, content []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = SniffContentType(content, key)
	}

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=3600")
	req.Header.Set("x-upsert", "false")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading %s/%s: %w", bucket, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return "", fmt.Errorf("%w: %s/%s", ErrObjectExists, bucket, key)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload of %s/%s failed with status %d: %s", bucket, key, resp.StatusCode, string(body))
	}

	s.log.Infof("Uploaded %d bytes to %s/%s (%s)", len(content), bucket, key, contentType)
	return PublicURL(s.baseURL, bucket, key, time.Now()), nil
}

// Download fetches the object at bucket/key.
func (s *Store) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	objectURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s/%s: %w", bucket, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download of %s/%s failed with status %d: %s", bucket, key, resp.StatusCode, string(body))
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s/%s: %w", bucket, key, err)
	}
	return content, nil
}

// SniffContentType detects a MIME type from the content's magic bytes,
// falling back to the key's extension when the bytes are not recognizable.
func SniffContentType(content []byte, key string) string {
	if kind, err := filetype.Match(content); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if byExt := mime.TypeByExtension(path.Ext(key)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
