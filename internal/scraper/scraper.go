// Package scraper fetches template videos from their source platform
// using yt-dlp.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/carlvellotti/meme-mage-sub001/internal/media"
)

var sourceIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`instagram\.com/(?:p|reel)/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`instagram\.com/reels/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`instagr\.am/(?:p|reel)/([a-zA-Z0-9_-]+)`),
}

// ExtractSourceID pulls the platform shortcode out of a source URL. URLs
// without a recognizable shortcode get a random ID so processing can
// still proceed.
func ExtractSourceID(sourceURL string) string {
	for _, pattern := range sourceIDPatterns {
		if m := pattern.FindStringSubmatch(sourceURL); m != nil {
			return m[1]
		}
	}
	return uuid.NewString()
}

// Result describes a fetched video on the local filesystem.
type Result struct {
	LocalPath string
	SourceID  string
	Caption   string
}

// YtDlp downloads source videos by shelling out to yt-dlp.
type YtDlp struct {
	binPath    string
	scratchDir string
	log        *logrus.Logger
}

// NewYtDlp creates a YtDlp scraper writing downloads into scratchDir.
func NewYtDlp(binPath, scratchDir string, log *logrus.Logger) *YtDlp {
	return &YtDlp{
		binPath:    binPath,
		scratchDir: scratchDir,
		log:        log,
	}
}

// Fetch downloads the video at sourceURL and returns its local path along
// with the extracted source ID and a best-effort caption. The caller owns
// the downloaded file and is responsible for removing it.
func (y *YtDlp) Fetch(ctx context.Context, sourceURL string) (*Result, error) {
	sourceID := ExtractSourceID(sourceURL)
	outputPath := filepath.Join(y.scratchDir, fmt.Sprintf("temp_%s.mp4", sourceID))

	y.log.Infof("Downloading %s with ID %s", sourceURL, sourceID)

	cmd := exec.CommandContext(ctx, y.binPath, sourceURL, "-o", outputPath, "--format", "mp4")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(outputPath) //nolint:errcheck
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", media.ErrToolNotFound, y.binPath)
		}
		return nil, &media.ExitError{Tool: "yt-dlp", Stderr: stderr.String(), Err: err}
	}

	if _, err := os.Stat(outputPath); err != nil {
		return nil, fmt.Errorf("%w: %s", media.ErrOutputMissing, outputPath)
	}

	return &Result{
		LocalPath: outputPath,
		SourceID:  sourceID,
		Caption:   y.fetchCaption(ctx, sourceURL),
	}, nil
}

// fetchCaption asks yt-dlp for the post text without re-downloading the
// video. Failures only cost the caption hint, so they are not fatal.
func (y *YtDlp) fetchCaption(ctx context.Context, sourceURL string) string {
	cmd := exec.CommandContext(ctx, y.binPath, sourceURL, "--skip-download", "--print", "description")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		y.log.Warnf("Could not fetch caption for %s: %v", sourceURL, err)
		return ""
	}
	return strings.TrimSpace(stdout.String())
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
