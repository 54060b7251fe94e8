package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// probeDocument mirrors the JSON ffprobe emits for
// -show_entries stream=width,height.
type probeDocument struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

// FFmpeg implements Tool by shelling out to ffmpeg and ffprobe.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	log         *logrus.Logger
}

// NewFFmpeg creates an FFmpeg tool using the given binary paths.
func NewFFmpeg(ffmpegPath, ffprobePath string, log *logrus.Logger) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		log:         log,
	}
}

// Probe returns the pixel dimensions of the first video stream in the file.
// It always inspects the file on disk; dimensions are never cached because
// the bytes behind a storage key can change between operations.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Dimensions, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if isNotFound(err) {
			return Dimensions{}, fmt.Errorf("%w: %s", ErrToolNotFound, f.ffprobePath)
		}
		return Dimensions{}, &ExitError{Tool: "ffprobe", Stderr: stderr.String(), Err: err}
	}

	dims, err := parseProbeDimensions(stdout.Bytes())
	if err != nil {
		return Dimensions{}, fmt.Errorf("probing %s: %w", path, err)
	}
	return dims, nil
}

// parseProbeDimensions decodes ffprobe JSON output into the dimensions of the
// first stream that carries both width and height.
func parseProbeDimensions(data []byte) (Dimensions, error) {
	var doc probeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Dimensions{}, fmt.Errorf("%w: %v\nOutput: %s", ErrUnparsableProbeOutput, err, string(data))
	}

	for _, stream := range doc.Streams {
		if stream.Width > 0 && stream.Height > 0 {
			return Dimensions{Width: stream.Width, Height: stream.Height}, nil
		}
	}
	return Dimensions{}, ErrNoVideoStream
}

// Crop re-encodes the rect region of inputPath into outputPath. The audio
// stream is copied verbatim. Overwriting outputPath is fine; it is always a
// local scratch file, never the remote artifact.
func (f *FFmpeg) Crop(ctx context.Context, inputPath, outputPath string, rect CropRect) error {
	filter := fmt.Sprintf("crop=%d:%d:%d:%d", rect.Width, rect.Height, rect.X, rect.Y)
	return f.runFFmpeg(ctx,
		"-i", inputPath,
		"-vf", filter,
		"-c:a", "copy",
		"-y",
		outputPath,
	)
}

// Normalize re-encodes a downloaded clip to H.264/AAC with the moov atom up
// front for QuickTime compatibility.
func (f *FFmpeg) Normalize(ctx context.Context, inputPath, outputPath string) error {
	return f.runFFmpeg(ctx,
		"-i", inputPath,
		"-c:v", "h264",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	)
}

// ExtractFrame grabs a single high-quality frame at offsetSeconds.
func (f *FFmpeg) ExtractFrame(ctx context.Context, inputPath, outputPath string, offsetSeconds float64) error {
	return f.runFFmpeg(ctx,
		"-i", inputPath,
		"-ss", fmt.Sprintf("%.3f", offsetSeconds),
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	)
}

// runFFmpeg spawns ffmpeg with args, streaming stderr lines into the log as
// they arrive while accumulating them for error reporting. Success requires
// exit status 0 and the output file (the final argument) actually existing
// afterward; a clean exit alone is not proof of a usable artifact.
func (f *FFmpeg) runFFmpeg(ctx context.Context, args ...string) error {
	outputPath := args[len(args)-1]

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attaching ffmpeg stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrToolNotFound, f.ffmpegPath)
		}
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	var stderr strings.Builder
	scanner := bufio.NewScanner(stderrPipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		stderr.WriteString(line)
		stderr.WriteByte('\n')
		f.log.WithField("tool", "ffmpeg").Debug(line)
	}
	if scanner.Err() != nil {
		// Keep draining so the process cannot block on a full pipe.
		io.Copy(io.Discard, stderrPipe) //nolint:errcheck
	}

	if err := cmd.Wait(); err != nil {
		return &ExitError{Tool: "ffmpeg", Stderr: stderr.String(), Err: err}
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("%w: %s", ErrOutputMissing, outputPath)
	}
	return nil
}

// scanProgressLines splits on \n and \r; ffmpeg rewrites its progress line
// with bare carriage returns.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
