// Package media wraps the external video toolchain. The Tool interface is the
// effect boundary: the pipeline and crop logic depend on it, the FFmpeg
// implementation shells out, and tests substitute fakes.
package media

import "context"

// Dimensions is the pixel size of a video stream.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CropRect is a crop region in source-pixel units.
type CropRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Tool abstracts probing and transcoding so callers stay independent of
// process spawning.
type Tool interface {
	// Probe returns the pixel dimensions of the first video stream.
	Probe(ctx context.Context, path string) (Dimensions, error)
	// Crop re-encodes the rect region of inputPath into outputPath,
	// copying the audio stream verbatim.
	Crop(ctx context.Context, inputPath, outputPath string, rect CropRect) error
	// Normalize re-encodes a downloaded clip to H.264/AAC with the moov
	// atom up front so the artifact streams and plays everywhere.
	Normalize(ctx context.Context, inputPath, outputPath string) error
	// ExtractFrame grabs a single high-quality still at offsetSeconds.
	ExtractFrame(ctx context.Context, inputPath, outputPath string, offsetSeconds float64) error
}
