package media

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseProbeDimensions(t *testing.T) {
	dims, err := parseProbeDimensions([]byte(`{"streams":[{"width":1080,"height":1920}]}`))

	assert.Nil(t, err)
	assert.Equal(t, Dimensions{Width: 1080, Height: 1920}, dims)
}

func TestParseProbeDimensionsSkipsStreamsWithoutSize(t *testing.T) {
	// Audio streams match -show_entries but carry no width/height.
	doc := `{"streams":[{},{"width":640,"height":480}]}`

	dims, err := parseProbeDimensions([]byte(doc))

	assert.Nil(t, err)
	assert.Equal(t, Dimensions{Width: 640, Height: 480}, dims)
}

func TestParseProbeDimensionsNoVideoStream(t *testing.T) {
	_, err := parseProbeDimensions([]byte(`{"streams":[]}`))

	assert.ErrorIs(t, err, ErrNoVideoStream)
}

func TestParseProbeDimensionsGarbage(t *testing.T) {
	_, err := parseProbeDimensions([]byte("not json at all"))

	assert.ErrorIs(t, err, ErrUnparsableProbeOutput)
}

func TestProbeMissingExecutable(t *testing.T) {
	tool := NewFFmpeg("/nonexistent/ffmpeg", "/nonexistent/ffprobe", logrus.New())

	_, err := tool.Probe(context.Background(), "input.mp4")

	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestCropMissingExecutable(t *testing.T) {
	tool := NewFFmpeg("definitely-not-a-real-transcoder", "definitely-not-a-real-prober", logrus.New())

	err := tool.Crop(context.Background(), "in.mp4", "out.mp4", CropRect{Width: 100, Height: 100})

	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestExitErrorCarriesStderr(t *testing.T) {
	err := &ExitError{Tool: "ffprobe", Stderr: "No such file or directory", Err: assert.AnError}

	assert.Contains(t, err.Error(), "ffprobe failed")
	assert.Contains(t, err.Error(), "No such file or directory")
	assert.ErrorIs(t, err, assert.AnError)
}
