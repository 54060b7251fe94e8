package media

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound means the external binary is absent from the
	// configured path, as opposed to present but failing.
	ErrToolNotFound = errors.New("media tool not found")

	// ErrUnparsableProbeOutput means ffprobe exited cleanly but its JSON
	// could not be decoded.
	ErrUnparsableProbeOutput = errors.New("unparsable probe output")

	// ErrNoVideoStream means the probe result carried no stream with
	// pixel dimensions.
	ErrNoVideoStream = errors.New("no video stream with dimensions")

	// ErrOutputMissing means the transcoder exited 0 but the declared
	// output file does not exist.
	ErrOutputMissing = errors.New("output file missing after transcode")

	// ErrInvalidCropGeometry means a crop rectangle failed validation
	// after clamping.
	ErrInvalidCropGeometry = errors.New("invalid crop geometry")
)

// ExitError reports a media tool that ran and exited non-zero. Stderr holds
// the accumulated diagnostic text from the process.
type ExitError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s failed: %v\nStderr: %s", e.Tool, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }
