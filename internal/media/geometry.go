package media

import "fmt"

// ClampCrop fits a requested crop rectangle inside the actual video frame and
// forces both dimensions even, since H.264 chroma subsampling rejects odd
// sizes. Width and height are bounded against the requested offsets, not the
// clamped ones, so a rectangle can still escape the frame after clamping; in
// that case it is rejected with ErrInvalidCropGeometry rather than coerced
// further.
func ClampCrop(requested CropRect, actual Dimensions) (CropRect, error) {
	x := clampInt(requested.X, 0, actual.Width-2)
	y := clampInt(requested.Y, 0, actual.Height-2)
	width := clampInt(requested.Width, 2, actual.Width-requested.X)
	height := clampInt(requested.Height, 2, actual.Height-requested.Y)

	// Clear the lowest bit of each dimension.
	width &^= 1
	height &^= 1

	if width <= 0 || height <= 0 || x+width > actual.Width || y+height > actual.Height {
		return CropRect{}, fmt.Errorf("%w: %dx%d at (%d,%d) does not fit in %dx%d",
			ErrInvalidCropGeometry, width, height, x, y, actual.Width, actual.Height)
	}

	return CropRect{X: x, Y: y, Width: width, Height: height}, nil
}

// clampInt bounds v to [lo, hi], with lo winning when the bounds cross.
func clampInt(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
