package engine

import (
	"image"

	"github.com/disintegration/imaging"
)

// Handle is a decoded image moving through an edit pipeline. It tracks the
// source format and any EXIF orientation that has not yet been folded into
// the pixel data. Orientation is applied lazily: the first operation that
// touches pixels normalizes the image, so a pipeline that only inspects
// metadata never pays for the transform.
type Handle struct {
	img         image.Image
	format      string
	orientation int
	oriented    bool
}

// FromImage wraps an already decoded image in a Handle. The format is the
// encoding used when no explicit output format is requested.
func FromImage(img image.Image, format string) *Handle {
	return &Handle{img: img, format: NormalizeFormat(format), oriented: true}
}

// Width returns the image width in pixels as it will appear after any
// pending orientation is applied.
func (h *Handle) Width() int {
	if h.orientationSwapsAxes() {
		return h.img.Bounds().Dy()
	}
	return h.img.Bounds().Dx()
}

// Height returns the image height in pixels as it will appear after any
// pending orientation is applied.
func (h *Handle) Height() int {
	if h.orientationSwapsAxes() {
		return h.img.Bounds().Dx()
	}
	return h.img.Bounds().Dy()
}

// Format returns the format the image was decoded from.
func (h *Handle) Format() string {
	return h.format
}

// Orientation returns the EXIF orientation tag read at decode time, or 0
// when the image carried none.
func (h *Handle) Orientation() int {
	return h.orientation
}

// Image returns the pixel data as currently held. Callers that need the
// orientation folded in should go through an engine operation first.
func (h *Handle) Image() image.Image {
	return h.img
}

// Clone returns an independent copy of the handle and its pixels.
func (h *Handle) Clone() *Handle {
	return &Handle{
		img:         imaging.Clone(h.img),
		format:      h.format,
		orientation: h.orientation,
		oriented:    h.oriented,
	}
}

// SkipOrientation marks the EXIF orientation as handled without applying
// it. Pixels are then processed exactly as stored.
func (h *Handle) SkipOrientation() {
	h.oriented = true
}

func (h *Handle) orientationSwapsAxes() bool {
	return !h.oriented && h.orientation >= 5 && h.orientation <= 8
}

// normalize folds a pending EXIF orientation into the pixel data. The tag
// values follow the EXIF 2.3 table: 2-4 are mirrors, 5-8 swap the axes.
func (h *Handle) normalize() {
	if h.oriented {
		return
	}
	h.oriented = true
	switch h.orientation {
	case 2:
		h.img = imaging.FlipH(h.img)
	case 3:
		h.img = imaging.Rotate180(h.img)
	case 4:
		h.img = imaging.FlipV(h.img)
	case 5:
		h.img = imaging.Transpose(h.img)
	case 6:
		h.img = imaging.Rotate270(h.img)
	case 7:
		h.img = imaging.Transverse(h.img)
	case 8:
		h.img = imaging.Rotate90(h.img)
	}
}
