// Package engine decodes, transforms and encodes raster images. It exposes
// a registry of named edit operations plus compositing and extraction
// primitives; callers describe what to do and the engine owns how pixels
// move. JPEG, PNG, GIF, BMP, TIFF and WebP are supported on both sides of
// the codec boundary.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-pipeline/pkg/types"
)

// ErrUnsupportedFormat reports an output format the engine cannot
// encode. Callers match it with errors.Is.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Engine performs image processing with fixed encoder settings.
type Engine struct {
	// JPEGQuality is the quality used for JPEG output, 1-100.
	JPEGQuality int
	// WebPQuality is the quality used for lossy WebP output, 1-100.
	WebPQuality float32
	// WebPLossless switches WebP output to lossless encoding.
	WebPLossless bool
}

// New creates an engine with the default encoder settings.
func New() *Engine {
	return &Engine{
		JPEGQuality: 90,
		WebPQuality: 90,
	}
}

// Metadata describes a decoded image.
type Metadata struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`
	Orientation int    `json:"orientation,omitempty"`
	HasAlpha    bool   `json:"hasAlpha"`
}

// Decode reads an image from raw bytes. Formats registered with the
// standard library are tried first, then WebP variants the registered
// decoder rejects. The EXIF orientation tag, when present, is recorded on
// the handle but not applied; see Handle.
func (e *Engine) Decode(data []byte) (*Handle, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		wimg, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		img, format = wimg, "webp"
	}

	h := &Handle{img: img, format: NormalizeFormat(format)}
	h.orientation = readOrientation(data)
	if h.orientation <= 1 {
		h.oriented = true
	}
	return h, nil
}

// Metadata reports the dimensions the image will have after orientation,
// its source format and whether it carries transparency.
func (e *Engine) Metadata(h *Handle) Metadata {
	return Metadata{
		Width:       h.Width(),
		Height:      h.Height(),
		Format:      h.format,
		Orientation: h.orientation,
		HasAlpha:    hasAlpha(h.img),
	}
}

// Extract crops the image to the given pixel rectangle. The rectangle
// must have positive area and lie fully inside the image.
func (e *Engine) Extract(h *Handle, rect types.CropRectangle) error {
	h.normalize()
	if rect.Width <= 0 || rect.Height <= 0 || rect.Left < 0 || rect.Top < 0 ||
		rect.Left+rect.Width > h.Width() || rect.Top+rect.Height > h.Height() {
		return fmt.Errorf("extract: rectangle %dx%d at (%d,%d) outside image %dx%d",
			rect.Width, rect.Height, rect.Left, rect.Top, h.Width(), h.Height())
	}
	bounds := h.img.Bounds()
	r := image.Rect(rect.Left, rect.Top, rect.Left+rect.Width, rect.Top+rect.Height).Add(bounds.Min)
	h.img = imaging.Crop(h.img, r)
	return nil
}

// Encode serializes the image in the given format, falling back to the
// source format when format is empty. Any pending orientation is applied
// first so the output pixels match the capture orientation.
func (e *Engine) Encode(h *Handle, format string) ([]byte, error) {
	h.normalize()
	if format == "" {
		format = h.format
	}
	format = NormalizeFormat(format)

	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = imaging.Encode(&buf, h.img, imaging.JPEG, imaging.JPEGQuality(e.JPEGQuality))
	case "png":
		err = imaging.Encode(&buf, h.img, imaging.PNG)
	case "gif":
		err = imaging.Encode(&buf, h.img, imaging.GIF)
	case "tiff":
		err = imaging.Encode(&buf, h.img, imaging.TIFF)
	case "bmp":
		err = bmp.Encode(&buf, h.img)
	case "webp":
		opts := &webp.Options{Lossless: e.WebPLossless, Quality: e.WebPQuality}
		err = webp.Encode(&buf, h.img, opts)
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// readOrientation extracts the EXIF orientation tag from raw image bytes.
// Images without EXIF data, or with an out-of-range tag, report 0.
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 0
	}
	return v
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}

// NormalizeFormat lowercases a format name and folds the common aliases
// onto their canonical spelling.
func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	}
	return format
}
