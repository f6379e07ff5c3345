// Package geometry converts normalized bounding boxes into pixel crop
// rectangles and validates rectangles against image bounds.
package geometry

import (
	"fmt"
	"math"

	"github.com/menta2k/image-pipeline/pkg/types"
)

// CropFromBoundingBox maps a normalized bounding box onto an image of the
// given pixel dimensions and grows it by padding pixels on every side.
// The left and top edges are clamped at zero and the width and height are
// clamped so the rectangle never extends past the right or bottom edge.
// Clamping cannot repair every input: a large negative padding can still
// produce a degenerate rectangle, which ValidateRectangle rejects.
func CropFromBoundingBox(box types.BoundingBox, padding float64, imgWidth, imgHeight int) types.CropRectangle {
	w := float64(imgWidth)
	h := float64(imgHeight)

	left := math.Max(0, math.Round(box.Left*w-padding))
	top := math.Max(0, math.Round(box.Top*h-padding))
	width := math.Min(w-left, math.Round(box.Width*w+2*padding))
	height := math.Min(h-top, math.Round(box.Height*h+2*padding))

	return types.CropRectangle{
		Left:   int(left),
		Top:    int(top),
		Width:  int(width),
		Height: int(height),
	}
}

// ValidateRectangle reports whether rect is a usable crop region for an
// image of the given dimensions: positive area, non-negative origin and
// fully inside the image.
func ValidateRectangle(rect types.CropRectangle, imgWidth, imgHeight int) error {
	if rect.Width <= 0 || rect.Height <= 0 {
		return fmt.Errorf("crop rectangle %dx%d has no area", rect.Width, rect.Height)
	}
	if rect.Left < 0 || rect.Top < 0 {
		return fmt.Errorf("crop rectangle origin (%d,%d) is negative", rect.Left, rect.Top)
	}
	if rect.Left+rect.Width > imgWidth || rect.Top+rect.Height > imgHeight {
		return fmt.Errorf("crop rectangle %dx%d at (%d,%d) exceeds image bounds %dx%d",
			rect.Width, rect.Height, rect.Left, rect.Top, imgWidth, imgHeight)
	}
	return nil
}
