// Package smartcrop turns detector output into crop rectangles. Face
// cropping centers on one detected face; object cropping fuses every
// detected object instance into a single region. Both modes take the
// image bytes to analyze plus the pixel dimensions the crop applies to,
// and return a rectangle ready for extraction.
package smartcrop

import (
	"context"
	"math"

	"github.com/menta2k/image-pipeline/pkg/detect"
	"github.com/menta2k/image-pipeline/pkg/errs"
	"github.com/menta2k/image-pipeline/pkg/geometry"
	"github.com/menta2k/image-pipeline/pkg/types"
)

// FaceCropOptions selects which face to crop to and how much context to
// keep around it.
type FaceCropOptions struct {
	// FaceIndex picks a face from the detector's ranked list, 0 being
	// the most confident one.
	FaceIndex int `json:"faceIndex"`
	// Padding is added in pixels on every side of the face box.
	Padding float64 `json:"padding"`
}

// FaceCrop resolves a crop rectangle around a detected face.
type FaceCrop struct {
	Detector detect.FaceDetector
}

// NewFaceCrop creates a face crop resolver backed by the given detector.
func NewFaceCrop(d detect.FaceDetector) *FaceCrop {
	return &FaceCrop{Detector: d}
}

// Resolve detects faces in image and maps the selected face onto an
// imgWidth x imgHeight pixel grid. Requesting a face index at or beyond
// the number of detected faces is a caller error, including index 0 on
// an image with no faces.
func (f *FaceCrop) Resolve(ctx context.Context, image []byte, imgWidth, imgHeight int, opts FaceCropOptions) (types.CropRectangle, error) {
	faces, err := f.Detector.DetectFaces(ctx, image)
	if err != nil {
		return types.CropRectangle{}, errs.Wrap(500, errs.CodeUpstream, "face detection failed", err)
	}
	if opts.FaceIndex < 0 || opts.FaceIndex >= len(faces) {
		return types.CropRectangle{}, errs.Newf(400, errs.CodeFaceIndexOutOfRange,
			"faceIndex %d is out of range for %d detected face(s)", opts.FaceIndex, len(faces))
	}
	box := faces[opts.FaceIndex].Box
	return geometry.CropFromBoundingBox(box, opts.Padding, imgWidth, imgHeight), nil
}

// DefaultMinConfidence is the label confidence floor used when the edit
// does not set one.
const DefaultMinConfidence = 0.5

// ObjectCropOptions tunes object-driven cropping.
type ObjectCropOptions struct {
	// MinConfidence is the label confidence floor in [0,1]. Zero means
	// DefaultMinConfidence.
	MinConfidence float64 `json:"minConfidence"`
	// Padding is added in pixels on every side of the fused region.
	Padding float64 `json:"padding"`
}

// ObjectCrop resolves a crop rectangle around every detected object.
type ObjectCrop struct {
	Detector detect.LabelDetector
}

// NewObjectCrop creates an object crop resolver backed by the given
// detector.
func NewObjectCrop(d detect.LabelDetector) *ObjectCrop {
	return &ObjectCrop{Detector: d}
}

// Resolve detects labels in image, fuses their instances into one region
// and maps it onto an imgWidth x imgHeight pixel grid. With no instances
// at all the crop covers the full image.
func (o *ObjectCrop) Resolve(ctx context.Context, image []byte, imgWidth, imgHeight int, opts ObjectCropOptions) (types.CropRectangle, error) {
	minConfidence := opts.MinConfidence
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	labels, err := o.Detector.DetectLabels(ctx, image, minConfidence)
	if err != nil {
		return types.CropRectangle{}, errs.Wrap(500, errs.CodeUpstream, "label detection failed", err)
	}
	box := FuseInstances(labels)
	return geometry.CropFromBoundingBox(box, opts.Padding, imgWidth, imgHeight), nil
}

// FuseInstances folds every instance box across all labels into one
// bounding region. No instances at all yields the full image.
func FuseInstances(labels []types.Label) types.BoundingBox {
	acc := newFusionAccumulator()
	count := 0
	for _, label := range labels {
		for _, inst := range label.Instances {
			acc.add(inst.Box)
			count++
		}
	}
	if count == 0 {
		return types.FullImage()
	}
	return types.BoundingBox{Left: acc.left, Top: acc.top, Width: acc.width, Height: acc.height}
}

// fusionAccumulator tracks the running union of normalized boxes. Left
// and top seed at the image midpoint so the first box always pulls them
// inward; width and height seed at zero so the far edges are driven
// purely by the boxes seen so far.
type fusionAccumulator struct {
	left, top, width, height float64
}

func newFusionAccumulator() fusionAccumulator {
	return fusionAccumulator{left: 0.5, top: 0.5}
}

// add extends the accumulated region to cover b. The extents compare the
// previous span against the new box's far edge before rebasing on the
// updated origin, so the region only ever grows.
func (a *fusionAccumulator) add(b types.BoundingBox) {
	newLeft := math.Min(a.left, b.Left)
	newTop := math.Min(a.top, b.Top)
	a.height = math.Max(a.height, b.Top+b.Height) - newTop
	a.width = math.Max(a.width, b.Left+b.Width) - newLeft
	a.left = newLeft
	a.top = newTop
}
