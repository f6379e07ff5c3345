// Package detect defines the detection collaborators behind smart
// cropping. Both smart crop modes hand the current image to a detector
// and work from the normalized bounding boxes that come back: face
// cropping needs a ranked face list, object cropping needs labels with
// localized instances. The package also carries the prompts and response
// parsing shared by the vision model backends in the subpackages.
package detect

import (
	"context"
	"fmt"

	"github.com/menta2k/image-pipeline/pkg/types"
)

// FaceDetector locates faces in an image. Implementations return faces
// ordered by descending confidence with boxes normalized to [0,1].
type FaceDetector interface {
	DetectFaces(ctx context.Context, image []byte) ([]types.Face, error)
}

// LabelDetector finds object labels in an image, keeping only labels
// whose confidence is at least minConfidence. Instances carry normalized
// bounding boxes; labels without localizable instances are still
// reported, just with an empty instance list.
type LabelDetector interface {
	DetectLabels(ctx context.Context, image []byte, minConfidence float64) ([]types.Label, error)
}

// FacePrompt instructs a vision model to report every face as strict JSON.
const FacePrompt = `You are a face detector.

Return JSON only:
{
  "faces": [
    {"confidence": 0.0, "box": {"left": 0.0, "top": 0.0, "width": 0.0, "height": 0.0}}
  ]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels), origin at the top-left corner.
- One entry per visible human face, tightly boxed from chin to hairline.
- Order entries by confidence, highest first.
- If there are no faces, return {"faces": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// LabelPrompt builds the object detection prompt for a given confidence
// floor.
func LabelPrompt(minConfidence float64) string {
	return fmt.Sprintf(`You are an object detector.

Return JSON only:
{
  "labels": [
    {
      "name": "string",
      "confidence": 0.0,
      "instances": [
        {"confidence": 0.0, "box": {"left": 0.0, "top": 0.0, "width": 0.0, "height": 0.0}}
      ]
    }
  ]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels), origin at the top-left corner.
- Report each distinct object category once, with one instance per visible occurrence.
- Only include labels you are at least %.2f confident about.
- Scene-level labels without a locatable region get "instances": [].
- If nothing is detected, return {"labels": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`, minConfidence)
}
