package types

// BoundingBox is a region of an image expressed in normalized coordinates.
// Left, Top, Width and Height are fractions of the image dimensions in the
// [0,1] range, with the origin at the top-left corner.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FullImage returns the bounding box covering an entire image.
func FullImage() BoundingBox {
	return BoundingBox{Left: 0, Top: 0, Width: 1, Height: 1}
}

// CropRectangle is a crop region in pixel coordinates, with the origin at
// the top-left corner of the image.
type CropRectangle struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Face is a single detected face. Detectors return faces ordered by
// descending confidence, so index 0 is always the most prominent face.
type Face struct {
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// Instance is one concrete occurrence of a detected label within an image.
type Instance struct {
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// Label is a detected object category together with the locations where it
// appears. Labels without localizable instances have an empty Instances
// slice.
type Label struct {
	Name       string     `json:"name"`
	Confidence float64    `json:"confidence"`
	Instances  []Instance `json:"instances,omitempty"`
}
