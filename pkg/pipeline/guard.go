package pipeline

import (
	"github.com/menta2k/image-pipeline/pkg/errs"
)

// DefaultMaxOutputBytes caps encoded results at 6 MiB, the response
// payload ceiling of common serverless frontends.
const DefaultMaxOutputBytes = 6 * 1024 * 1024

// SizeGuard rejects encoded payloads above a byte ceiling. The check
// runs on the final encoded bytes, not on pixel dimensions, so a huge
// image that compresses well still passes.
type SizeGuard struct {
	// MaxBytes is the inclusive upper bound. Zero or negative selects
	// DefaultMaxOutputBytes.
	MaxBytes int
}

// Check returns a payload-too-large error when data is strictly larger
// than the ceiling. A payload of exactly the ceiling passes.
func (g SizeGuard) Check(data []byte) error {
	max := g.MaxBytes
	if max <= 0 {
		max = DefaultMaxOutputBytes
	}
	if len(data) > max {
		return errs.Newf(413, errs.CodeTooLargeImage,
			"encoded image is %d bytes, above the %d byte limit", len(data), max)
	}
	return nil
}
