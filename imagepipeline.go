// Package imagepipeline turns declarative edit specifications into
// processed images.
//
// A specification is an ordered JSON object mapping operation names to
// parameters; operations apply in exactly the order they were written.
// Generic operations (resize, rotate, blur, ...) run against the pixel
// engine. Three entries are resolved specially: overlayWith composites
// another stored image onto the base, and smartCrop / smartCrop2 cut
// the image down to regions reported by a face or object detector.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		imagepipeline "github.com/menta2k/image-pipeline"
//		"github.com/menta2k/image-pipeline/pkg/pipeline"
//	)
//
//	func main() {
//		data, err := os.ReadFile("photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		handler, err := imagepipeline.New()
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		var edits pipeline.EditSpec
//		edits.Set("resize", map[string]any{"width": 800})
//		edits.Set("grayscale", true)
//
//		result, err := handler.Process(context.Background(), imagepipeline.Request{
//			OriginalImage: data,
//			Edits:         &edits,
//			OutputFormat:  "jpeg",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		if err := os.WriteFile("photo_edited.jpg", result.Data, 0o644); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of four main components:
//
// 1. Engine (pkg/engine): decodes, transforms and encodes raster images
// 2. Pipeline (pkg/pipeline): walks edit specifications in order
// 3. Overlay (pkg/overlay): scales and places stored overlay images
// 4. Smart crop (pkg/smartcrop): turns detected regions into crop rectangles
//
// Overlays need an object store (pkg/storage) and the smart crop entries
// need detectors (pkg/detect, with backends for Ollama and llama.cpp
// servers); wire them in through the handler options. Failures surface
// as pkg/errs errors carrying an HTTP-style status and a stable code.
package imagepipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/image-pipeline/internal/logging"
	"github.com/menta2k/image-pipeline/pkg/detect"
	"github.com/menta2k/image-pipeline/pkg/engine"
	"github.com/menta2k/image-pipeline/pkg/errs"
	"github.com/menta2k/image-pipeline/pkg/overlay"
	"github.com/menta2k/image-pipeline/pkg/pipeline"
	"github.com/menta2k/image-pipeline/pkg/smartcrop"
	"github.com/menta2k/image-pipeline/pkg/storage"
)

// Version of the image pipeline library
const Version = "1.0.0"

// Request is one processing call. OriginalImage holds the raw encoded
// image; when a request travels as JSON the field carries base64, which
// is how encoding/json represents byte slices. A nil Edits returns the
// image re-encoded but otherwise untouched.
type Request struct {
	OriginalImage []byte             `json:"originalImage"`
	Edits         *pipeline.EditSpec `json:"edits,omitempty"`
	OutputFormat  string             `json:"outputFormat,omitempty"`
}

// Result is the processed image with its effective output format and
// final pixel dimensions.
type Result struct {
	Data   []byte `json:"data"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Handler is the high-level entry point tying the engine, the pipeline
// and the optional collaborators together.
type Handler struct {
	engine *engine.Engine
	store  storage.ObjectStore
	faces  detect.FaceDetector
	labels detect.LabelDetector
	guard  pipeline.SizeGuard
	logger *zap.Logger
	pipe   *pipeline.Pipeline
}

// Option configures a Handler.
type Option func(*Handler)

// WithEngine replaces the default engine, for callers that need custom
// encoder settings.
func WithEngine(eng *engine.Engine) Option {
	return func(h *Handler) {
		if eng != nil {
			h.engine = eng
		}
	}
}

// WithStore wires the object store overlay sources are fetched from.
// Without a store, overlayWith edits fail.
func WithStore(store storage.ObjectStore) Option {
	return func(h *Handler) { h.store = store }
}

// WithFaceDetector wires the detector behind smartCrop edits.
func WithFaceDetector(d detect.FaceDetector) Option {
	return func(h *Handler) { h.faces = d }
}

// WithLabelDetector wires the detector behind smartCrop2 edits.
func WithLabelDetector(d detect.LabelDetector) Option {
	return func(h *Handler) { h.labels = d }
}

// WithSizeCeiling caps the encoded result at maxBytes. Zero or negative
// keeps the default ceiling.
func WithSizeCeiling(maxBytes int) Option {
	return func(h *Handler) { h.guard = pipeline.SizeGuard{MaxBytes: maxBytes} }
}

// WithLogger replaces the default production logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates a Handler with default configuration, applying any options.
func New(opts ...Option) (*Handler, error) {
	h := &Handler{engine: engine.New()}
	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		logger, err := logging.New(false)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		h.logger = logger
	}

	var overlays *overlay.Resolver
	if h.store != nil {
		overlays = overlay.NewResolver(h.store, h.engine)
	}
	var faceCrop *smartcrop.FaceCrop
	if h.faces != nil {
		faceCrop = smartcrop.NewFaceCrop(h.faces)
	}
	var objectCrop *smartcrop.ObjectCrop
	if h.labels != nil {
		objectCrop = smartcrop.NewObjectCrop(h.labels)
	}
	h.pipe = pipeline.New(h.engine, overlays, faceCrop, objectCrop, h.logger)
	return h, nil
}

// Process decodes the original image, applies the edit specification in
// order and re-encodes the result. The encoded payload is checked
// against the size ceiling; anything above it fails rather than being
// silently recompressed.
func (h *Handler) Process(ctx context.Context, req Request) (*Result, error) {
	logger := logging.WithRequest(h.logger, "process", uuid.NewString())

	if len(req.OriginalImage) == 0 {
		return nil, errs.New(400, errs.CodeInvalidImage, "request carries no image data")
	}
	handle, err := h.engine.Decode(req.OriginalImage)
	if err != nil {
		return nil, errs.Wrap(400, errs.CodeInvalidImage, "original image is not decodable", err)
	}

	if req.Edits != nil {
		if err := h.pipe.Apply(ctx, handle, *req.Edits); err != nil {
			return nil, err
		}
	}

	data, err := h.engine.Encode(handle, req.OutputFormat)
	if err != nil {
		if errors.Is(err, engine.ErrUnsupportedFormat) {
			return nil, errs.Wrap(400, errs.CodeInvalidEdit,
				fmt.Sprintf("output format %q is not supported", req.OutputFormat), err)
		}
		return nil, errs.Wrap(500, errs.CodeInternal, "encode result", err)
	}
	if err := h.guard.Check(data); err != nil {
		return nil, err
	}

	format := engine.NormalizeFormat(req.OutputFormat)
	if format == "" {
		format = handle.Format()
	}
	logger.Info("image processed",
		zap.String("format", format),
		zap.Int("width", handle.Width()),
		zap.Int("height", handle.Height()),
		zap.Int("bytes", len(data)))

	return &Result{
		Data:   data,
		Format: format,
		Width:  handle.Width(),
		Height: handle.Height(),
	}, nil
}

// Inspect decodes an image and reports its metadata without editing it.
func (h *Handler) Inspect(data []byte) (engine.Metadata, error) {
	if len(data) == 0 {
		return engine.Metadata{}, errs.New(400, errs.CodeInvalidImage, "request carries no image data")
	}
	handle, err := h.engine.Decode(data)
	if err != nil {
		return engine.Metadata{}, errs.Wrap(400, errs.CodeInvalidImage, "image is not decodable", err)
	}
	return h.engine.Metadata(handle), nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
