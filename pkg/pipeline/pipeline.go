// Package pipeline applies ordered edit specifications to decoded
// images. A spec is a JSON object whose keys are operation names and
// whose order is significant; the pipeline walks it once, dispatching
// generic operations to the engine and the overlay and smart crop
// entries to their resolvers.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/menta2k/image-pipeline/pkg/engine"
	"github.com/menta2k/image-pipeline/pkg/errs"
	"github.com/menta2k/image-pipeline/pkg/geometry"
	"github.com/menta2k/image-pipeline/pkg/overlay"
	"github.com/menta2k/image-pipeline/pkg/smartcrop"
	"github.com/menta2k/image-pipeline/pkg/types"
)

// Operation names the pipeline handles itself. Everything else goes to
// the engine registry.
const (
	opResize     = "resize"
	opRotate     = "rotate"
	opOverlay    = "overlayWith"
	opFaceCrop   = "smartCrop"
	opObjectCrop = "smartCrop2"
)

// Pipeline walks an edit spec over a decoded image.
type Pipeline struct {
	engine   *engine.Engine
	overlays *overlay.Resolver
	faces    *smartcrop.FaceCrop
	objects  *smartcrop.ObjectCrop
	logger   *zap.Logger
}

// New builds a pipeline. The resolvers may be nil when the deployment
// has no object store or no detector; the matching edits then fail with
// a configuration error instead of being silently dropped.
func New(eng *engine.Engine, overlays *overlay.Resolver, faces *smartcrop.FaceCrop, objects *smartcrop.ObjectCrop, logger *zap.Logger) *Pipeline {
	if eng == nil {
		eng = engine.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		engine:   eng,
		overlays: overlays,
		faces:    faces,
		objects:  objects,
		logger:   logger,
	}
}

// Apply runs every operation of the spec against the handle, in spec
// order. The handle is modified in place; on error it may hold a
// partially edited image and must be discarded.
func (p *Pipeline) Apply(ctx context.Context, h *engine.Handle, spec EditSpec) error {
	spec = spec.WithDefaultResize()

	// The stored-orientation opt-out is decided up front: a rotate
	// entry with null parameters pins the pixels as stored for the
	// whole run, wherever the entry sits in the spec.
	if raw, ok := spec.Get(opRotate); ok && isNull(raw) {
		h.SkipOrientation()
	}

	for _, entry := range spec.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch entry.Name {
		case opOverlay:
			err = p.applyOverlay(ctx, h, spec, entry.Params)
		case opFaceCrop:
			err = p.applyFaceCrop(ctx, h, entry.Params)
		case opObjectCrop:
			err = p.applyObjectCrop(ctx, h, entry.Params)
		default:
			err = p.applyOperation(h, entry)
		}
		if err != nil {
			return fmt.Errorf("apply edit %q: %w", entry.Name, err)
		}
		p.logger.Debug("edit applied",
			zap.String("operation", entry.Name),
			zap.Int("width", h.Width()),
			zap.Int("height", h.Height()))
	}
	return nil
}

// applyOperation hands a generic edit to the engine registry.
func (p *Pipeline) applyOperation(h *engine.Handle, entry Entry) error {
	params, err := decodeParams(entry.Params)
	if err != nil {
		return errs.Wrap(400, errs.CodeInvalidEdit,
			fmt.Sprintf("parameters of %q are not valid JSON", entry.Name), err)
	}
	if err := p.engine.Apply(h, entry.Name, params); err != nil {
		if errors.Is(err, engine.ErrUnknownOperation) {
			return errs.Wrap(400, errs.CodeUnknownEditOperation,
				fmt.Sprintf("edit operation %q is not supported", entry.Name), err)
		}
		return errs.Wrap(400, errs.CodeInvalidEdit,
			fmt.Sprintf("edit operation %q failed", entry.Name), err)
	}
	return nil
}

func (p *Pipeline) applyOverlay(ctx context.Context, h *engine.Handle, spec EditSpec, raw json.RawMessage) error {
	if p.overlays == nil {
		return errs.New(500, errs.CodeInternal, "no object store configured for overlays")
	}
	var ospec overlay.Spec
	if err := decodeInto(raw, &ospec); err != nil {
		return errs.Wrap(400, errs.CodeInvalidEdit, "overlay parameters are not valid JSON", err)
	}
	baseWidth, baseHeight := p.overlayBase(h, spec)
	input, err := p.overlays.Resolve(ctx, baseWidth, baseHeight, ospec)
	if err != nil {
		return err
	}
	if err := p.engine.Composite(h, []engine.CompositeInput{input}); err != nil {
		return errs.Wrap(500, errs.CodeInternal, "composite overlay", err)
	}
	return nil
}

// overlayBase reports the dimensions the base image will have after its
// resize entry. Overlay ratios and placements always measure against the
// post-resize size, even when the overlay entry precedes the resize.
func (p *Pipeline) overlayBase(h *engine.Handle, spec EditSpec) (int, int) {
	raw, ok := spec.Get(opResize)
	if !ok {
		return h.Width(), h.Height()
	}
	params, err := decodeParams(raw)
	if err != nil {
		return h.Width(), h.Height()
	}
	sim := h.Clone()
	if err := p.engine.Apply(sim, opResize, params); err != nil {
		return h.Width(), h.Height()
	}
	return sim.Width(), sim.Height()
}

func (p *Pipeline) applyFaceCrop(ctx context.Context, h *engine.Handle, raw json.RawMessage) error {
	if isFalse(raw) {
		return nil
	}
	if p.faces == nil {
		return errs.New(500, errs.CodeInternal, "no face detector configured")
	}
	var opts smartcrop.FaceCropOptions
	if err := decodeInto(raw, &opts); err != nil {
		return errs.Wrap(400, errs.CodeInvalidEdit, "smart crop parameters are not valid JSON", err)
	}
	data, err := p.detectorInput(h)
	if err != nil {
		return err
	}
	rect, err := p.faces.Resolve(ctx, data, h.Width(), h.Height(), opts)
	if err != nil {
		return err
	}
	return p.extractChecked(h, rect)
}

func (p *Pipeline) applyObjectCrop(ctx context.Context, h *engine.Handle, raw json.RawMessage) error {
	if isFalse(raw) {
		return nil
	}
	if p.objects == nil {
		return errs.New(500, errs.CodeInternal, "no label detector configured")
	}
	var opts smartcrop.ObjectCropOptions
	if err := decodeInto(raw, &opts); err != nil {
		return errs.Wrap(400, errs.CodeInvalidEdit, "smart crop parameters are not valid JSON", err)
	}
	data, err := p.detectorInput(h)
	if err != nil {
		return err
	}
	rect, err := p.objects.Resolve(ctx, data, h.Width(), h.Height(), opts)
	if err != nil {
		return err
	}
	return p.extractChecked(h, rect)
}

// detectorInput serializes the current image for a detector call.
// Detectors see the image as it stands at the crop entry, PNG encoded
// so lossy re-compression does not shift the reported boxes.
func (p *Pipeline) detectorInput(h *engine.Handle) ([]byte, error) {
	data, err := p.engine.Encode(h, "png")
	if err != nil {
		return nil, errs.Wrap(500, errs.CodeInternal, "encode image for detection", err)
	}
	return data, nil
}

// extractChecked validates the crop region against the current image
// before cutting. A region pushed outside the image by padding is the
// caller's mistake and reports as such.
func (p *Pipeline) extractChecked(h *engine.Handle, rect types.CropRectangle) error {
	if err := geometry.ValidateRectangle(rect, h.Width(), h.Height()); err != nil {
		return errs.Wrap(400, errs.CodePaddingOutOfBounds,
			"smart crop region does not fit inside the image", err)
	}
	if err := p.engine.Extract(h, rect); err != nil {
		return errs.Wrap(500, errs.CodeInternal, "extract crop region", err)
	}
	return nil
}

// decodeParams turns raw JSON into the loose any-typed value the engine
// registry consumes. Absent and null parameters both come back nil.
func decodeParams(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeInto fills an options struct, treating null and bare true as a
// request for the defaults.
func decodeInto(raw json.RawMessage, v any) error {
	if len(raw) == 0 || isNull(raw) || isTrue(raw) {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isTrue(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("true"))
}

func isFalse(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("false"))
}
