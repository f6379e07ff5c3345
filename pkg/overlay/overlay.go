// Package overlay resolves overlay compositing requests: it fetches the
// overlay source from an object store, scales it relative to the base
// image, applies a uniform transparency and computes its placement. The
// result is a ready-to-composite layer; the engine does the actual pixel
// work.
package overlay

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-pipeline/pkg/engine"
	"github.com/menta2k/image-pipeline/pkg/errs"
	"github.com/menta2k/image-pipeline/pkg/storage"
)

// Options carries the optional placement constraints of an overlay.
// Values stay untyped here because callers send numbers and suffixed
// strings interchangeably; ParsePlacement sorts them out.
type Options struct {
	Left any `json:"left,omitempty"`
	Top  any `json:"top,omitempty"`
}

// Spec describes one overlay request from an edit specification.
type Spec struct {
	// Bucket and Key address the overlay source in the object store.
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	// WRatio and HRatio scale the overlay to a percentage of the base
	// image dimensions. Integers in [1,100]; anything else leaves the
	// overlay at its natural size on that axis.
	WRatio any `json:"wRatio,omitempty"`
	HRatio any `json:"hRatio,omitempty"`
	// Alpha is the transparency to apply, 0 (opaque) to 100 (invisible).
	// Out-of-range or non-numeric values mean opaque.
	Alpha   any     `json:"alpha,omitempty"`
	Options Options `json:"options,omitempty"`
}

// Resolver builds composite layers from overlay specs.
type Resolver struct {
	Store  storage.ObjectStore
	Engine *engine.Engine
}

// NewResolver creates a resolver reading overlay sources from store.
func NewResolver(store storage.ObjectStore, eng *engine.Engine) *Resolver {
	return &Resolver{Store: store, Engine: eng}
}

// Resolve fetches and prepares the overlay described by spec against a
// base image of the given dimensions. Ratios and placements are relative
// to those dimensions, so callers must pass the size the base will have
// when the overlay is composited.
func (r *Resolver) Resolve(ctx context.Context, baseWidth, baseHeight int, spec Spec) (engine.CompositeInput, error) {
	if spec.Bucket == "" || spec.Key == "" {
		return engine.CompositeInput{}, errs.New(400, errs.CodeInvalidEdit, "overlay requires a bucket and key")
	}

	data, err := r.Store.Get(ctx, spec.Bucket, spec.Key)
	if err != nil {
		if storage.IsNotFound(err) {
			return engine.CompositeInput{}, errs.Wrap(404, errs.CodeNoSuchKey,
				fmt.Sprintf("overlay source %s/%s does not exist", spec.Bucket, spec.Key), err)
		}
		return engine.CompositeInput{}, errs.Wrap(500, errs.CodeUpstream, "fetch overlay source", err)
	}

	ov, err := r.Engine.Decode(data)
	if err != nil {
		return engine.CompositeInput{}, errs.Wrap(400, errs.CodeInvalidImage,
			fmt.Sprintf("overlay source %s/%s is not a decodable image", spec.Bucket, spec.Key), err)
	}

	// Scale relative to the base image, preserving aspect ratio when
	// only one axis is constrained.
	w, wok := ratioDim(spec.WRatio, baseWidth)
	h, hok := ratioDim(spec.HRatio, baseHeight)
	if wok || hok {
		params := map[string]any{"fit": "inside"}
		if wok {
			params["width"] = w
		}
		if hok {
			params["height"] = h
		}
		if err := r.Engine.Apply(ov, "resize", params); err != nil {
			return engine.CompositeInput{}, errs.Wrap(500, errs.CodeInternal, "resize overlay", err)
		}
	}

	if ma := maskAlpha(spec.Alpha); ma < 255 {
		mask := engine.FromImage(imaging.New(1, 1, color.NRGBA{A: ma}), "png")
		err := r.Engine.Composite(ov, []engine.CompositeInput{{
			Source: mask,
			Blend:  engine.BlendDestIn,
			Tile:   true,
		}})
		if err != nil {
			return engine.CompositeInput{}, errs.Wrap(500, errs.CodeInternal, "apply overlay transparency", err)
		}
	}

	input := engine.CompositeInput{Source: ov, Blend: engine.BlendOver}
	if pos, ok := ParsePlacement(spec.Options.Left).Resolve(baseWidth, ov.Width()); ok {
		input.Left = &pos
	}
	if pos, ok := ParsePlacement(spec.Options.Top).Resolve(baseHeight, ov.Height()); ok {
		input.Top = &pos
	}
	return input, nil
}

// ratioDim converts a percentage ratio into a pixel dimension. Only
// integer ratios in [1,100] count; everything else reports false.
func ratioDim(v any, base int) (int, bool) {
	f, ok := coerceNumber(v)
	if !ok || f != math.Trunc(f) || f < 1 || f > 100 {
		return 0, false
	}
	return int(math.Round(float64(base) * f / 100.0)), true
}

// maskAlpha maps a 0-100 transparency onto the alpha byte of the 1x1
// mask tile: 0 keeps the overlay opaque (255), 100 erases it (0).
// Values outside the range, or values that are not numbers, read as 0.
func maskAlpha(v any) uint8 {
	a, ok := coerceNumber(v)
	if !ok || a < 0 || a > 100 {
		a = 0
	}
	return uint8(math.Round(255 * (1 - a/100)))
}

func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
