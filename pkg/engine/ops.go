package engine

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"

	"github.com/menta2k/image-pipeline/pkg/types"
)

// ErrUnknownOperation is returned by Apply for operation names that are
// not in the registry. Callers must not silently drop such entries.
var ErrUnknownOperation = errors.New("unknown edit operation")

type opFunc func(e *Engine, h *Handle, params any) error

var operations = map[string]opFunc{
	"resize":     opResize,
	"rotate":     opRotate,
	"flip":       opFlip,
	"flop":       opFlop,
	"blur":       opBlur,
	"sharpen":    opSharpen,
	"gamma":      opGamma,
	"grayscale":  opGrayscale,
	"greyscale":  opGrayscale,
	"negate":     opNegate,
	"brightness": opBrightness,
	"contrast":   opContrast,
	"saturation": opSaturation,
	"hue":        opHue,
	"median":     opMedian,
	"sepia":      opSepia,
	"crop":       opCrop,
	"extend":     opExtend,
	"flatten":    opFlatten,
}

// Apply runs the named operation against the handle. Unknown names return
// ErrUnknownOperation.
func (e *Engine) Apply(h *Handle, name string, params any) error {
	op, ok := operations[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownOperation)
	}
	return op(e, h, params)
}

// Operations lists the registered operation names in sorted order.
func (e *Engine) Operations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func opResize(e *Engine, h *Handle, params any) error {
	m := paramMap(params)
	width, _ := intField(m, "width")
	height, _ := intField(m, "height")
	if width < 0 || height < 0 {
		return fmt.Errorf("resize: negative dimensions %dx%d", width, height)
	}
	fit, _ := stringField(m, "fit")

	h.normalize()
	switch {
	case width == 0 && height == 0:
		return nil
	case width == 0:
		h.img = imaging.Resize(h.img, 0, height, imaging.Lanczos)
	case height == 0:
		h.img = imaging.Resize(h.img, width, 0, imaging.Lanczos)
	default:
		b := h.img.Bounds()
		switch fit {
		case "", "inside":
			fw, fh := scaleDims(b.Dx(), b.Dy(), width, height, false)
			h.img = imaging.Resize(h.img, fw, fh, imaging.Lanczos)
		case "outside":
			fw, fh := scaleDims(b.Dx(), b.Dy(), width, height, true)
			h.img = imaging.Resize(h.img, fw, fh, imaging.Lanczos)
		case "cover":
			h.img = imaging.Fill(h.img, width, height, imaging.Center, imaging.Lanczos)
		case "contain":
			bg, err := backgroundColor(m, color.NRGBA{})
			if err != nil {
				return fmt.Errorf("resize: %w", err)
			}
			fw, fh := scaleDims(b.Dx(), b.Dy(), width, height, false)
			scaled := imaging.Resize(h.img, fw, fh, imaging.Lanczos)
			canvas := imaging.New(width, height, bg)
			h.img = imaging.Paste(canvas, scaled, image.Pt((width-fw)/2, (height-fh)/2))
		case "fill":
			h.img = imaging.Resize(h.img, width, height, imaging.Lanczos)
		default:
			return fmt.Errorf("resize: unknown fit %q", fit)
		}
	}
	return nil
}

// scaleDims returns the dimensions of src scaled uniformly so it fits
// inside (or, for outside, covers) a width x height box. Unlike a plain
// bounding-box fit this also enlarges smaller sources.
func scaleDims(srcW, srcH, width, height int, outside bool) (int, int) {
	sx := float64(width) / float64(srcW)
	sy := float64(height) / float64(srcH)
	scale := math.Min(sx, sy)
	if outside {
		scale = math.Max(sx, sy)
	}
	w := int(math.Round(float64(srcW) * scale))
	h := int(math.Round(float64(srcH) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// opRotate rotates by an explicit angle. A null parameter is the opt-out
// for EXIF handling: the orientation tag is marked handled without being
// applied and the pixels pass through untouched.
func opRotate(e *Engine, h *Handle, params any) error {
	if params == nil {
		h.SkipOrientation()
		return nil
	}
	angle, ok := toNumber(params)
	if !ok {
		angle, ok = numberField(paramMap(params), "angle")
	}
	if !ok {
		return fmt.Errorf("rotate: invalid angle %v", params)
	}

	h.normalize()
	deg := math.Mod(angle, 360)
	if deg < 0 {
		deg += 360
	}
	switch deg {
	case 0:
	case 90:
		h.img = imaging.Rotate270(h.img)
	case 180:
		h.img = imaging.Rotate180(h.img)
	case 270:
		h.img = imaging.Rotate90(h.img)
	default:
		// imaging rotates counter-clockwise, edit angles are clockwise
		h.img = imaging.Rotate(h.img, -deg, color.NRGBA{})
	}
	return nil
}

func opFlip(e *Engine, h *Handle, params any) error {
	if b, ok := params.(bool); ok && !b {
		return nil
	}
	h.normalize()
	h.img = imaging.FlipV(h.img)
	return nil
}

func opFlop(e *Engine, h *Handle, params any) error {
	if b, ok := params.(bool); ok && !b {
		return nil
	}
	h.normalize()
	h.img = imaging.FlipH(h.img)
	return nil
}

func opBlur(e *Engine, h *Handle, params any) error {
	sigma, ok := numberParam(params, "sigma")
	if !ok || sigma <= 0 {
		return fmt.Errorf("blur: sigma must be a positive number")
	}
	h.normalize()
	h.img = imaging.Blur(h.img, sigma)
	return nil
}

func opSharpen(e *Engine, h *Handle, params any) error {
	sigma, ok := numberParam(params, "sigma")
	if !ok || sigma <= 0 {
		return fmt.Errorf("sharpen: sigma must be a positive number")
	}
	h.normalize()
	h.img = imaging.Sharpen(h.img, sigma)
	return nil
}

func opGamma(e *Engine, h *Handle, params any) error {
	gamma, ok := numberParam(params, "value")
	if !ok || gamma <= 0 {
		return fmt.Errorf("gamma: value must be a positive number")
	}
	h.normalize()
	h.img = imaging.AdjustGamma(h.img, gamma)
	return nil
}

func opGrayscale(e *Engine, h *Handle, params any) error {
	if b, ok := params.(bool); ok && !b {
		return nil
	}
	h.normalize()
	h.img = imaging.Grayscale(h.img)
	return nil
}

func opNegate(e *Engine, h *Handle, params any) error {
	if b, ok := params.(bool); ok && !b {
		return nil
	}
	h.normalize()
	h.img = imaging.Invert(h.img)
	return nil
}

func opBrightness(e *Engine, h *Handle, params any) error {
	amount, ok := numberParam(params, "amount")
	if !ok {
		return fmt.Errorf("brightness: amount is required")
	}
	h.normalize()
	h.img = adjust.Brightness(h.img, amount)
	return nil
}

func opContrast(e *Engine, h *Handle, params any) error {
	amount, ok := numberParam(params, "amount")
	if !ok {
		return fmt.Errorf("contrast: amount is required")
	}
	h.normalize()
	h.img = adjust.Contrast(h.img, amount)
	return nil
}

func opSaturation(e *Engine, h *Handle, params any) error {
	amount, ok := numberParam(params, "amount")
	if !ok {
		return fmt.Errorf("saturation: amount is required")
	}
	h.normalize()
	h.img = adjust.Saturation(h.img, amount)
	return nil
}

func opHue(e *Engine, h *Handle, params any) error {
	shift, ok := numberParam(params, "shift")
	if !ok {
		return fmt.Errorf("hue: shift is required")
	}
	h.normalize()
	h.img = adjust.Hue(h.img, int(shift))
	return nil
}

func opMedian(e *Engine, h *Handle, params any) error {
	size, ok := numberParam(params, "size")
	if !ok || size <= 0 {
		return fmt.Errorf("median: size must be a positive number")
	}
	h.normalize()
	h.img = effect.Median(h.img, size)
	return nil
}

func opSepia(e *Engine, h *Handle, params any) error {
	if b, ok := params.(bool); ok && !b {
		return nil
	}
	h.normalize()
	h.img = effect.Sepia(h.img)
	return nil
}

func opCrop(e *Engine, h *Handle, params any) error {
	m := paramMap(params)
	width, wok := intField(m, "width")
	height, hok := intField(m, "height")
	if !wok || !hok {
		return fmt.Errorf("crop: width and height are required")
	}
	left, _ := intField(m, "left")
	top, _ := intField(m, "top")
	return e.Extract(h, types.CropRectangle{Left: left, Top: top, Width: width, Height: height})
}

func opExtend(e *Engine, h *Handle, params any) error {
	m := paramMap(params)
	top, _ := intField(m, "top")
	bottom, _ := intField(m, "bottom")
	left, _ := intField(m, "left")
	right, _ := intField(m, "right")
	if top < 0 || bottom < 0 || left < 0 || right < 0 {
		return fmt.Errorf("extend: margins must not be negative")
	}
	if top == 0 && bottom == 0 && left == 0 && right == 0 {
		return nil
	}
	bg, err := backgroundColor(m, color.NRGBA{A: 255})
	if err != nil {
		return fmt.Errorf("extend: %w", err)
	}

	h.normalize()
	b := h.img.Bounds()
	canvas := imaging.New(b.Dx()+left+right, b.Dy()+top+bottom, bg)
	h.img = imaging.Paste(canvas, h.img, image.Pt(left, top))
	return nil
}

func opFlatten(e *Engine, h *Handle, params any) error {
	bg, err := backgroundColor(paramMap(params), color.NRGBA{A: 255})
	if err != nil {
		return fmt.Errorf("flatten: %w", err)
	}
	h.normalize()
	b := h.img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	h.img = imaging.Overlay(canvas, h.img, image.Pt(0, 0), 1.0)
	return nil
}
