package engine

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Blend modes supported by Composite.
const (
	// BlendOver draws the source over the destination with per-pixel
	// alpha. It is the default.
	BlendOver = "over"
	// BlendDestIn keeps the destination pixels but multiplies their
	// alpha by the source alpha. Useful for applying masks.
	BlendDestIn = "dest-in"
)

// CompositeInput is one layer to merge onto an image. A nil Left or Top
// leaves that axis at the origin. Tile repeats the source across the
// whole destination, which is how 1x1 alpha masks cover an image.
type CompositeInput struct {
	Source *Handle
	Left   *int
	Top    *int
	Blend  string
	Tile   bool
}

// Composite merges the given layers onto the image in order.
func (e *Engine) Composite(h *Handle, inputs []CompositeInput) error {
	h.normalize()
	base := imaging.Clone(h.img)

	for _, in := range inputs {
		if in.Source == nil {
			return fmt.Errorf("composite: layer has no source image")
		}
		in.Source.normalize()

		switch in.Blend {
		case "", BlendOver:
			if in.Tile {
				base = tileOver(base, in.Source.img)
				continue
			}
			pos := image.Point{}
			if in.Left != nil {
				pos.X = *in.Left
			}
			if in.Top != nil {
				pos.Y = *in.Top
			}
			base = imaging.Overlay(base, in.Source.img, pos, 1.0)
		case BlendDestIn:
			destIn(base, imaging.Clone(in.Source.img), in.Tile)
		default:
			return fmt.Errorf("composite: unsupported blend mode %q", in.Blend)
		}
	}

	h.img = base
	return nil
}

func tileOver(base *image.NRGBA, src image.Image) *image.NRGBA {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 {
		return base
	}
	b := base.Bounds()
	for y := 0; y < b.Dy(); y += sh {
		for x := 0; x < b.Dx(); x += sw {
			base = imaging.Overlay(base, src, image.Pt(x, y), 1.0)
		}
	}
	return base
}

// destIn multiplies the destination alpha channel by the source alpha.
// Without tiling, destination pixels beyond the source bounds lose all
// coverage, matching the usual dest-in semantics.
func destIn(dst, src *image.NRGBA, tile bool) {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 {
		return
	}
	db := dst.Bounds()
	for y := 0; y < db.Dy(); y++ {
		for x := 0; x < db.Dx(); x++ {
			i := dst.PixOffset(db.Min.X+x, db.Min.Y+y)
			sx, sy := x, y
			if tile {
				sx, sy = x%sw, y%sh
			} else if x >= sw || y >= sh {
				dst.Pix[i+3] = 0
				continue
			}
			sa := src.NRGBAAt(sb.Min.X+sx, sb.Min.Y+sy).A
			dst.Pix[i+3] = uint8((uint32(dst.Pix[i+3])*uint32(sa) + 127) / 255)
		}
	}
}
