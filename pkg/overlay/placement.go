package overlay

import (
	"strconv"
	"strings"
)

// PlacementKind says how a placement value positions an overlay edge.
type PlacementKind int

const (
	// Unset means no constraint: the axis falls back to the engine
	// default.
	Unset PlacementKind = iota
	// Absolute places the overlay a fixed number of pixels from an
	// edge: non-negative from the leading edge, negative from the
	// trailing edge.
	Absolute
	// Percent places the overlay relative to the base dimension, with
	// the same sign convention as Absolute.
	Percent
)

// Placement is a parsed overlay position constraint for one axis. Values
// are parsed once at the edge; everything downstream switches on Kind
// instead of re-inspecting strings.
type Placement struct {
	Kind  PlacementKind
	Value float64
}

// ParsePlacement interprets a raw position value from an edit
// specification. Numbers are absolute pixel offsets. Strings are
// absolute too, unless they end in "p", which marks a percentage of the
// base dimension. Anything that does not parse as a number yields an
// unset placement.
func ParsePlacement(v any) Placement {
	switch val := v.(type) {
	case nil:
		return Placement{}
	case float64:
		return Placement{Kind: Absolute, Value: val}
	case int:
		return Placement{Kind: Absolute, Value: float64(val)}
	case string:
		s := strings.TrimSpace(val)
		if strings.HasSuffix(s, "p") {
			n, err := strconv.ParseFloat(strings.TrimSuffix(s, "p"), 64)
			if err != nil {
				return Placement{}
			}
			return Placement{Kind: Percent, Value: n}
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Placement{}
		}
		return Placement{Kind: Absolute, Value: n}
	}
	return Placement{}
}

// Resolve turns the placement into a pixel offset for one axis, given
// the base image dimension and the overlay dimension. Negative values
// anchor the overlay's trailing edge: -10p leaves a 10% margin between
// the overlay and the far edge, -30 a 30 pixel one. Returns false when
// the placement is unset.
func (p Placement) Resolve(base, overlay int) (int, bool) {
	switch p.Kind {
	case Percent:
		if p.Value < 0 {
			return base + int(float64(base)*p.Value/100.0) - overlay, true
		}
		return int(float64(base) * p.Value / 100.0), true
	case Absolute:
		n := int(p.Value)
		if n < 0 {
			return base + n - overlay, true
		}
		return n, true
	}
	return 0, false
}
