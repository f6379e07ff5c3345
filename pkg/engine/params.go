package engine

import (
	"encoding/json"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Operation parameters arrive as decoded JSON, so values may be numbers,
// numeric strings, objects or nothing at all. The helpers below coerce
// them without caring which client produced the edit specification.

func paramMap(params any) map[string]any {
	m, _ := params.(map[string]any)
	return m
}

func toNumber(v any) (float64, bool) {
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

func numberField(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	return toNumber(v)
}

func intField(m map[string]any, key string) (int, bool) {
	f, ok := numberField(m, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func stringField(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

// numberParam reads a numeric parameter that may be given either bare
// ("blur": 3) or as an object field ("blur": {"sigma": 3}).
func numberParam(params any, key string) (float64, bool) {
	if f, ok := toNumber(params); ok {
		return f, true
	}
	return numberField(paramMap(params), key)
}

// backgroundColor parses an optional hex background field. Absent fields
// yield def; a present but malformed value is an error.
func backgroundColor(m map[string]any, def color.Color) (color.Color, error) {
	s, ok := stringField(m, "background")
	if !ok {
		return def, nil
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return nil, err
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}
