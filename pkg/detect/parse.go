package detect

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/menta2k/image-pipeline/pkg/types"
)

// ParseFaces extracts a face list from raw vision model output. The
// response is sanitized first, so fenced or lightly malformed JSON still
// parses. Faces come back clamped to [0,1] and ordered by descending
// confidence; degenerate boxes are dropped.
func ParseFaces(raw string) ([]types.Face, error) {
	raw = SanitizeModelJSON(raw)
	if raw == "" {
		return nil, fmt.Errorf("model response contains no JSON")
	}

	var wrapper struct {
		Faces []types.Face `json:"faces"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
		// Some models answer with a bare array.
		var bare []types.Face
		if err2 := json.Unmarshal([]byte(raw), &bare); err2 != nil {
			return nil, fmt.Errorf("parse face response: %w", err)
		}
		wrapper.Faces = bare
	}

	faces := make([]types.Face, 0, len(wrapper.Faces))
	for _, f := range wrapper.Faces {
		f.Box = clampBox(f.Box)
		if f.Box.Width <= 0 || f.Box.Height <= 0 {
			continue
		}
		faces = append(faces, f)
	}
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Confidence > faces[j].Confidence
	})
	return faces, nil
}

// ParseLabels extracts a label list from raw vision model output.
// Instances with degenerate boxes are dropped; labels themselves are
// kept even when no instance survives.
func ParseLabels(raw string) ([]types.Label, error) {
	raw = SanitizeModelJSON(raw)
	if raw == "" {
		return nil, fmt.Errorf("model response contains no JSON")
	}

	var wrapper struct {
		Labels []types.Label `json:"labels"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
		var bare []types.Label
		if err2 := json.Unmarshal([]byte(raw), &bare); err2 != nil {
			return nil, fmt.Errorf("parse label response: %w", err)
		}
		wrapper.Labels = bare
	}

	labels := make([]types.Label, 0, len(wrapper.Labels))
	for _, l := range wrapper.Labels {
		instances := make([]types.Instance, 0, len(l.Instances))
		for _, inst := range l.Instances {
			inst.Box = clampBox(inst.Box)
			if inst.Box.Width <= 0 || inst.Box.Height <= 0 {
				continue
			}
			instances = append(instances, inst)
		}
		l.Instances = instances
		labels = append(labels, l)
	}
	return labels, nil
}

// SanitizeModelJSON removes code fences, comments and trailing commas
// from model output, then keeps only the outermost JSON value. Vision
// models wrap their answers in markdown often enough that parsing the
// raw response directly is a losing game.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	// Remove /* ... */ block comments
	reBlock := regexp.MustCompile(`(?s)/\*.*?\*/`)
	raw = reBlock.ReplaceAllString(raw, "")

	// Remove // line/inline comments
	reLine := regexp.MustCompile(`(?m)^\s*//.*$`)
	raw = reLine.ReplaceAllString(raw, "")
	reInline := regexp.MustCompile(`(?m)//.*$`)
	raw = reInline.ReplaceAllString(raw, "")

	// Remove trailing commas before } or ]
	reTrailing := regexp.MustCompile(`,(\s*[}\]])`)
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...} or [...], whichever starts first
	objStart := strings.Index(raw, "{")
	arrStart := strings.Index(raw, "[")
	switch {
	case arrStart >= 0 && (objStart < 0 || arrStart < objStart):
		if end := strings.LastIndex(raw, "]"); end > arrStart {
			raw = raw[arrStart : end+1]
		}
	case objStart >= 0:
		if end := strings.LastIndex(raw, "}"); end > objStart {
			raw = raw[objStart : end+1]
		}
	default:
		return ""
	}
	return strings.TrimSpace(raw)
}

// clampBox forces a bounding box into the unit square.
func clampBox(b types.BoundingBox) types.BoundingBox {
	left := clamp(b.Left, 0, 1)
	top := clamp(b.Top, 0, 1)
	return types.BoundingBox{
		Left:   left,
		Top:    top,
		Width:  clamp(b.Width, 0, 1-left),
		Height: clamp(b.Height, 0, 1-top),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
