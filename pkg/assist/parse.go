package assist

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// DefaultPrompt asks for the dominant subject as a normalized top-left box.
const DefaultPrompt = `You are an object locator for an annotation tool.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
    "cx": 0.0,
    "cy": 0.0
  },
  "description": "short neutral sentence",
  "tags": ["tag1", "tag2"]
}

RULES
- All coordinates are normalized to [0,1] (NOT pixels). x and y are the top-left corner.
- The box should tightly include the visually dominant object.
- If no object is found, return {"primary":{"label":"none","confidence":0.0,"box":{"x":0,"y":0,"w":0,"h":0},"cx":0,"cy":0},"description":"","tags":[]}
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// fallbackLabels mark model answers that carry no usable box.
var fallbackLabels = []string{"unclear", "parse error", "no json", "fallback", "non-json"}

func noneResult(description string) *types.AnalysisResult {
	return &types.AnalysisResult{
		Primary:     types.Primary{Label: "none"},
		Description: description,
	}
}

// parseAnalysisResult reads a model answer. Answers without parseable JSON
// become a "none" result rather than an error.
func parseAnalysisResult(raw string) *types.AnalysisResult {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return noneResult("model returned non-JSON response")
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return noneResult("failed to parse model response")
	}
	return &result
}

// sanitizeModelJSON removes code fences, comments and trailing commas and
// keeps the outermost object.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// validateAndAdjust clamps the box into the image and turns degenerate or
// fallback answers into "none".
func validateAndAdjust(r *types.AnalysisResult) *types.AnalysisResult {
	label := strings.ToLower(strings.TrimSpace(r.Primary.Label))
	if label == "none" {
		return r
	}
	for _, f := range fallbackLabels {
		if strings.Contains(label, f) {
			return noneResult(r.Description)
		}
	}

	r.Primary.Box = normalizeRegion(r.Primary.Box)
	if r.Primary.Box.W <= 0 || r.Primary.Box.H <= 0 {
		return noneResult(r.Description)
	}
	if r.Primary.Label == "" {
		r.Primary.Label = "object"
	}
	r.Primary.Confidence = clamp(r.Primary.Confidence, 0, 1)
	r.Primary.Cx = r.Primary.Box.X + r.Primary.Box.W/2
	r.Primary.Cy = r.Primary.Box.Y + r.Primary.Box.H/2
	return r
}

// normalizeRegion clips a top-left region to the unit square.
func normalizeRegion(b types.Region) types.Region {
	x0 := clamp(b.X, 0, 1)
	y0 := clamp(b.Y, 0, 1)
	x1 := clamp(b.X+b.W, 0, 1)
	y1 := clamp(b.Y+b.H, 0, 1)
	return types.Region{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
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
