package provider

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/xhad/doccheck/internal/types"
)

// NormalizeTextVerdict reads the text endpoint answer. The signal is either nested under
// report.ai_text (or report.ai on older API versions) or given at the top level as
// ai_generated/confidence. Missing confidence is 0.
func NormalizeTextVerdict(raw map[string]any) types.Verdict {
	report := asMap(raw["report"])
	block := asMap(report["ai_text"])
	if len(block) == 0 {
		block = asMap(report["ai"])
	}

	v := baseVerdict(raw)
	if d, ok := block["is_detected"]; ok && d != nil {
		v.IsDetected = truthy(d)
	} else {
		v.IsDetected = truthy(raw["ai_generated"])
	}
	if c, ok := block["confidence"]; ok && c != nil {
		v.Confidence = asFloat(c)
	} else {
		v.Confidence = asFloat(raw["confidence"])
	}
	return v
}

// NormalizeImageVerdict reads the image endpoint answer, keyed by report.verdict.
func NormalizeImageVerdict(raw map[string]any) types.Verdict {
	report := asMap(raw["report"])

	v := baseVerdict(raw)
	switch report["verdict"] {
	case "ai":
		v.IsDetected = true
		v.Confidence = asFloat(asMap(report["ai"])["confidence"])
	case "human":
		v.Confidence = asFloat(asMap(report["human"])["confidence"])
	}
	return v
}

func baseVerdict(raw map[string]any) types.Verdict {
	v := types.Verdict{Raw: raw}
	if id, ok := raw["id"]; ok && id != nil {
		v.ProviderID = asString(id)
	}
	if ts, ok := raw["created_at"]; ok && ts != nil {
		v.CreatedAt = asString(ts)
	}
	return v
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	case bool:
		if t {
			return 1
		}
	}
	return 0
}

// truthy follows JSON truthiness: false, 0, "", null and empty containers are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}
