// Package aggregate reduces per-chunk provider results into one document verdict and renders
// it as localized messages.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xhad/doccheck/internal/models"
)

const (
	QualityUnknown = "unknown"
	NSFWPresent    = "present"
	NSFWAbsent     = "absent"
)

var nsfwSentinels = map[string]bool{"0": true, "false": true, "none": true, "no": true, "yok": true}

// Aggregate weighs every successful chunk by its word count. Ties between AI and human weight
// resolve to AI. Totals cover successful chunks only.
func Aggregate(results []models.ChunkResult) models.AggregateVerdict {
	var (
		totalWords int
		totalChars int
		aiWeight   int
		weighted   float64
	)
	raws := make([]map[string]any, 0, len(results))

	for _, r := range results {
		totalWords += r.WordCount
		totalChars += r.CharacterCount
		if r.IsDetected {
			aiWeight += r.WordCount
		}
		weighted += r.Confidence * float64(r.WordCount)
		raws = append(raws, r.Raw)
	}

	v := models.AggregateVerdict{
		AIGenerated: aiWeight >= totalWords-aiWeight,
		TotalWords:  totalWords,
		TotalChars:  totalChars,
		Quality:     DeriveQuality(raws),
		NSFW:        DeriveNSFW(raws),
	}
	if totalWords > 0 {
		v.Confidence = weighted / float64(totalWords)
	}
	return v
}

// DeriveQuality returns the first quality signal found across payloads. Later values are ignored.
func DeriveQuality(raws []map[string]any) string {
	for _, raw := range raws {
		if q, ok := findReportField(raw, "quality"); ok {
			return labelString(q)
		}
	}
	return QualityUnknown
}

// DeriveNSFW is "present" when any payload carries a truthy nsfw signal that is not a negative
// sentinel such as "no" or "false".
func DeriveNSFW(raws []map[string]any) string {
	for _, raw := range raws {
		if n, ok := findReportField(raw, "nsfw"); ok && nsfwSignal(n) {
			return NSFWPresent
		}
	}
	return NSFWAbsent
}

// findReportField looks for report.<key>, then for <key> inside the first nested object of the
// report that has it. Nested objects are visited in key order.
func findReportField(raw map[string]any, key string) (any, bool) {
	report, _ := raw["report"].(map[string]any)
	if report == nil {
		return nil, false
	}
	if v, ok := report[key]; ok && v != nil {
		return v, true
	}

	keys := make([]string, 0, len(report))
	for k := range report {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		nested, ok := report[k].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := nested[key]; ok {
			if v == nil {
				return nil, false
			}
			return v, true
		}
	}
	return nil, false
}

// nsfwSignal treats objects like any other value: a non-empty one is a signal regardless of its
// fields.
func nsfwSignal(v any) bool {
	return truthy(v) && !nsfwSentinels[strings.ToLower(fmt.Sprint(v))]
}

var labelKeys = []string{"label", "value", "verdict", "rating", "score"}

func labelOf(m map[string]any) (any, bool) {
	for _, k := range labelKeys {
		if v, ok := m[k]; ok && truthy(v) {
			return v, true
		}
	}
	return nil, false
}

func labelString(v any) string {
	if m, ok := v.(map[string]any); ok {
		if l, ok := labelOf(m); ok {
			v = l
		}
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

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
