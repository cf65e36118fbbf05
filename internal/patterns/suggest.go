package patterns

import (
	"sort"
	"strings"

	"github.com/starford/casekit/internal/detector"
)

// Heuristic categories.
const (
	CategoryTechnical = "technical"
	CategoryBug       = "bug"
	CategoryGeneral   = "general"
)

// Heuristics suggests categories from the content analysis alone. A nil
// analysis yields nothing.
func Heuristics(analysis *detector.Result, text string) []Suggestion {
	if analysis == nil {
		return nil
	}
	var out []Suggestion
	meta := &analysis.Metadata
	if meta.TechnicalInfo != nil || meta.HasConsoleErrors() {
		out = append(out, Suggestion{
			Category:   CategoryTechnical,
			Confidence: 0.8,
			Reasons:    []string{"technical details present"},
		})
	}
	if analysis.ContentType == detector.TypeConsoleLog || strings.Contains(strings.ToLower(text), "error") {
		out = append(out, Suggestion{
			Category:   CategoryBug,
			Confidence: 0.7,
			Reasons:    []string{"error content"},
		})
	}
	if analysis.ContentType == detector.TypeSupportRequest {
		out = append(out, Suggestion{
			Category:   CategoryGeneral,
			Confidence: 0.6,
			Reasons:    []string{"support request"},
		})
	}
	return out
}

// Merge combines suggestion lists by category. The highest confidence
// wins; reasons and pattern ids accumulate. The result is sorted by
// confidence, then category.
func Merge(lists ...[]Suggestion) []Suggestion {
	byCategory := make(map[string]*Suggestion)
	var order []string
	for _, list := range lists {
		for _, s := range list {
			cur, ok := byCategory[s.Category]
			if !ok {
				c := Suggestion{
					Category:   s.Category,
					Confidence: s.Confidence,
					Reasons:    append([]string(nil), s.Reasons...),
					PatternIDs: append([]string(nil), s.PatternIDs...),
				}
				byCategory[s.Category] = &c
				order = append(order, s.Category)
				continue
			}
			if s.Confidence > cur.Confidence {
				cur.Confidence = s.Confidence
			}
			cur.Reasons = append(cur.Reasons, s.Reasons...)
			cur.PatternIDs = append(cur.PatternIDs, s.PatternIDs...)
		}
	}
	out := make([]Suggestion, 0, len(order))
	for _, c := range order {
		out = append(out, *byCategory[c])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Category < out[j].Category
	})
	return out
}
