package search

import (
	"context"
	"sort"
	"strings"

	"github.com/starford/casekit/internal/textproc"
)

// Suggestion types.
const (
	SuggestAutocomplete = "autocomplete"
	SuggestRecent       = "recent"
	SuggestPopular      = "popular"
)

const (
	maxAutocomplete = 5
	maxRecent       = 3
	maxPopular      = 3
	maxSuggestions  = 10
)

// Suggestion is a query completion.
type Suggestion struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Suggestions completes partial from indexed words and from saved
// searches. Input shorter than two characters yields nothing.
func (e *Engine) Suggestions(ctx context.Context, partial string) ([]Suggestion, error) {
	partial = strings.ToLower(strings.TrimSpace(partial))
	if len([]rune(partial)) < minQueryRunes {
		return []Suggestion{}, nil
	}

	auto, err := e.autocomplete(ctx, partial)
	if err != nil {
		return nil, err
	}
	saved, err := e.SavedSearches(ctx)
	if err != nil {
		return nil, err
	}

	all := append(auto, recentSuggestions(saved, partial)...)
	all = append(all, popularSuggestions(saved, partial)...)

	out := make([]Suggestion, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, s := range all {
		if _, ok := seen[s.Text]; ok {
			continue
		}
		seen[s.Text] = struct{}{}
		out = append(out, s)
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out, nil
}

// autocomplete returns indexed words starting with partial, most frequent
// first.
func (e *Engine) autocomplete(ctx context.Context, partial string) ([]Suggestion, error) {
	entries, err := e.entries(ctx)
	if err != nil {
		return nil, err
	}
	freq := make(map[string]int)
	for _, en := range entries {
		seen := make(map[string]struct{})
		for _, w := range textproc.Tokens(strings.ToLower(en.Title + " " + en.Content)) {
			if !strings.HasPrefix(w, partial) {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			freq[w]++
		}
	}
	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > maxAutocomplete {
		words = words[:maxAutocomplete]
	}
	out := make([]Suggestion, len(words))
	for i, w := range words {
		out[i] = Suggestion{Text: w, Type: SuggestAutocomplete}
	}
	return out, nil
}

// recentSuggestions offers saved queries starting with partial, most
// recently used first. saved is already in that order.
func recentSuggestions(saved []SavedSearch, partial string) []Suggestion {
	var out []Suggestion
	for _, s := range saved {
		if s.LastUsed.IsZero() || !strings.HasPrefix(strings.ToLower(s.Query), partial) {
			continue
		}
		out = append(out, Suggestion{Text: s.Query, Type: SuggestRecent})
		if len(out) == maxRecent {
			break
		}
	}
	return out
}

// popularSuggestions offers saved queries starting with partial, most used
// first.
func popularSuggestions(saved []SavedSearch, partial string) []Suggestion {
	matching := make([]SavedSearch, 0, len(saved))
	for _, s := range saved {
		if s.UseCount > 0 && strings.HasPrefix(strings.ToLower(s.Query), partial) {
			matching = append(matching, s)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].UseCount > matching[j].UseCount
	})
	if len(matching) > maxPopular {
		matching = matching[:maxPopular]
	}
	out := make([]Suggestion, len(matching))
	for i, s := range matching {
		out[i] = Suggestion{Text: s.Query, Type: SuggestPopular}
	}
	return out
}
