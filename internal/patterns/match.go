package patterns

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/casekit/internal/textproc"
)

// subject is the text a batch of patterns is matched against, prepared once.
type subject struct {
	raw            string
	lower          string
	semanticTokens map[string]struct{}
}

func newSubject(text string) *subject {
	normalized := textproc.Normalize(text)
	tokens := textproc.SemanticTokens(textproc.Keywords(normalized), textproc.Entities(normalized))
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return &subject{raw: text, lower: strings.ToLower(text), semanticTokens: set}
}

// matchResult is the raw score of one pattern against a subject, before
// the pattern's own confidence and track record are applied.
type matchResult struct {
	score  float64
	reason string
}

func match(p *ContentPattern, s *subject) matchResult {
	switch p.PatternType {
	case TypeKeyword:
		return matchKeywords(p.Pattern, s)
	case TypeRegex:
		return matchRegex(p.Pattern, s)
	case TypeSemantic:
		return matchSemantic(p.Pattern, s)
	default:
		return matchResult{}
	}
}

// matchKeywords scores the fraction of the pattern's words found anywhere
// in the lowercased text.
func matchKeywords(pattern string, s *subject) matchResult {
	words := strings.Fields(strings.ToLower(pattern))
	if len(words) == 0 {
		return matchResult{}
	}
	found := 0
	for _, w := range words {
		if strings.Contains(s.lower, w) {
			found++
		}
	}
	if found == 0 {
		return matchResult{}
	}
	kind := "partial"
	if found == len(words) {
		kind = "exact"
	}
	return matchResult{
		score:  float64(found) / float64(len(words)),
		reason: fmt.Sprintf("%s keyword match %q (%d/%d)", kind, pattern, found, len(words)),
	}
}

// matchRegex is binary. A pattern that does not compile never matches.
func matchRegex(pattern string, s *subject) matchResult {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil || !re.MatchString(s.raw) {
		return matchResult{}
	}
	return matchResult{score: 1.0, reason: fmt.Sprintf("regex match %q", pattern)}
}

// matchSemantic scores the share of the pattern's topic tokens that the
// text also carries.
func matchSemantic(pattern string, s *subject) matchResult {
	tokens := strings.Fields(strings.ToLower(pattern))
	if len(tokens) == 0 {
		return matchResult{}
	}
	shared := 0
	for _, t := range tokens {
		if _, ok := s.semanticTokens[t]; ok {
			shared++
		}
	}
	if shared == 0 {
		return matchResult{}
	}
	return matchResult{
		score:  float64(shared) / float64(len(tokens)),
		reason: fmt.Sprintf("semantic match %q (%d/%d topics)", pattern, shared, len(tokens)),
	}
}
