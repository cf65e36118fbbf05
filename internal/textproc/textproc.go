// Package textproc turns raw text into keywords, entities and structural
// metrics. Everything here is a pure function of its input.
package textproc

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxKeywords caps the keyword list of a fingerprint.
const MaxKeywords = 50

// Entity kinds recognised by Entities, in extraction order.
const (
	EntityEmail      = "email"
	EntityURL        = "url"
	EntityIPv4       = "ipv4"
	EntityCaseNumber = "case_number"
	EntityVersion    = "version"
	EntityUUID       = "uuid"
)

var entityPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{EntityEmail, regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{EntityURL, regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)},
	{EntityIPv4, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`)},
	{EntityCaseNumber, regexp.MustCompile(`\b\d{8}\b`)},
	{EntityVersion, regexp.MustCompile(`\bv?\d+\.\d+\.\d+(?:-[0-9a-zA-Z.\-]+)?\b`)},
	{EntityUUID, regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)},
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+`)

// Normalize canonicalises text for hashing and comparison: NFC, lowercase,
// trimmed.
func Normalize(text string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFC.String(text)))
}

// Tokens splits text into word tokens. Anything that is not a letter, digit
// or underscore separates tokens. Case is preserved.
func Tokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// StripPunctuation replaces every non-word, non-space rune with a space.
func StripPunctuation(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isWordRune(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// Keywords extracts up to MaxKeywords distinct tokens from normalized text,
// dropping stop words and tokens of two characters or fewer. Order of first
// appearance is preserved.
func Keywords(normalized string) []string {
	out := make([]string, 0, 16)
	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(StripPunctuation(normalized)) {
		if len([]rune(tok)) <= 2 || IsStopWord(tok) {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

// Entities extracts structured strings (emails, URLs, IPv4 addresses,
// 8-digit case numbers, semantic versions, UUIDs). Results are distinct and
// grouped by kind in the order listed above.
func Entities(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, p := range entityPatterns {
		for _, m := range p.re.FindAllString(text, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// EntitiesOfKind returns the distinct matches of a single entity kind.
func EntitiesOfKind(text, kind string) []string {
	for _, p := range entityPatterns {
		if p.kind != kind {
			continue
		}
		return distinct(p.re.FindAllString(text, -1))
	}
	return nil
}

// Structure holds coarse shape metrics of a text.
type Structure struct {
	WordCount           int     `json:"word_count"`
	SentenceCount       int     `json:"sentence_count"`
	AvgWordsPerSentence float64 `json:"avg_words_per_sentence"`
	TechnicalTermCount  int     `json:"technical_term_count"`
}

// Measure computes the structural metrics of text.
func Measure(text string) Structure {
	words := strings.Fields(text)
	var s Structure
	s.WordCount = len(words)
	for _, part := range sentenceSplitRe.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			s.SentenceCount++
		}
	}
	if s.SentenceCount > 0 {
		s.AvgWordsPerSentence = float64(s.WordCount) / float64(s.SentenceCount)
	}
	for _, tok := range Tokens(strings.ToLower(text)) {
		if IsTechnicalTerm(tok) {
			s.TechnicalTermCount++
		}
	}
	return s
}

// SemanticTokens derives topic tags from keywords and entities. A topic is
// present when any keyword or entity is a member of its word list. The
// result is sorted.
func SemanticTokens(keywords, entities []string) []string {
	var out []string
	for _, topic := range topicOrder {
		words := topicGroups[topic]
		if anyIn(keywords, words) || anyIn(entities, words) {
			out = append(out, topic)
		}
	}
	sort.Strings(out)
	return out
}

// TopicOf returns the topic group a word belongs to, or "".
func TopicOf(word string) string {
	for _, topic := range topicOrder {
		if _, ok := topicGroups[topic][word]; ok {
			return topic
		}
	}
	return ""
}

// TopicWords returns the word list of a topic group.
func TopicWords(topic string) []string {
	words := make([]string, 0, len(topicGroups[topic]))
	for w := range topicGroups[topic] {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

func anyIn(list []string, set map[string]struct{}) bool {
	for _, v := range list {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

// Jaccard returns |a∩b| / |a∪b| over the distinct members of a and b.
// Two empty inputs are identical (1.0); one empty input shares nothing (0.0).
func Jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}
	intersection := 0
	for v := range setA {
		if _, ok := setB[v]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return set
}

func distinct(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, v := range list {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
