// Package fingerprint builds comparable summaries of text and scores them
// against each other for similar-case and duplicate detection.
package fingerprint

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/starford/casekit/internal/checksum"
	"github.com/starford/casekit/internal/textproc"
)

// Default thresholds.
const (
	DefaultSimilarThreshold   = 0.7
	DefaultDuplicateThreshold = 0.95
)

// Component weights of the similarity blend.
const (
	keywordWeight    = 0.4
	entityWeight     = 0.3
	structuralWeight = 0.2
	semanticWeight   = 0.1
)

// Visibility thresholds above which a component is reported as a reason.
const (
	keywordReasonMin    = 0.3
	entityReasonMin     = 0.2
	structuralReasonMin = 0.5
	semanticReasonMin   = 0.4
)

// Fingerprint is a derived summary of a piece of text.
type Fingerprint struct {
	ID             string             `json:"id"`
	Hash           string             `json:"hash"`
	Keywords       []string           `json:"keywords"`
	Entities       []string           `json:"entities"`
	Structure      textproc.Structure `json:"structure"`
	SemanticTokens []string           `json:"semantic_tokens"`
}

// New fingerprints text. The hash depends only on the normalized text.
func New(text string) *Fingerprint {
	normalized := textproc.Normalize(text)
	keywords := textproc.Keywords(normalized)
	entities := textproc.Entities(normalized)
	return &Fingerprint{
		ID:             uuid.NewString(),
		Hash:           checksum.String(normalized),
		Keywords:       keywords,
		Entities:       nonNil(entities),
		Structure:      textproc.Measure(normalized),
		SemanticTokens: nonNil(textproc.SemanticTokens(keywords, entities)),
	}
}

// Score is the outcome of comparing two fingerprints.
// Confidence reflects how many signals agree, not how similar the texts are.
type Score struct {
	Similarity float64  `json:"similarity"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Similarity compares two fingerprints. It is symmetric and returns exactly
// 1.0 for a fingerprint compared with itself.
func Similarity(a, b *Fingerprint) Score {
	keyword := textproc.Jaccard(a.Keywords, b.Keywords)
	entity := textproc.Jaccard(a.Entities, b.Entities)
	structural := structuralCloseness(a.Structure, b.Structure)
	semantic := textproc.Jaccard(a.SemanticTokens, b.SemanticTokens)

	components := []struct {
		value, weight, reasonMin float64
		label                    string
	}{
		{keyword, keywordWeight, keywordReasonMin, "keyword overlap"},
		{entity, entityWeight, entityReasonMin, "shared entities"},
		{structural, structuralWeight, structuralReasonMin, "similar structure"},
		{semantic, semanticWeight, semanticReasonMin, "same topics"},
	}

	var sum, totalWeight float64
	agreeing := 0
	reasons := []string{}
	for _, c := range components {
		sum += c.value * c.weight
		totalWeight += 1.0 * c.weight
		if c.value > c.reasonMin {
			reasons = append(reasons, fmt.Sprintf("%s: %.0f%%", c.label, c.value*100))
		}
		if c.value > 0.5 {
			agreeing++
		}
	}

	similarity := 0.0
	if totalWeight > 0 {
		similarity = clamp01(sum / totalWeight)
	}
	return Score{
		Similarity: similarity,
		Confidence: math.Min(0.9, 0.3+0.15*float64(agreeing)),
		Reasons:    reasons,
	}
}

// structuralCloseness averages 1 - |x-y|/max(x,y) over word, sentence and
// technical-term counts. Two zero counts are identical.
func structuralCloseness(a, b textproc.Structure) float64 {
	terms := [3]float64{
		closeness(float64(a.WordCount), float64(b.WordCount)),
		closeness(float64(a.SentenceCount), float64(b.SentenceCount)),
		closeness(float64(a.TechnicalTermCount), float64(b.TechnicalTermCount)),
	}
	return (terms[0] + terms[1] + terms[2]) / 3
}

func closeness(x, y float64) float64 {
	m := math.Max(x, y)
	if m == 0 {
		return 1
	}
	return 1 - math.Abs(x-y)/m
}

// Candidate is a historical record offered for comparison.
type Candidate struct {
	ID          string       `json:"id"`
	Title       string       `json:"title,omitempty"`
	Fingerprint *Fingerprint `json:"-"`
}

// Match is a candidate that passed a similarity or duplicate test.
type Match struct {
	ID         string   `json:"id"`
	Title      string   `json:"title,omitempty"`
	Similarity float64  `json:"similarity"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
	ExactMatch bool     `json:"exact_match,omitempty"`
}

// Options tunes the similar and duplicate thresholds.
type Options struct {
	SimilarThreshold   float64
	DuplicateThreshold float64
}

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{
		SimilarThreshold:   DefaultSimilarThreshold,
		DuplicateThreshold: DefaultDuplicateThreshold,
	}
}

// Matcher runs similarity passes over candidate sets.
type Matcher struct {
	opts Options
}

// NewMatcher returns a Matcher; zero thresholds fall back to the defaults.
func NewMatcher(opts Options) *Matcher {
	if opts.SimilarThreshold <= 0 {
		opts.SimilarThreshold = DefaultSimilarThreshold
	}
	if opts.DuplicateThreshold <= 0 {
		opts.DuplicateThreshold = DefaultDuplicateThreshold
	}
	return &Matcher{opts: opts}
}

// Options returns the effective thresholds.
func (m *Matcher) Options() Options { return m.opts }

// FindSimilar returns candidates scoring above the similar threshold,
// most similar first.
func (m *Matcher) FindSimilar(fp *Fingerprint, candidates []Candidate) []Match {
	out := []Match{}
	for _, c := range candidates {
		if c.Fingerprint == nil {
			continue
		}
		s := Similarity(fp, c.Fingerprint)
		if s.Similarity <= m.opts.SimilarThreshold {
			continue
		}
		out = append(out, Match{
			ID:         c.ID,
			Title:      c.Title,
			Similarity: s.Similarity,
			Confidence: s.Confidence,
			Reasons:    s.Reasons,
			ExactMatch: c.Fingerprint.Hash == fp.Hash,
		})
	}
	sortMatches(out)
	return out
}

// DetectDuplicates returns candidates whose hash equals fp's, or whose
// similarity reaches the duplicate threshold. Hash matches skip scoring.
func (m *Matcher) DetectDuplicates(fp *Fingerprint, candidates []Candidate) []Match {
	out := []Match{}
	for _, c := range candidates {
		if c.Fingerprint == nil {
			continue
		}
		if c.Fingerprint.Hash == fp.Hash {
			out = append(out, Match{
				ID:         c.ID,
				Title:      c.Title,
				Similarity: 1.0,
				Confidence: 1.0,
				Reasons:    []string{"identical content"},
				ExactMatch: true,
			})
			continue
		}
		s := Similarity(fp, c.Fingerprint)
		if s.Similarity >= m.opts.DuplicateThreshold {
			out = append(out, Match{
				ID:         c.ID,
				Title:      c.Title,
				Similarity: s.Similarity,
				Confidence: s.Confidence,
				Reasons:    s.Reasons,
			})
		}
	}
	sortMatches(out)
	return out
}

func sortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].Similarity > ms[j].Similarity
	})
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
