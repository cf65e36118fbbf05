// Package intel ties detection, fingerprinting, pattern suggestions and
// record lookup into the content analysis pipeline.
package intel

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/casekit/internal/apperr"
	"github.com/starford/casekit/internal/detector"
	"github.com/starford/casekit/internal/fingerprint"
	"github.com/starford/casekit/internal/metrics"
	"github.com/starford/casekit/internal/patterns"
	"github.com/starford/casekit/internal/search"
	"github.com/starford/casekit/internal/store"
)

// DefaultMaxSimilar caps SimilarCases on an analysis.
const DefaultMaxSimilar = 5

// Options configures a Service.
type Options struct {
	// Cases maps the stored records analyses are compared against.
	Cases       search.Source
	Fingerprint fingerprint.Options
	MaxSimilar  int
}

// Service runs the analysis pipeline. It is safe for concurrent use.
type Service struct {
	store    store.Store
	detector *detector.Detector
	matcher  *fingerprint.Matcher
	patterns *patterns.Engine
	metrics  *metrics.Metrics
	logger   *slog.Logger
	opts     Options
}

// New creates a Service. m may be nil.
func New(s store.Store, pe *patterns.Engine, m *metrics.Metrics, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSimilar <= 0 {
		opts.MaxSimilar = DefaultMaxSimilar
	}
	if opts.Cases.IDField == "" {
		opts.Cases.IDField = "id"
	}
	return &Service{
		store:    s,
		detector: detector.New(),
		matcher:  fingerprint.NewMatcher(opts.Fingerprint),
		patterns: pe,
		metrics:  m,
		logger:   logger,
		opts:     opts,
	}
}

// Patterns returns the pattern engine.
func (s *Service) Patterns() *patterns.Engine { return s.patterns }

// CaseType returns the entity type analyses are compared against.
func (s *Service) CaseType() string { return s.opts.Cases.Type }

// Analyze classifies text and enriches the result with similar records,
// duplicate status and learned category suggestions. Lookup failures are
// logged and leave the base analysis in place.
func (s *Service) Analyze(ctx context.Context, text string, source detector.Source) *detector.Result {
	return s.enrich(ctx, s.detector.Analyze(text, source), text)
}

// AnalyzeHTML is Analyze for HTML markup.
func (s *Service) AnalyzeHTML(ctx context.Context, markup string, source detector.Source) *detector.Result {
	return s.Analyze(ctx, s.detector.StripHTML(markup), source)
}

func (s *Service) enrich(ctx context.Context, res *detector.Result, text string) *detector.Result {
	start := time.Now()
	if strings.TrimSpace(text) == "" {
		s.metrics.ObserveAnalysis(string(res.ContentType), time.Since(start), false)
		return res
	}

	fp := fingerprint.New(text)
	candidates, err := s.Candidates(ctx)
	if err != nil {
		s.logger.Warn("intel: similar lookup skipped", slog.String("error", err.Error()))
	} else {
		similar := s.matcher.FindSimilar(fp, candidates)
		if len(similar) > s.opts.MaxSimilar {
			similar = similar[:s.opts.MaxSimilar]
		}
		for _, m := range similar {
			res.Metadata.SimilarCases = append(res.Metadata.SimilarCases, detector.SimilarCase{
				ID:         m.ID,
				Title:      m.Title,
				Similarity: m.Similarity,
			})
		}
		res.Metadata.IsDuplicate = len(s.matcher.DetectDuplicates(fp, candidates)) > 0
	}

	suggestions, err := s.patterns.SuggestCategory(ctx, res, text)
	if err != nil {
		s.logger.Warn("intel: category suggestion skipped", slog.String("error", err.Error()))
	}
	for _, sg := range suggestions {
		res.Metadata.PatternMatches = append(res.Metadata.PatternMatches, detector.PatternMatch{
			Category:   sg.Category,
			Confidence: sg.Confidence,
			Patterns:   sg.PatternIDs,
		})
	}
	if len(suggestions) > 0 && suggestions[0].Confidence > res.Confidence {
		res.Classification = suggestions[0].Category
		res.Confidence = suggestions[0].Confidence
	}

	res.ProcessingTimeMs += float64(time.Since(start).Microseconds()) / 1000
	s.metrics.ObserveAnalysis(string(res.ContentType), time.Since(start), res.Metadata.IsDuplicate)
	return res
}

// Fingerprint computes the fingerprint of text.
func (s *Service) Fingerprint(text string) *fingerprint.Fingerprint {
	return fingerprint.New(text)
}

// Candidates fingerprints every stored case record. Records without an id
// are skipped.
func (s *Service) Candidates(ctx context.Context) ([]fingerprint.Candidate, error) {
	if s.opts.Cases.Type == "" {
		return nil, nil
	}
	raws, err := s.store.All(ctx, s.opts.Cases.Type)
	if err != nil {
		return nil, apperr.Database("intel: load cases", err)
	}
	out := make([]fingerprint.Candidate, 0, len(raws))
	for _, raw := range raws {
		id, doc, err := s.opts.Cases.Extract(raw)
		if err != nil {
			s.logger.Debug("intel: case skipped", slog.String("error", err.Error()))
			continue
		}
		out = append(out, fingerprint.Candidate{
			ID:          id,
			Title:       doc.Title,
			Fingerprint: fingerprint.New(doc.Title + "\n" + doc.Body),
		})
	}
	return out, nil
}

// FindSimilar ranks candidates similar to fp. A nil candidate list compares
// against the stored case records.
func (s *Service) FindSimilar(ctx context.Context, fp *fingerprint.Fingerprint, candidates []fingerprint.Candidate) ([]fingerprint.Match, error) {
	if candidates == nil {
		var err error
		if candidates, err = s.Candidates(ctx); err != nil {
			return nil, err
		}
	}
	return s.matcher.FindSimilar(fp, candidates), nil
}

// DetectDuplicates returns candidates that duplicate fp. A nil candidate
// list compares against the stored case records.
func (s *Service) DetectDuplicates(ctx context.Context, fp *fingerprint.Fingerprint, candidates []fingerprint.Candidate) ([]fingerprint.Match, error) {
	if candidates == nil {
		var err error
		if candidates, err = s.Candidates(ctx); err != nil {
			return nil, err
		}
	}
	return s.matcher.DetectDuplicates(fp, candidates), nil
}

// SuggestCategory analyses text and returns merged category suggestions.
func (s *Service) SuggestCategory(ctx context.Context, text string) ([]patterns.Suggestion, error) {
	return s.patterns.SuggestCategory(ctx, s.detector.Analyze(text, detector.SourceClipboard), text)
}

// Learn records that text belongs to category.
func (s *Service) Learn(ctx context.Context, text, category string, confidence float64) (*patterns.ContentPattern, error) {
	p, err := s.patterns.Learn(ctx, text, category, confidence)
	if err != nil {
		return nil, err
	}
	s.metrics.Learned()
	return p, nil
}

// Feedback records whether a pattern's suggestion was correct.
func (s *Service) Feedback(ctx context.Context, patternID string, correct bool) (*patterns.ContentPattern, error) {
	p, err := s.patterns.UpdateFeedback(ctx, patternID, correct)
	if err != nil {
		return nil, err
	}
	s.metrics.Feedback(correct)
	return p, nil
}

// ApplyFeedback records a batch of feedback, skipping items that fail.
func (s *Service) ApplyFeedback(ctx context.Context, items []patterns.Feedback) patterns.BatchReport {
	report := s.patterns.ApplyFeedback(ctx, items)
	for i := 0; i < report.Processed; i++ {
		s.metrics.Feedback(i < report.Correct)
	}
	return report
}
