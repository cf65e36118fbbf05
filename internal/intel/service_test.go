package intel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/starford/casekit/internal/detector"
	"github.com/starford/casekit/internal/fingerprint"
	"github.com/starford/casekit/internal/metrics"
	"github.com/starford/casekit/internal/patterns"
	"github.com/starford/casekit/internal/search"
	"github.com/starford/casekit/internal/store"
)

const loginCase = "Login fails\nUsers cannot log in after password reset"

var caseSource = search.Source{Type: "case", TitleField: "title", BodyFields: []string{"description"}}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.Memory
	metrics *metrics.Metrics
	svc     *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.metrics = metrics.New()
	pe := patterns.NewEngine(s.store, quietLogger(), patterns.Options{})
	s.svc = New(s.store, pe, s.metrics, quietLogger(), Options{Cases: caseSource})
}

func (s *ServiceSuite) putCase(id, title, description string) {
	raw, err := json.Marshal(map[string]string{"id": id, "title": title, "description": description})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Put(s.ctx, "case", id, raw))
}

func (s *ServiceSuite) TestAnalyze_FlagsDuplicateOfStoredCase() {
	s.putCase("c-1", "Login fails", "Users cannot log in after password reset")
	s.putCase("c-2", "Invoice totals", "Quarterly invoice totals are rounded wrong")

	res := s.svc.Analyze(s.ctx, loginCase, detector.SourceClipboard)

	s.True(res.Metadata.IsDuplicate)
	s.Require().Len(res.Metadata.SimilarCases, 1)
	s.Equal("c-1", res.Metadata.SimilarCases[0].ID)
	s.Equal("Login fails", res.Metadata.SimilarCases[0].Title)
	s.InDelta(1.0, res.Metadata.SimilarCases[0].Similarity, 1e-9)
}

func (s *ServiceSuite) TestAnalyze_UnrelatedTextHasNoMatches() {
	s.putCase("c-1", "Login fails", "Users cannot log in after password reset")

	res := s.svc.Analyze(s.ctx, "Quarterly revenue spreadsheet attached for review", detector.SourceFileUpload)

	s.False(res.Metadata.IsDuplicate)
	s.Empty(res.Metadata.SimilarCases)
	s.Equal(detector.SourceFileUpload, res.Source)
}

func (s *ServiceSuite) TestAnalyze_SimilarCasesCapped() {
	svc := New(s.store, s.svc.Patterns(), nil, quietLogger(), Options{Cases: caseSource, MaxSimilar: 2})
	for _, id := range []string{"a", "b", "c"} {
		s.putCase(id, "Login fails", "Users cannot log in after password reset")
	}
	res := svc.Analyze(s.ctx, loginCase, detector.SourceClipboard)
	s.Len(res.Metadata.SimilarCases, 2)
}

func (s *ServiceSuite) TestAnalyze_PatternOverridesWeakerHeuristics() {
	p, err := s.svc.Patterns().AddPattern(s.ctx, patterns.ContentPattern{
		Pattern: "invoice refund", PatternType: patterns.TypeKeyword, Category: "billing", Confidence: 1, SuccessRate: 1,
	})
	s.Require().NoError(err)

	text := "invoice refund please"
	base := detector.New().Analyze(text, detector.SourceClipboard)
	s.Require().Less(base.Confidence, 1.0)

	res := s.svc.Analyze(s.ctx, text, detector.SourceClipboard)

	s.Equal("billing", res.Classification)
	s.InDelta(1.0, res.Confidence, 1e-9)
	s.Require().NotEmpty(res.Metadata.PatternMatches)
	s.Equal("billing", res.Metadata.PatternMatches[0].Category)
	s.Contains(res.Metadata.PatternMatches[0].Patterns, p.ID)
}

func (s *ServiceSuite) TestAnalyze_KeepsHeuristicsWithoutStrongerSuggestion() {
	text := "Can someone look at the quarterly numbers when they have a moment?"
	base := detector.New().Analyze(text, detector.SourceClipboard)

	res := s.svc.Analyze(s.ctx, text, detector.SourceClipboard)

	s.Equal(base.Classification, res.Classification)
	s.InDelta(base.Confidence, res.Confidence, 1e-9)
	for _, pm := range res.Metadata.PatternMatches {
		s.LessOrEqual(pm.Confidence, res.Confidence)
	}
}

func (s *ServiceSuite) TestAnalyze_EmptyTextSkipsEnrichment() {
	s.putCase("c-1", "", "")
	res := s.svc.Analyze(s.ctx, "   ", detector.SourceClipboard)
	s.Equal(detector.TypePlainText, res.ContentType)
	s.False(res.Metadata.IsDuplicate)
	s.Empty(res.Metadata.SimilarCases)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Analyses.WithLabelValues(string(detector.TypePlainText))))
}

func (s *ServiceSuite) TestAnalyze_StoreFailureDegrades() {
	broken := &failingStore{Store: s.store}
	svc := New(broken, s.svc.Patterns(), nil, quietLogger(), Options{Cases: caseSource})
	s.putCase("c-1", "Login fails", "Users cannot log in after password reset")

	res := svc.Analyze(s.ctx, loginCase, detector.SourceClipboard)

	s.NotNil(res)
	s.False(res.Metadata.IsDuplicate)
	s.Empty(res.Metadata.SimilarCases)
}

func (s *ServiceSuite) TestAnalyzeHTML() {
	s.putCase("c-1", "Login fails", "Users cannot log in after password reset")
	res := s.svc.AnalyzeHTML(s.ctx, "<p>Login fails</p>\n<p>Users cannot log in after password reset</p>", detector.SourceDragDrop)
	s.NotEmpty(res.Metadata.SimilarCases)
	s.Equal(detector.SourceDragDrop, res.Source)
}

func (s *ServiceSuite) TestCandidates() {
	s.putCase("c-1", "Login fails", "Users cannot log in")
	s.Require().NoError(s.store.Put(s.ctx, "case", "no-id", json.RawMessage(`{"title":"orphan"}`)))

	got, err := s.svc.Candidates(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("c-1", got[0].ID)
	s.NotNil(got[0].Fingerprint)

	none := New(s.store, s.svc.Patterns(), nil, quietLogger(), Options{})
	got, err = none.Candidates(s.ctx)
	s.NoError(err)
	s.Empty(got)
}

func (s *ServiceSuite) TestFindSimilarAndDuplicates() {
	s.putCase("c-1", "Login fails", "Users cannot log in after password reset")
	fp := s.svc.Fingerprint(loginCase)

	stored, err := s.svc.FindSimilar(s.ctx, fp, nil)
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.True(stored[0].ExactMatch)

	explicit, err := s.svc.FindSimilar(s.ctx, fp, []fingerprint.Candidate{})
	s.Require().NoError(err)
	s.Empty(explicit, "an explicit empty list does not fall back to stored cases")

	dups, err := s.svc.DetectDuplicates(s.ctx, fp, []fingerprint.Candidate{
		{ID: "x", Fingerprint: fingerprint.New(loginCase)},
		{ID: "y", Fingerprint: fingerprint.New("something else entirely")},
	})
	s.Require().NoError(err)
	s.Require().Len(dups, 1)
	s.Equal("x", dups[0].ID)

	_, err = New(&failingStore{Store: s.store}, s.svc.Patterns(), nil, quietLogger(), Options{Cases: caseSource}).
		DetectDuplicates(s.ctx, fp, nil)
	s.Error(err)
}

func (s *ServiceSuite) TestSuggestCategory() {
	_, err := s.svc.Patterns().AddPattern(s.ctx, patterns.ContentPattern{
		Pattern: "invoice", PatternType: patterns.TypeKeyword, Category: "billing", Confidence: 0.9, SuccessRate: 1,
	})
	s.Require().NoError(err)

	got, err := s.svc.SuggestCategory(s.ctx, "the invoice is wrong")
	s.Require().NoError(err)
	s.Require().NotEmpty(got)
	s.Equal("billing", got[0].Category)
}

func (s *ServiceSuite) TestLearnAndFeedback() {
	p, err := s.svc.Learn(s.ctx, "database timeout on checkout, database timeout again", "performance", 0.8)
	s.Require().NoError(err)
	s.Equal("performance", p.Category)

	updated, err := s.svc.Feedback(s.ctx, p.ID, false)
	s.Require().NoError(err)
	s.InDelta(0.9, updated.SuccessRate, 1e-9)

	_, err = s.svc.Feedback(s.ctx, "missing", true)
	s.Error(err)

	report := s.svc.ApplyFeedback(s.ctx, []patterns.Feedback{
		{PatternID: p.ID, Correct: true},
		{PatternID: p.ID, Correct: false},
		{PatternID: "missing", Correct: true},
	})
	s.Equal(patterns.BatchReport{Processed: 2, Skipped: 1, Correct: 1}, report)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.PatternsLearned))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PatternFeedback.WithLabelValues("correct")))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.PatternFeedback.WithLabelValues("incorrect")))
}

func (s *ServiceSuite) TestLearnValidation() {
	_, err := s.svc.Learn(s.ctx, "", "x", 0.5)
	s.Error(err)
	s.Equal(0.0, testutil.ToFloat64(s.metrics.PatternsLearned))
}

type failingStore struct {
	store.Store
}

func (f *failingStore) All(context.Context, string) ([]json.RawMessage, error) {
	return nil, errors.New("disk on fire")
}
