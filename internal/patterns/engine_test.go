package patterns

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/starford/casekit/internal/apperr"
	"github.com/starford/casekit/internal/detector"
	"github.com/starford/casekit/internal/store"
)

const timeoutText = "We see an API timeout error in production"

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	store  *store.Memory
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.engine = NewEngine(s.store, quietLogger(), Options{})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// add stores p, starting it fully trusted unless a success rate is given.
func (s *EngineSuite) add(p ContentPattern) *ContentPattern {
	if p.SuccessRate == 0 {
		p.SuccessRate = 1.0
	}
	got, err := s.engine.AddPattern(s.ctx, p)
	s.Require().NoError(err)
	return got
}

func (s *EngineSuite) TestLearn_SignificantKeywords() {
	p, err := s.engine.Learn(s.ctx, "The API returns a timeout error when the API is called", "integration", 0.9)
	s.Require().NoError(err)
	s.Equal("api timeout error", p.Pattern)
	s.Equal(TypeKeyword, p.PatternType)
	s.Equal(1.0, p.SuccessRate)
	s.Equal(0.9, p.Confidence)
	s.Len(p.Examples, 1)
	s.NotEmpty(p.ID)

	stored, err := s.engine.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.Pattern, stored.Pattern)
}

func (s *EngineSuite) TestLearn_FallsBackToEntities() {
	p, err := s.engine.Learn(s.ctx, "contact bob@example.com", "sales", 0.6)
	s.Require().NoError(err)
	s.Equal("bob@example.com", p.Pattern)
}

func (s *EngineSuite) TestLearn_NoLearnableTokens() {
	_, err := s.engine.Learn(s.ctx, "hello there friend", "misc", 0.5)
	s.Require().Error(err)
	s.True(errors.Is(err, apperr.ErrValidation))

	all, err := s.engine.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *EngineSuite) TestLearn_Validation() {
	for _, tc := range []struct {
		text, category string
		confidence     float64
	}{
		{"", "bug", 0.5},
		{"api timeout", "", 0.5},
		{"api timeout", "bug", 1.5},
		{"api timeout", "bug", -0.1},
	} {
		_, err := s.engine.Learn(s.ctx, tc.text, tc.category, tc.confidence)
		s.True(errors.Is(err, apperr.ErrValidation), "case %+v", tc)
	}
}

func (s *EngineSuite) TestLearn_ReinforcesIdenticalPattern() {
	first, err := s.engine.Learn(s.ctx, "api timeout error", "integration", 0.6)
	s.Require().NoError(err)
	second, err := s.engine.Learn(s.ctx, "API timeout error again", "integration", 0.8)
	s.Require().NoError(err)

	s.Equal(first.ID, second.ID)
	s.Equal(0.8, second.Confidence)
	s.Len(second.Examples, 2)

	all, err := s.engine.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *EngineSuite) TestLearn_ClipsExamples() {
	long := "api timeout " + strings.Repeat("x", 900)
	p, err := s.engine.Learn(s.ctx, long, "integration", 0.5)
	s.Require().NoError(err)
	s.Len([]rune(p.Examples[0]), maxExampleLength)
}

func (s *EngineSuite) TestSuggestCategory_KeywordPattern() {
	_, err := s.engine.Learn(s.ctx, "api timeout error", "integration", 0.9)
	s.Require().NoError(err)

	got, err := s.engine.SuggestCategory(s.ctx, nil, timeoutText)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("integration", got[0].Category)
	s.InDelta(0.9, got[0].Confidence, 1e-9)
	s.Len(got[0].PatternIDs, 1)
}

func (s *EngineSuite) TestSuggestCategory_MergesHeuristicsAndCaps() {
	_, err := s.engine.Learn(s.ctx, "api timeout error", "integration", 0.9)
	s.Require().NoError(err)
	s.add(ContentPattern{Pattern: "production", PatternType: TypeKeyword, Category: "ops", Confidence: 0.6})

	analysis := detector.New().Analyze(timeoutText, detector.SourceClipboard)
	got, err := s.engine.SuggestCategory(s.ctx, analysis, timeoutText)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal("integration", got[0].Category)
	s.Equal(CategoryTechnical, got[1].Category)
	s.Equal(CategoryBug, got[2].Category)
}

func (s *EngineSuite) TestSuggestCategory_RegexPattern() {
	s.add(ContentPattern{Pattern: `timed?\s*out`, PatternType: TypeRegex, Category: "performance", Confidence: 1})

	got, err := s.engine.SuggestCategory(s.ctx, nil, "Request TIMED OUT after 30s")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("performance", got[0].Category)
	s.Equal(1.0, got[0].Confidence)

	got, err = s.engine.SuggestCategory(s.ctx, nil, "all good")
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *EngineSuite) TestSuggestCategory_SemanticPattern() {
	s.add(ContentPattern{Pattern: "auth error", PatternType: TypeSemantic, Category: "access", Confidence: 1})

	got, err := s.engine.SuggestCategory(s.ctx, nil, "Login failed with error")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("access", got[0].Category)
	s.Equal(1.0, got[0].Confidence)
}

func (s *EngineSuite) TestSuggestCategory_GroupsByCategory() {
	s.add(ContentPattern{Pattern: "invoice", PatternType: TypeKeyword, Category: "billing", Confidence: 1})
	s.add(ContentPattern{Pattern: "refund", PatternType: TypeKeyword, Category: "billing", Confidence: 0.6})

	got, err := s.engine.SuggestCategory(s.ctx, nil, "refund for invoice 42")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.InDelta(0.8, got[0].Confidence, 1e-9)
	s.Len(got[0].Reasons, 2)
}

func (s *EngineSuite) TestSuggestCategory_PoorTrackRecordDropsMatch() {
	p, err := s.engine.Learn(s.ctx, "api timeout error", "integration", 0.9)
	s.Require().NoError(err)
	for i := 0; i < 10; i++ {
		_, err := s.engine.UpdateFeedback(s.ctx, p.ID, false)
		s.Require().NoError(err)
	}
	got, err := s.engine.SuggestCategory(s.ctx, nil, timeoutText)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *EngineSuite) TestUpdateFeedback_Converges() {
	p := s.add(ContentPattern{Pattern: "invoice", PatternType: TypeKeyword, Category: "billing", Confidence: 1})

	prev := p.SuccessRate
	for i := 0; i < 60; i++ {
		got, err := s.engine.UpdateFeedback(s.ctx, p.ID, false)
		s.Require().NoError(err)
		s.LessOrEqual(got.SuccessRate, prev)
		s.GreaterOrEqual(got.SuccessRate, 0.0)
		prev = got.SuccessRate
	}
	s.Less(prev, 0.01)

	for i := 0; i < 60; i++ {
		got, err := s.engine.UpdateFeedback(s.ctx, p.ID, true)
		s.Require().NoError(err)
		s.GreaterOrEqual(got.SuccessRate, prev)
		s.LessOrEqual(got.SuccessRate, 1.0)
		prev = got.SuccessRate
	}
	s.Greater(prev, 0.99)
}

func (s *EngineSuite) TestUpdateFeedback_MissingPattern() {
	_, err := s.engine.UpdateFeedback(s.ctx, "missing", true)
	s.True(errors.Is(err, apperr.ErrNotFound))
}

func (s *EngineSuite) TestApplyFeedback_SkipsFailures() {
	p := s.add(ContentPattern{Pattern: "invoice", PatternType: TypeKeyword, Category: "billing", Confidence: 1})
	report := s.engine.ApplyFeedback(s.ctx, []Feedback{
		{PatternID: p.ID, Correct: false},
		{PatternID: "missing", Correct: true},
		{PatternID: "", Correct: true},
	})
	s.Equal(BatchReport{Processed: 1, Skipped: 2, Correct: 0}, report)

	got, err := s.engine.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.InDelta(0.9, got.SuccessRate, 1e-9)
}

func (s *EngineSuite) TestCleanupLowPerforming() {
	s.add(ContentPattern{Pattern: "weak", PatternType: TypeKeyword, Category: "x", Confidence: 1, SuccessRate: 0.2})
	strong := s.add(ContentPattern{Pattern: "strong", PatternType: TypeKeyword, Category: "x", Confidence: 1, SuccessRate: 0.9})

	n, err := s.engine.CleanupLowPerforming(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(1, n)

	all, err := s.engine.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal(strong.ID, all[0].ID)
}

func (s *EngineSuite) TestMergeSimilarPatterns() {
	s.add(ContentPattern{Pattern: "api timeout error", PatternType: TypeKeyword, Category: "integration", Confidence: 0.8, Examples: []string{"a", "b", "c"}})
	s.add(ContentPattern{Pattern: "error api timeout", PatternType: TypeKeyword, Category: "integration", Confidence: 0.6, SuccessRate: 0.5, Examples: []string{"c", "d", "e", "f"}})
	s.add(ContentPattern{Pattern: "api timeout error crash", PatternType: TypeKeyword, Category: "integration", Confidence: 0.5})
	s.add(ContentPattern{Pattern: "api timeout error", PatternType: TypeKeyword, Category: "other", Confidence: 0.5})

	n, err := s.engine.MergeSimilarPatterns(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(1, n)

	all, err := s.engine.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 3)
	for _, p := range all {
		if p.Category == "integration" && len(p.Pattern) == len("api timeout error") {
			s.InDelta(0.7, p.Confidence, 1e-9)
			s.InDelta(0.75, p.SuccessRate, 1e-9)
			s.Len(p.Examples, maxMergedExamples)
		}
	}
}

func (s *EngineSuite) TestMergeSimilarPatterns_AveragesWholeGroup() {
	s.add(ContentPattern{Pattern: "api timeout error", PatternType: TypeKeyword, Category: "integration", Confidence: 0.9, SuccessRate: 1.0})
	s.add(ContentPattern{Pattern: "error api timeout", PatternType: TypeKeyword, Category: "integration", Confidence: 0.6, SuccessRate: 0.7})
	s.add(ContentPattern{Pattern: "timeout error api", PatternType: TypeKeyword, Category: "integration", Confidence: 0.3, SuccessRate: 0.4})

	n, err := s.engine.MergeSimilarPatterns(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(2, n)

	all, err := s.engine.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.InDelta(0.6, all[0].Confidence, 1e-9)
	s.InDelta(0.7, all[0].SuccessRate, 1e-9)
}

func (s *EngineSuite) TestMaintain_MergesThenCleansUp() {
	s.add(ContentPattern{Pattern: "api timeout", PatternType: TypeKeyword, Category: "integration", Confidence: 0.8, SuccessRate: 0.4})
	s.add(ContentPattern{Pattern: "api timeout", PatternType: TypeKeyword, Category: "integration", Confidence: 0.8, SuccessRate: 0.1})
	s.add(ContentPattern{Pattern: "invoice", PatternType: TypeKeyword, Category: "billing", Confidence: 0.8})

	report, err := s.engine.Maintain(s.ctx)
	s.Require().NoError(err)
	// The merged pair averages to 0.25 and is then pruned.
	s.Equal(MaintenanceReport{Merged: 1, Removed: 1}, report)

	all, err := s.engine.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("billing", all[0].Category)
}

func (s *EngineSuite) TestAddPattern_Validation() {
	bad := []ContentPattern{
		{Pattern: "([", PatternType: TypeRegex, Category: "x", Confidence: 0.5},
		{Pattern: "ok", PatternType: "fuzzy", Category: "x", Confidence: 0.5},
		{Pattern: "", PatternType: TypeKeyword, Category: "x", Confidence: 0.5},
		{Pattern: "ok", PatternType: TypeKeyword, Category: "", Confidence: 0.5},
		{Pattern: "ok", PatternType: TypeKeyword, Category: "x", Confidence: 1.2},
		{Pattern: "ok", PatternType: TypeKeyword, Category: "x", Confidence: 0.5, SuccessRate: 2},
	}
	for _, p := range bad {
		_, err := s.engine.AddPattern(s.ctx, p)
		s.True(errors.Is(err, apperr.ErrValidation), "pattern %+v", p)
	}
}

func (s *EngineSuite) TestAddPattern_KeepsZeroSuccessRate() {
	p, err := s.engine.AddPattern(s.ctx, ContentPattern{Pattern: "legacy", PatternType: TypeKeyword, Category: "x", Confidence: 0.5})
	s.Require().NoError(err)
	s.Equal(0.0, p.SuccessRate)

	removed, err := s.engine.CleanupLowPerforming(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(1, removed)
}

func (s *EngineSuite) TestAddPattern_DuplicateID() {
	s.add(ContentPattern{ID: "fixed", Pattern: "ok", PatternType: TypeKeyword, Category: "x", Confidence: 0.5})
	_, err := s.engine.AddPattern(s.ctx, ContentPattern{ID: "fixed", Pattern: "ok", PatternType: TypeKeyword, Category: "x"})
	s.True(errors.Is(err, apperr.ErrConflict))
}

func (s *EngineSuite) TestDelete() {
	p := s.add(ContentPattern{Pattern: "ok", PatternType: TypeKeyword, Category: "x", Confidence: 0.5})

	var events []string
	s.engine.OnChange(func(kind, id string) { events = append(events, kind+":"+id) })

	s.Require().NoError(s.engine.Delete(s.ctx, p.ID))
	s.Equal([]string{ChangeDeleted + ":" + p.ID}, events)
	s.True(errors.Is(s.engine.Delete(s.ctx, p.ID), apperr.ErrNotFound))
}

func TestMatchRegex_InvalidNeverMatches(t *testing.T) {
	assert.Zero(t, matchRegex("([", newSubject("anything ([ at all")).score)
}

func TestMatchKeywords_Partial(t *testing.T) {
	m := matchKeywords("login password reset", newSubject("Forgot my PASSWORD on the login page"))
	assert.InDelta(t, 2.0/3.0, m.score, 1e-9)
	assert.Contains(t, m.reason, "partial")
}

func TestNextSuccessRate(t *testing.T) {
	assert.InDelta(t, 0.9, nextSuccessRate(1, false, 0.1), 1e-12)
	assert.InDelta(t, 0.55, nextSuccessRate(0.5, true, 0.1), 1e-12)
	assert.Equal(t, 1.0, nextSuccessRate(1, true, 0.1))
	assert.Equal(t, 0.0, nextSuccessRate(0, false, 0.1))
}

func TestHeuristics(t *testing.T) {
	assert.Nil(t, Heuristics(nil, "error"))

	support := &detector.Result{ContentType: detector.TypeSupportRequest}
	got := Heuristics(support, "please help")
	require.Len(t, got, 1)
	assert.Equal(t, CategoryGeneral, got[0].Category)

	logs := &detector.Result{
		ContentType: detector.TypeConsoleLog,
		Metadata: detector.Metadata{ConsoleLogs: []detector.ConsoleLogEntry{{Level: detector.LevelError, Message: "boom"}}},
	}
	got = Heuristics(logs, "boom")
	require.Len(t, got, 2)
	assert.Equal(t, CategoryTechnical, got[0].Category)
	assert.Equal(t, CategoryBug, got[1].Category)
}

func TestMerge(t *testing.T) {
	got := Merge(
		[]Suggestion{{Category: "bug", Confidence: 0.6, Reasons: []string{"pattern"}}},
		[]Suggestion{{Category: "bug", Confidence: 0.7, Reasons: []string{"heuristic"}}, {Category: "auth", Confidence: 0.7}},
	)
	require.Len(t, got, 2)
	assert.Equal(t, "auth", got[0].Category, "ties break by category")
	assert.Equal(t, "bug", got[1].Category)
	assert.Equal(t, 0.7, got[1].Confidence)
	assert.Equal(t, []string{"pattern", "heuristic"}, got[1].Reasons)
}
