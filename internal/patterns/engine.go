package patterns

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/casekit/internal/apperr"
	"github.com/starford/casekit/internal/detector"
	"github.com/starford/casekit/internal/store"
	"github.com/starford/casekit/internal/textproc"
)

// Default tuning values.
const (
	DefaultLearningRate     = 0.1
	DefaultMinConfidence    = 0.5
	DefaultCleanupThreshold = 0.3
	DefaultMergeThreshold   = 0.8
	DefaultMaxSuggestions   = 3
)

const (
	maxSignificantKeywords = 3
	maxLearnedEntities     = 2
)

// Change kinds passed to a ChangeFunc.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// ChangeFunc is called after a pattern is created, updated or deleted.
type ChangeFunc func(kind, id string)

// Options tunes an Engine. Zero fields take the defaults.
type Options struct {
	LearningRate     float64
	MinConfidence    float64
	CleanupThreshold float64
	MergeThreshold   float64
	MaxSuggestions   int
}

// DefaultOptions returns the default tuning.
func DefaultOptions() Options {
	return Options{
		LearningRate:     DefaultLearningRate,
		MinConfidence:    DefaultMinConfidence,
		CleanupThreshold: DefaultCleanupThreshold,
		MergeThreshold:   DefaultMergeThreshold,
		MaxSuggestions:   DefaultMaxSuggestions,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LearningRate <= 0 {
		o.LearningRate = d.LearningRate
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = d.MinConfidence
	}
	if o.CleanupThreshold <= 0 {
		o.CleanupThreshold = d.CleanupThreshold
	}
	if o.MergeThreshold <= 0 {
		o.MergeThreshold = d.MergeThreshold
	}
	if o.MaxSuggestions <= 0 {
		o.MaxSuggestions = d.MaxSuggestions
	}
	return o
}

// Engine owns the persisted patterns. Mutating operations are serialised.
type Engine struct {
	store    store.Store
	logger   *slog.Logger
	opts     Options
	mu       sync.Mutex
	now      func() time.Time
	onChange ChangeFunc
}

// NewEngine creates an Engine persisting through s.
func NewEngine(s store.Store, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, logger: logger, opts: opts.withDefaults(), now: time.Now}
}

// OnChange registers fn to be called after every pattern mutation.
func (e *Engine) OnChange(fn ChangeFunc) {
	e.onChange = fn
}

// Options returns the effective tuning.
func (e *Engine) Options() Options { return e.opts }

func (e *Engine) notify(kind, id string) {
	if e.onChange != nil {
		e.onChange(kind, id)
	}
}

// List returns every pattern, most confident first.
func (e *Engine) List(ctx context.Context) ([]ContentPattern, error) {
	all, skipped, err := store.AllAs[ContentPattern](ctx, e.store, EntityType)
	if err != nil {
		return nil, apperr.Database("patterns: list", err)
	}
	if skipped > 0 {
		e.logger.Warn("patterns: undecodable records skipped", slog.Int("count", skipped))
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Confidence != all[j].Confidence {
			return all[i].Confidence > all[j].Confidence
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}

// Get returns one pattern.
func (e *Engine) Get(ctx context.Context, id string) (*ContentPattern, error) {
	p, err := store.GetAs[ContentPattern](ctx, e.store, EntityType, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound("patterns: get", "pattern "+id)
		}
		return nil, apperr.Database("patterns: get", err)
	}
	return p, nil
}

// Delete removes a pattern.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.Get(ctx, id); err != nil {
		return err
	}
	if err := e.store.DeleteOne(ctx, EntityType, id); err != nil {
		return apperr.Database("patterns: delete", err)
	}
	e.notify(ChangeDeleted, id)
	return nil
}

// AddPattern stores an explicitly defined pattern. Missing ID and
// timestamps are filled in; SuccessRate is stored as given, so a zero rate
// creates a pattern that the next cleanup prunes.
func (e *Engine) AddPattern(ctx context.Context, p ContentPattern) (*ContentPattern, error) {
	p.Pattern = strings.TrimSpace(p.Pattern)
	if err := p.Validate(); err != nil {
		return nil, apperr.Validation("patterns: add", "%v", err)
	}
	for i, ex := range p.Examples {
		p.Examples[i] = clipExample(ex)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if _, err := e.store.Get(ctx, EntityType, p.ID); err == nil {
		return nil, apperr.AlreadyExists("patterns: add", "pattern "+p.ID)
	}
	now := e.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Examples == nil {
		p.Examples = []string{}
	}
	if err := store.PutAs(ctx, e.store, EntityType, p.ID, p); err != nil {
		return nil, apperr.Database("patterns: add", err)
	}
	e.notify(ChangeCreated, p.ID)
	return &p, nil
}

// SuggestCategory matches text against every pattern, adds content
// heuristics from analysis (which may be nil) and returns the merged
// suggestions, best first.
func (e *Engine) SuggestCategory(ctx context.Context, analysis *detector.Result, text string) ([]Suggestion, error) {
	all, err := e.List(ctx)
	if err != nil {
		return nil, err
	}

	subj := newSubject(text)
	byCategory := make(map[string]*Suggestion)
	counts := make(map[string]int)
	var order []string
	for i := range all {
		p := &all[i]
		m := match(p, subj)
		if m.score == 0 {
			continue
		}
		conf := clamp01(m.score * p.Confidence * p.SuccessRate)
		if conf < e.opts.MinConfidence {
			continue
		}
		s, ok := byCategory[p.Category]
		if !ok {
			s = &Suggestion{Category: p.Category}
			byCategory[p.Category] = s
			order = append(order, p.Category)
		}
		s.Confidence += conf
		counts[p.Category]++
		s.Reasons = append(s.Reasons, m.reason)
		s.PatternIDs = append(s.PatternIDs, p.ID)
	}

	fromPatterns := make([]Suggestion, 0, len(order))
	for _, c := range order {
		s := byCategory[c]
		s.Confidence /= float64(counts[c])
		fromPatterns = append(fromPatterns, *s)
	}

	merged := Merge(fromPatterns, Heuristics(analysis, text))
	if len(merged) > e.opts.MaxSuggestions {
		merged = merged[:e.opts.MaxSuggestions]
	}
	return merged, nil
}

// Learn derives a keyword pattern from text an operator has categorised.
// Up to three significant keywords (technical terms or words repeated in
// the text) form the pattern; entities are used when there are none. An
// identical existing pattern is reinforced instead of duplicated.
func (e *Engine) Learn(ctx context.Context, text, category string, confidence float64) (*ContentPattern, error) {
	const op = "patterns: learn"
	category = strings.TrimSpace(category)
	switch {
	case strings.TrimSpace(text) == "":
		return nil, apperr.Validation(op, "text is required")
	case category == "":
		return nil, apperr.Validation(op, "category is required")
	case confidence < 0 || confidence > 1:
		return nil, apperr.Validation(op, "confidence %v outside [0,1]", confidence)
	}

	pattern := learnablePattern(text)
	if pattern == "" {
		return nil, apperr.Validation(op, "no learnable tokens in text")
	}
	example := clipExample(strings.TrimSpace(text))

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, skipped, err := store.QueryAs[ContentPattern](ctx, e.store, EntityType, "category", category)
	if err != nil {
		return nil, apperr.Database(op, err)
	}
	if skipped > 0 {
		e.logger.Warn("patterns: undecodable records skipped", slog.Int("count", skipped))
	}
	now := e.now().UTC()
	for i := range existing {
		p := &existing[i]
		if p.PatternType != TypeKeyword || p.Pattern != pattern {
			continue
		}
		if confidence > p.Confidence {
			p.Confidence = confidence
		}
		p.Examples = appendExample(p.Examples, example, maxExamples)
		p.UpdatedAt = now
		if err := store.PutAs(ctx, e.store, EntityType, p.ID, *p); err != nil {
			return nil, apperr.Database(op, err)
		}
		e.logger.Debug("patterns: reinforced", slog.String("id", p.ID), slog.String("category", category))
		e.notify(ChangeUpdated, p.ID)
		return p, nil
	}

	p := ContentPattern{
		ID:          uuid.NewString(),
		Pattern:     pattern,
		PatternType: TypeKeyword,
		Category:    category,
		Confidence:  confidence,
		Examples:    []string{example},
		SuccessRate: 1.0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.PutAs(ctx, e.store, EntityType, p.ID, p); err != nil {
		return nil, apperr.Database(op, err)
	}
	e.logger.Debug("patterns: learned", slog.String("id", p.ID), slog.String("pattern", pattern), slog.String("category", category))
	e.notify(ChangeCreated, p.ID)
	return &p, nil
}

func learnablePattern(text string) string {
	normalized := textproc.Normalize(text)
	counts := make(map[string]int)
	for _, tok := range textproc.Tokens(normalized) {
		counts[tok]++
	}
	var significant []string
	for _, kw := range textproc.Keywords(normalized) {
		if textproc.IsTechnicalTerm(kw) || counts[kw] > 1 {
			significant = append(significant, kw)
			if len(significant) == maxSignificantKeywords {
				break
			}
		}
	}
	if len(significant) > 0 {
		return strings.Join(significant, " ")
	}
	entities := textproc.Entities(normalized)
	if len(entities) > maxLearnedEntities {
		entities = entities[:maxLearnedEntities]
	}
	return strings.Join(entities, " ")
}

// UpdateFeedback moves the pattern's success rate toward 1 when the
// suggestion was correct and toward 0 otherwise, by the learning rate.
func (e *Engine) UpdateFeedback(ctx context.Context, id string, correct bool) (*ContentPattern, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateFeedbackLocked(ctx, id, correct)
}

func (e *Engine) updateFeedbackLocked(ctx context.Context, id string, correct bool) (*ContentPattern, error) {
	if id == "" {
		return nil, apperr.Validation("patterns: feedback", "pattern id is required")
	}
	p, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.SuccessRate = nextSuccessRate(p.SuccessRate, correct, e.opts.LearningRate)
	p.UpdatedAt = e.now().UTC()
	if err := store.PutAs(ctx, e.store, EntityType, p.ID, *p); err != nil {
		return nil, apperr.Database("patterns: feedback", err)
	}
	e.notify(ChangeUpdated, p.ID)
	return p, nil
}

func nextSuccessRate(current float64, correct bool, rate float64) float64 {
	target := 0.0
	if correct {
		target = 1.0
	}
	return clamp01(current + rate*(target-current))
}

// ApplyFeedback records a batch of feedback. Items that fail are skipped
// and counted.
func (e *Engine) ApplyFeedback(ctx context.Context, items []Feedback) BatchReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	var report BatchReport
	for _, it := range items {
		if _, err := e.updateFeedbackLocked(ctx, it.PatternID, it.Correct); err != nil {
			e.logger.Warn("patterns: feedback skipped",
				slog.String("pattern_id", it.PatternID),
				slog.String("error", err.Error()))
			report.Skipped++
			continue
		}
		report.Processed++
		if it.Correct {
			report.Correct++
		}
	}
	return report
}

// CleanupLowPerforming deletes patterns whose success rate is below
// minRate. A non-positive minRate uses the configured threshold.
func (e *Engine) CleanupLowPerforming(ctx context.Context, minRate float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cleanupLocked(ctx, minRate)
}

func (e *Engine) cleanupLocked(ctx context.Context, minRate float64) (int, error) {
	if minRate <= 0 {
		minRate = e.opts.CleanupThreshold
	}
	all, err := e.List(ctx)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, p := range all {
		if p.SuccessRate < minRate {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := e.store.BulkDelete(ctx, EntityType, ids)
	if err != nil {
		return 0, apperr.Database("patterns: cleanup", err)
	}
	for _, id := range ids {
		e.notify(ChangeDeleted, id)
	}
	e.logger.Info("patterns: cleanup", slog.Int("removed", n), slog.Float64("min_rate", minRate))
	return n, nil
}

// MergeSimilarPatterns folds together patterns of the same type and
// category whose words overlap by more than threshold. The older pattern
// survives with averaged confidence and success rate and the union of
// examples. A non-positive threshold uses the configured one.
func (e *Engine) MergeSimilarPatterns(ctx context.Context, threshold float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mergeLocked(ctx, threshold)
}

func (e *Engine) mergeLocked(ctx context.Context, threshold float64) (int, error) {
	const op = "patterns: merge"
	if threshold <= 0 {
		threshold = e.opts.MergeThreshold
	}
	all, err := e.List(ctx)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	absorbed := make(map[string]bool)
	var removed []string
	now := e.now().UTC()
	for i := range all {
		keep := &all[i]
		if absorbed[keep.ID] {
			continue
		}
		keepWords := strings.Fields(strings.ToLower(keep.Pattern))
		group := 1
		confSum, rateSum := keep.Confidence, keep.SuccessRate
		for j := i + 1; j < len(all); j++ {
			other := &all[j]
			if absorbed[other.ID] || other.PatternType != keep.PatternType || other.Category != keep.Category {
				continue
			}
			if textproc.Jaccard(keepWords, strings.Fields(strings.ToLower(other.Pattern))) <= threshold {
				continue
			}
			group++
			confSum += other.Confidence
			rateSum += other.SuccessRate
			keep.Examples = mergeExamples(keep.Examples, other.Examples)
			absorbed[other.ID] = true
			removed = append(removed, other.ID)
		}
		if group == 1 {
			continue
		}
		keep.Confidence = confSum / float64(group)
		keep.SuccessRate = rateSum / float64(group)
		keep.UpdatedAt = now
		if err := store.PutAs(ctx, e.store, EntityType, keep.ID, *keep); err != nil {
			return 0, apperr.Database(op, err)
		}
		e.notify(ChangeUpdated, keep.ID)
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if _, err := e.store.BulkDelete(ctx, EntityType, removed); err != nil {
		return 0, apperr.Database(op, err)
	}
	for _, id := range removed {
		e.notify(ChangeDeleted, id)
	}
	e.logger.Info("patterns: merged", slog.Int("absorbed", len(removed)), slog.Float64("threshold", threshold))
	return len(removed), nil
}

func mergeExamples(a, b []string) []string {
	out := make([]string, 0, maxMergedExamples)
	for _, ex := range append(append([]string{}, a...), b...) {
		out = appendExample(out, ex, maxMergedExamples)
	}
	return out
}

// Maintain merges similar patterns, then prunes low performers, using the
// configured thresholds.
func (e *Engine) Maintain(ctx context.Context) (MaintenanceReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	merged, err := e.mergeLocked(ctx, 0)
	if err != nil {
		return MaintenanceReport{}, err
	}
	removed, err := e.cleanupLocked(ctx, 0)
	if err != nil {
		return MaintenanceReport{Merged: merged}, err
	}
	return MaintenanceReport{Merged: merged, Removed: removed}, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
