package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/starford/casekit/internal/textproc"
)

// Sort fields and orders.
const (
	SortRelevance = "relevance"
	SortTitle     = "title"
	SortDate      = "date"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Match types.
const (
	MatchExact    = "exact"
	MatchPartial  = "partial"
	MatchSemantic = "semantic"
)

const (
	textWeight    = 0.6
	titleWeight   = 0.3
	tagWeight     = 0.1
	recencyWeight = 0.05
	minQueryRunes = 2
)

// Filters restrict the entries a query considers.
type Filters struct {
	EntityTypes   []string   `json:"entity_types,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	UpdatedAfter  *time.Time `json:"updated_after,omitempty"`
	UpdatedBefore *time.Time `json:"updated_before,omitempty"`
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return len(f.EntityTypes) == 0 && len(f.Tags) == 0 && f.UpdatedAfter == nil && f.UpdatedBefore == nil
}

func (f Filters) accept(en *IndexEntry) bool {
	if len(f.EntityTypes) > 0 && !containsFold(f.EntityTypes, en.EntityType) {
		return false
	}
	for _, tag := range f.Tags {
		if !containsFold(en.Tags, tag) {
			return false
		}
	}
	if f.UpdatedAfter != nil && en.UpdatedAt.Before(*f.UpdatedAfter) {
		return false
	}
	if f.UpdatedBefore != nil && en.UpdatedAt.After(*f.UpdatedBefore) {
		return false
	}
	return true
}

// Query is a search request.
type Query struct {
	Text      string  `json:"text"`
	Filters   Filters `json:"filters"`
	SortBy    string  `json:"sort_by,omitempty"`
	SortOrder string  `json:"sort_order,omitempty"`
	Limit     int     `json:"limit,omitempty"`
	Offset    int     `json:"offset,omitempty"`
}

// Match is one query term found in a result.
type Match struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Result is one ranked hit.
type Result struct {
	ID             string          `json:"id"`
	EntityID       string          `json:"entity_id"`
	EntityType     string          `json:"entity_type"`
	Title          string          `json:"title"`
	Snippet        string          `json:"snippet"`
	RelevanceScore float64         `json:"relevance_score"`
	Matches        []Match         `json:"matches"`
	Entity         json.RawMessage `json:"entity"`
}

// Stats describes a search run.
type Stats struct {
	Total     int            `json:"total"`
	ElapsedMs float64        `json:"elapsed_ms"`
	TopScore  float64        `json:"top_score"`
	ByType    map[string]int `json:"by_type"`
}

// Response is the outcome of Search.
type Response struct {
	Results []Result `json:"results"`
	Stats   Stats    `json:"stats"`
}

type scored struct {
	entry   *IndexEntry
	score   float64
	matches []Match
}

// Tokenize turns query text into distinct lowercase terms, dropping
// punctuation, stop words and single characters.
func Tokenize(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(textproc.StripPunctuation(strings.ToLower(text))) {
		if len([]rune(tok)) < minQueryRunes || textproc.IsStopWord(tok) {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Search ranks the index against q. Text shorter than two characters
// without filters returns an empty response immediately. With filters and
// no usable text, every entry passing the filters matches with relevance 1.
func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	start := e.now()
	resp := &Response{Results: []Result{}, Stats: Stats{ByType: map[string]int{}}}

	text := strings.TrimSpace(q.Text)
	if len([]rune(text)) < minQueryRunes && q.Filters.Empty() {
		return resp, nil
	}
	terms := Tokenize(text)
	if len(terms) == 0 && q.Filters.Empty() {
		return resp, nil
	}

	entries, err := e.entries(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	hits := make([]scored, 0, len(entries))
	for i := range entries {
		en := &entries[i]
		if !q.Filters.accept(en) {
			continue
		}
		if len(terms) == 0 {
			hits = append(hits, scored{entry: en, score: 1.0, matches: []Match{}})
			continue
		}
		score, matches := e.score(en, terms, now)
		if score <= e.opts.MinRelevance {
			continue
		}
		hits = append(hits, scored{entry: en, score: score, matches: matches})
	}

	sortHits(hits, q.SortBy, q.SortOrder)

	resp.Stats.Total = len(hits)
	for _, h := range hits {
		resp.Stats.ByType[h.entry.EntityType]++
		if h.score > resp.Stats.TopScore {
			resp.Stats.TopScore = h.score
		}
	}

	for _, h := range e.page(hits, q.Limit, q.Offset) {
		raw, err := e.store.Get(ctx, h.entry.EntityType, h.entry.EntityID)
		if err != nil {
			e.logger.Debug("search: result dropped, entity not loadable",
				slog.String("entity_id", h.entry.EntityID),
				slog.String("error", err.Error()))
			continue
		}
		resp.Results = append(resp.Results, Result{
			ID:             h.entry.ID,
			EntityID:       h.entry.EntityID,
			EntityType:     h.entry.EntityType,
			Title:          h.entry.Title,
			Snippet:        Snippet(h.entry.Content, terms),
			RelevanceScore: h.score,
			Matches:        h.matches,
			Entity:         raw,
		})
	}
	resp.Stats.ElapsedMs = float64(e.now().Sub(start).Microseconds()) / 1000
	return resp, nil
}

// score computes the weighted relevance of en for terms.
func (e *Engine) score(en *IndexEntry, terms []string, now time.Time) (float64, []Match) {
	title := strings.ToLower(en.Title)
	tags := strings.ToLower(strings.Join(en.Tags, " "))
	words := make(map[string]struct{})
	for _, w := range textproc.Tokens(en.Content) {
		words[w] = struct{}{}
	}

	var inText, inTitle, inTags int
	matches := make([]Match, 0, len(terms))
	for _, term := range terms {
		if strings.Contains(en.Content, term) {
			inText++
			if _, ok := words[term]; ok {
				matches = append(matches, Match{Text: term, Type: MatchExact})
			} else {
				matches = append(matches, Match{Text: term, Type: MatchPartial})
			}
		} else if sibling := semanticSibling(term, words); sibling != "" {
			matches = append(matches, Match{Text: sibling, Type: MatchSemantic})
		}
		if strings.Contains(title, term) {
			inTitle++
		}
		if strings.Contains(tags, term) {
			inTags++
		}
	}

	n := float64(len(terms))
	score := float64(inText)/n*textWeight +
		float64(inTitle)/n*titleWeight +
		float64(inTags)/n*tagWeight +
		e.recency(en.UpdatedAt, now)
	return math.Min(1.0, score), matches
}

// recency decays linearly from the full boost at now to zero at the end
// of the window.
func (e *Engine) recency(updated, now time.Time) float64 {
	age := now.Sub(updated)
	if age < 0 {
		age = 0
	}
	if age >= e.opts.RecencyWindow {
		return 0
	}
	return recencyWeight * (1 - float64(age)/float64(e.opts.RecencyWindow))
}

// semanticSibling returns a word from the same topic group as term that
// occurs in words.
func semanticSibling(term string, words map[string]struct{}) string {
	topic := textproc.TopicOf(term)
	if topic == "" {
		return ""
	}
	for _, w := range textproc.TopicWords(topic) {
		if w == term {
			continue
		}
		if _, ok := words[w]; ok {
			return w
		}
	}
	return ""
}

// sortHits orders hits by the requested field. Date ordering uses
// relevance. Relevance defaults to descending, title to ascending.
func sortHits(hits []scored, sortBy, order string) {
	if sortBy == SortTitle {
		desc := order == OrderDesc
		sort.SliceStable(hits, func(i, j int) bool {
			a, b := strings.ToLower(hits[i].entry.Title), strings.ToLower(hits[j].entry.Title)
			if a == b {
				return hits[i].entry.EntityID < hits[j].entry.EntityID
			}
			if desc {
				return a > b
			}
			return a < b
		})
		return
	}
	asc := order == OrderAsc
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.score != b.score {
			if asc {
				return a.score < b.score
			}
			return a.score > b.score
		}
		if !a.entry.UpdatedAt.Equal(b.entry.UpdatedAt) {
			return a.entry.UpdatedAt.After(b.entry.UpdatedAt)
		}
		return a.entry.EntityID < b.entry.EntityID
	})
}

func (e *Engine) page(hits []scored, limit, offset int) []scored {
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(hits) {
		return nil
	}
	end := offset + limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end]
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
