package api

import (
	"github.com/starford/casekit/internal/fingerprint"
	"github.com/starford/casekit/internal/patterns"
	"github.com/starford/casekit/internal/records"
	"github.com/starford/casekit/internal/search"
)

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	Content string `json:"content" example:"ERROR: connection refused" validate:"required"`
	Source  string `json:"source,omitempty" example:"clipboard"`
	// Format is "text" (default) or "html".
	Format string `json:"format,omitempty" example:"text"`
}

// ContentRequest carries a piece of text.
type ContentRequest struct {
	Content string `json:"content" example:"Login fails after password reset" validate:"required"`
}

// CandidateInput is a comparison target given inline.
type CandidateInput struct {
	ID      string `json:"id" validate:"required"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content" validate:"required"`
}

// CompareRequest is the request body for POST /similar and POST /duplicates.
// Without candidates the stored case records are used.
type CompareRequest struct {
	Content    string           `json:"content" validate:"required"`
	Candidates []CandidateInput `json:"candidates,omitempty"`
}

// SimilarResponse wraps POST /similar results.
type SimilarResponse struct {
	Matches []fingerprint.Match `json:"matches" validate:"required"`
}

// DuplicatesResponse wraps POST /duplicates results.
type DuplicatesResponse struct {
	IsDuplicate bool                `json:"is_duplicate"`
	Duplicates  []fingerprint.Match `json:"duplicates" validate:"required"`
}

// SuggestionsResponse wraps category suggestions.
type SuggestionsResponse struct {
	Suggestions []patterns.Suggestion `json:"suggestions" validate:"required"`
}

// PatternListResponse wraps the pattern listing.
type PatternListResponse struct {
	Patterns []patterns.ContentPattern `json:"patterns" validate:"required"`
	Total    int                       `json:"total" example:"12"`
}

// AddPatternRequest is the request body for POST /patterns. An omitted
// success_rate starts the pattern at 1.
type AddPatternRequest struct {
	ID          string        `json:"id,omitempty"`
	Pattern     string        `json:"pattern" example:"refund" validate:"required"`
	PatternType patterns.Type `json:"pattern_type" example:"keyword" validate:"required"`
	Category    string        `json:"category" example:"billing" validate:"required"`
	Confidence  float64       `json:"confidence" example:"0.8"`
	Examples    []string      `json:"examples,omitempty"`
	SuccessRate *float64      `json:"success_rate,omitempty" example:"1"`
}

func (r AddPatternRequest) pattern() patterns.ContentPattern {
	rate := 1.0
	if r.SuccessRate != nil {
		rate = *r.SuccessRate
	}
	return patterns.ContentPattern{
		ID:          r.ID,
		Pattern:     r.Pattern,
		PatternType: r.PatternType,
		Category:    r.Category,
		Confidence:  r.Confidence,
		Examples:    r.Examples,
		SuccessRate: rate,
	}
}

// LearnRequest is the request body for POST /patterns/learn.
type LearnRequest struct {
	Content    string   `json:"content" validate:"required"`
	Category   string   `json:"category" example:"billing" validate:"required"`
	Confidence *float64 `json:"confidence,omitempty" example:"0.8"`
}

// FeedbackRequest is the request body for POST /patterns/{id}/feedback.
type FeedbackRequest struct {
	Correct *bool `json:"correct" validate:"required"`
}

// BulkFeedbackRequest is the request body for POST /patterns/feedback.
type BulkFeedbackRequest struct {
	Items []patterns.Feedback `json:"items" validate:"required"`
}

// SaveSearchRequest is the request body for POST /searches.
type SaveSearchRequest struct {
	Name    string         `json:"name" example:"open login issues" validate:"required"`
	Query   string         `json:"query" example:"login"`
	Filters search.Filters `json:"filters"`
}

// SavedSearchListResponse wraps saved searches.
type SavedSearchListResponse struct {
	Searches []search.SavedSearch `json:"searches" validate:"required"`
}

// QuerySuggestionsResponse wraps query completions.
type QuerySuggestionsResponse struct {
	Suggestions []search.Suggestion `json:"suggestions" validate:"required"`
}

// RecordListResponse wraps a page of records.
type RecordListResponse struct {
	Records []records.Record `json:"records" validate:"required"`
	Total   int              `json:"total" example:"42"`
}
