package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/casekit/internal/patterns"
)

const defaultLearnConfidence = 0.8

// SuggestCategory handles POST /api/categories/suggest.
//
//	@Summary		Suggest categories from learned patterns and content heuristics
//	@Tags			patterns
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ContentRequest	true	"Content"
//	@Success		200		{object}	SuggestionsResponse
//	@Security		BearerAuth
//	@Router			/categories/suggest [post]
func (h *Handler) SuggestCategory(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	suggestions, err := h.intel.SuggestCategory(r.Context(), req.Content)
	if err != nil {
		writeError(w, h.logger, "suggest category", err)
		return
	}
	if suggestions == nil {
		suggestions = []patterns.Suggestion{}
	}
	writeJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: suggestions})
}

// ListPatterns handles GET /api/patterns.
//
//	@Summary		List learned patterns, most confident first
//	@Tags			patterns
//	@Produce		json
//	@Success		200	{object}	PatternListResponse
//	@Security		BearerAuth
//	@Router			/patterns [get]
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	all, err := h.intel.Patterns().List(r.Context())
	if err != nil {
		writeError(w, h.logger, "list patterns", err)
		return
	}
	if all == nil {
		all = []patterns.ContentPattern{}
	}
	writeJSON(w, http.StatusOK, PatternListResponse{Patterns: all, Total: len(all)})
}

// GetPattern handles GET /api/patterns/{id}.
func (h *Handler) GetPattern(w http.ResponseWriter, r *http.Request) {
	p, err := h.intel.Patterns().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "get pattern", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AddPattern handles POST /api/patterns.
//
//	@Summary		Add a hand-written pattern
//	@Tags			patterns
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddPatternRequest	true	"Pattern"
//	@Success		201		{object}	patterns.ContentPattern
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/patterns [post]
func (h *Handler) AddPattern(w http.ResponseWriter, r *http.Request) {
	var req AddPatternRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	p, err := h.intel.Patterns().AddPattern(r.Context(), req.pattern())
	if err != nil {
		writeError(w, h.logger, "add pattern", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// DeletePattern handles DELETE /api/patterns/{id}.
func (h *Handler) DeletePattern(w http.ResponseWriter, r *http.Request) {
	if err := h.intel.Patterns().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, "delete pattern", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Learn handles POST /api/patterns/learn.
//
//	@Summary		Learn a pattern from categorised content
//	@Tags			patterns
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LearnRequest	true	"Content and its category"
//	@Success		201		{object}	patterns.ContentPattern
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/patterns/learn [post]
func (h *Handler) Learn(w http.ResponseWriter, r *http.Request) {
	var req LearnRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	confidence := defaultLearnConfidence
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	p, err := h.intel.Learn(r.Context(), req.Content, req.Category, confidence)
	if err != nil {
		writeError(w, h.logger, "learn", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Feedback handles POST /api/patterns/{id}/feedback.
//
//	@Summary		Report whether a pattern's suggestion was correct
//	@Tags			patterns
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Pattern id"
//	@Param			body	body		FeedbackRequest	true	"Outcome"
//	@Success		200		{object}	patterns.ContentPattern
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/patterns/{id}/feedback [post]
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if req.Correct == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("correct is required"))
		return
	}
	p, err := h.intel.Feedback(r.Context(), chi.URLParam(r, "id"), *req.Correct)
	if err != nil {
		writeError(w, h.logger, "pattern feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// BulkFeedback handles POST /api/patterns/feedback. Failing items are
// skipped and counted.
func (h *Handler) BulkFeedback(w http.ResponseWriter, r *http.Request) {
	var req BulkFeedbackRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	writeJSON(w, http.StatusOK, h.intel.ApplyFeedback(r.Context(), req.Items))
}

// Maintain handles POST /api/patterns/maintain: merge near-identical
// patterns, then drop those with a poor track record.
func (h *Handler) Maintain(w http.ResponseWriter, r *http.Request) {
	report, err := h.intel.Patterns().Maintain(r.Context())
	if err != nil {
		writeError(w, h.logger, "maintain patterns", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
