package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/casekit/internal/detector"
	"github.com/starford/casekit/internal/fingerprint"
	"github.com/starford/casekit/internal/intel"
	"github.com/starford/casekit/internal/metrics"
	"github.com/starford/casekit/internal/records"
	"github.com/starford/casekit/internal/search"
)

// Handler holds API route handlers.
type Handler struct {
	intel   *intel.Service
	search  *search.Engine
	records *records.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		intel:   deps.Intel,
		search:  deps.Search,
		records: deps.Records,
		metrics: deps.Metrics,
		logger:  logger,
	}
}

func parseSource(s string) (detector.Source, bool) {
	switch src := detector.Source(s); src {
	case "":
		return detector.SourceClipboard, true
	case detector.SourceClipboard, detector.SourceDragDrop, detector.SourceFileUpload:
		return src, true
	default:
		return "", false
	}
}

// Analyze handles POST /api/analyze.
//
//	@Summary		Classify content and enrich it with similar cases and category suggestions
//	@Tags			analysis
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnalyzeRequest	true	"Content to analyze"
//	@Success		200		{object}	detector.Result
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/analyze [post]
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	source, ok := parseSource(req.Source)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("source must be clipboard, drag-drop or file-upload"))
		return
	}

	var res *detector.Result
	switch strings.ToLower(req.Format) {
	case "", "text":
		res = h.intel.Analyze(r.Context(), req.Content, source)
	case "html":
		res = h.intel.AnalyzeHTML(r.Context(), req.Content, source)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("format must be text or html"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Fingerprint handles POST /api/fingerprints.
//
//	@Summary		Compute the content fingerprint of a text
//	@Tags			analysis
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ContentRequest	true	"Content"
//	@Success		200		{object}	fingerprint.Fingerprint
//	@Security		BearerAuth
//	@Router			/fingerprints [post]
func (h *Handler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	writeJSON(w, http.StatusOK, h.intel.Fingerprint(req.Content))
}

func (h *Handler) compareInput(w http.ResponseWriter, r *http.Request) (*fingerprint.Fingerprint, []fingerprint.Candidate, bool) {
	var req CompareRequest
	if !decodeBody(w, r, &req, false) {
		return nil, nil, false
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return nil, nil, false
	}
	var candidates []fingerprint.Candidate
	if req.Candidates != nil {
		candidates = make([]fingerprint.Candidate, 0, len(req.Candidates))
		for _, c := range req.Candidates {
			if c.ID == "" {
				writeJSON(w, http.StatusBadRequest, errorBody("every candidate needs an id"))
				return nil, nil, false
			}
			candidates = append(candidates, fingerprint.Candidate{
				ID:          c.ID,
				Title:       c.Title,
				Fingerprint: fingerprint.New(c.Content),
			})
		}
	}
	return fingerprint.New(req.Content), candidates, true
}

// FindSimilar handles POST /api/similar.
//
//	@Summary		Rank stored or supplied candidates by similarity
//	@Tags			analysis
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CompareRequest	true	"Content and optional candidates"
//	@Success		200		{object}	SimilarResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/similar [post]
func (h *Handler) FindSimilar(w http.ResponseWriter, r *http.Request) {
	fp, candidates, ok := h.compareInput(w, r)
	if !ok {
		return
	}
	matches, err := h.intel.FindSimilar(r.Context(), fp, candidates)
	if err != nil {
		writeError(w, h.logger, "find similar", err)
		return
	}
	writeJSON(w, http.StatusOK, SimilarResponse{Matches: matches})
}

// DetectDuplicates handles POST /api/duplicates.
//
//	@Summary		Find exact or near-exact duplicates
//	@Tags			analysis
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CompareRequest	true	"Content and optional candidates"
//	@Success		200		{object}	DuplicatesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/duplicates [post]
func (h *Handler) DetectDuplicates(w http.ResponseWriter, r *http.Request) {
	fp, candidates, ok := h.compareInput(w, r)
	if !ok {
		return
	}
	dups, err := h.intel.DetectDuplicates(r.Context(), fp, candidates)
	if err != nil {
		writeError(w, h.logger, "detect duplicates", err)
		return
	}
	writeJSON(w, http.StatusOK, DuplicatesResponse{IsDuplicate: len(dups) > 0, Duplicates: dups})
}
