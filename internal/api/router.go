package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/casekit/internal/intel"
	"github.com/starford/casekit/internal/metrics"
	"github.com/starford/casekit/internal/records"
	"github.com/starford/casekit/internal/search"
)

// Deps are the services behind the API. Metrics may be nil.
type Deps struct {
	Intel   *intel.Service
	Search  *search.Engine
	Records *records.Service
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(deps Deps, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(deps)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Analysis.
	r.Post("/analyze", h.Analyze)
	r.Post("/fingerprints", h.Fingerprint)
	r.Post("/similar", h.FindSimilar)
	r.Post("/duplicates", h.DetectDuplicates)
	r.Post("/categories/suggest", h.SuggestCategory)

	// Learned patterns.
	r.Get("/patterns", h.ListPatterns)
	r.Post("/patterns", h.AddPattern)
	r.Post("/patterns/learn", h.Learn)
	r.Post("/patterns/feedback", h.BulkFeedback)
	r.Post("/patterns/maintain", h.Maintain)
	r.Get("/patterns/{id}", h.GetPattern)
	r.Delete("/patterns/{id}", h.DeletePattern)
	r.Post("/patterns/{id}/feedback", h.Feedback)

	// Search.
	r.Get("/search", h.Search)
	r.Get("/search/suggestions", h.Suggestions)
	r.Get("/searches", h.ListSavedSearches)
	r.Post("/searches", h.SaveSearch)
	r.Delete("/searches/{id}", h.DeleteSavedSearch)
	r.Post("/searches/{id}/run", h.RunSavedSearch)
	r.Post("/index/rebuild", h.RebuildIndex)

	// Records.
	r.Get("/records/{type}", h.ListRecords)
	r.Post("/records/{type}", h.CreateRecord)
	r.Get("/records/{type}/{id}", h.GetRecord)
	r.Put("/records/{type}/{id}", h.PutRecord)
	r.Delete("/records/{type}/{id}", h.DeleteRecord)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
