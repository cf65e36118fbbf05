package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/casekit/internal/search"
)

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseTime(q url.Values, key string) (*time.Time, bool) {
	v := q.Get(key)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func pageParams(q url.Values) (limit, offset int) {
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}

// Search handles GET /api/search.
//
//	@Summary		Ranked search across indexed records
//	@Tags			search
//	@Produce		json
//	@Param			q				query		string	false	"Query text"
//	@Param			types			query		string	false	"Comma-separated entity types"
//	@Param			tags			query		string	false	"Comma-separated tags, all required"
//	@Param			updated_after	query		string	false	"RFC 3339 lower bound"
//	@Param			updated_before	query		string	false	"RFC 3339 upper bound"
//	@Param			sort			query		string	false	"Sort field"	Enums(relevance, title, date)
//	@Param			order			query		string	false	"Sort order"	Enums(asc, desc)
//	@Param			limit			query		int		false	"Page size"
//	@Param			offset			query		int		false	"Page offset"
//	@Success		200				{object}	search.Response
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, ok := parseTime(q, "updated_after")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("updated_after must be RFC 3339"))
		return
	}
	before, ok := parseTime(q, "updated_before")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("updated_before must be RFC 3339"))
		return
	}
	limit, offset := pageParams(q)

	start := time.Now()
	resp, err := h.search.Search(r.Context(), search.Query{
		Text: q.Get("q"),
		Filters: search.Filters{
			EntityTypes:   splitList(q.Get("types")),
			Tags:          splitList(q.Get("tags")),
			UpdatedAfter:  after,
			UpdatedBefore: before,
		},
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeError(w, h.logger, "search", err)
		return
	}
	h.metrics.ObserveSearch(time.Since(start), resp.Stats.Total)
	writeJSON(w, http.StatusOK, resp)
}

// Suggestions handles GET /api/search/suggestions.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	out, err := h.search.Suggestions(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, "search suggestions", err)
		return
	}
	writeJSON(w, http.StatusOK, QuerySuggestionsResponse{Suggestions: out})
}

// ListSavedSearches handles GET /api/searches.
func (h *Handler) ListSavedSearches(w http.ResponseWriter, r *http.Request) {
	all, err := h.search.SavedSearches(r.Context())
	if err != nil {
		writeError(w, h.logger, "list saved searches", err)
		return
	}
	if all == nil {
		all = []search.SavedSearch{}
	}
	writeJSON(w, http.StatusOK, SavedSearchListResponse{Searches: all})
}

// SaveSearch handles POST /api/searches.
//
//	@Summary		Save a named query
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveSearchRequest	true	"Saved search"
//	@Success		201		{object}	search.SavedSearch
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/searches [post]
func (h *Handler) SaveSearch(w http.ResponseWriter, r *http.Request) {
	var req SaveSearchRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	s, err := h.search.SaveSearch(r.Context(), req.Name, req.Query, req.Filters)
	if err != nil {
		writeError(w, h.logger, "save search", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// DeleteSavedSearch handles DELETE /api/searches/{id}.
func (h *Handler) DeleteSavedSearch(w http.ResponseWriter, r *http.Request) {
	if err := h.search.DeleteSavedSearch(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, "delete saved search", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunSavedSearch handles POST /api/searches/{id}/run.
func (h *Handler) RunSavedSearch(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r.URL.Query())
	start := time.Now()
	resp, err := h.search.RunSavedSearch(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, h.logger, "run saved search", err)
		return
	}
	h.metrics.ObserveSearch(time.Since(start), resp.Stats.Total)
	writeJSON(w, http.StatusOK, resp)
}

// RebuildIndex handles POST /api/index/rebuild.
//
//	@Summary		Clear and rebuild the search index from stored records
//	@Tags			search
//	@Produce		json
//	@Success		200	{object}	search.RebuildReport
//	@Security		BearerAuth
//	@Router			/index/rebuild [post]
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	report, err := h.search.RebuildAll(r.Context())
	if err != nil {
		writeError(w, h.logger, "rebuild index", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
