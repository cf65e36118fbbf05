package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/casekit/internal/apperr"
	"github.com/starford/casekit/internal/store"
)

// SavedSearch is a named query kept for reuse.
type SavedSearch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Query     string    `json:"query"`
	Filters   Filters   `json:"filters"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	UseCount  int       `json:"use_count"`
}

// SaveSearch stores a named query.
func (e *Engine) SaveSearch(ctx context.Context, name, query string, filters Filters) (*SavedSearch, error) {
	const op = "search: save"
	name = strings.TrimSpace(name)
	query = strings.TrimSpace(query)
	if name == "" {
		return nil, apperr.Validation(op, "name is required")
	}
	if query == "" && filters.Empty() {
		return nil, apperr.Validation(op, "query text or filters are required")
	}
	s := SavedSearch{
		ID:        uuid.NewString(),
		Name:      name,
		Query:     query,
		Filters:   filters,
		CreatedAt: e.now().UTC(),
	}
	if err := store.PutAs(ctx, e.store, SavedSearchEntityType, s.ID, s); err != nil {
		return nil, apperr.Database(op, err)
	}
	return &s, nil
}

// SavedSearches lists saved searches, most recently used first. Searches
// never run sort by creation time.
func (e *Engine) SavedSearches(ctx context.Context) ([]SavedSearch, error) {
	all, _, err := store.AllAs[SavedSearch](ctx, e.store, SavedSearchEntityType)
	if err != nil {
		return nil, apperr.Database("search: list saved", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := lastTouched(all[i]), lastTouched(all[j])
		if !a.Equal(b) {
			return a.After(b)
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}

func lastTouched(s SavedSearch) time.Time {
	if s.LastUsed.IsZero() {
		return s.CreatedAt
	}
	return s.LastUsed
}

// DeleteSavedSearch removes a saved search.
func (e *Engine) DeleteSavedSearch(ctx context.Context, id string) error {
	const op = "search: delete saved"
	if _, err := e.store.Get(ctx, SavedSearchEntityType, id); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.NotFound(op, "saved search "+id)
		}
		return apperr.Database(op, err)
	}
	if err := e.store.DeleteOne(ctx, SavedSearchEntityType, id); err != nil {
		return apperr.Database(op, err)
	}
	return nil
}

// RunSavedSearch records a use of the saved search and executes it.
func (e *Engine) RunSavedSearch(ctx context.Context, id string, limit, offset int) (*Response, error) {
	const op = "search: run saved"
	e.mu.Lock()
	s, err := store.GetAs[SavedSearch](ctx, e.store, SavedSearchEntityType, id)
	if err != nil {
		e.mu.Unlock()
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound(op, "saved search "+id)
		}
		return nil, apperr.Database(op, err)
	}
	s.UseCount++
	s.LastUsed = e.now().UTC()
	err = store.PutAs(ctx, e.store, SavedSearchEntityType, s.ID, *s)
	e.mu.Unlock()
	if err != nil {
		return nil, apperr.Database(op, err)
	}
	return e.Search(ctx, Query{Text: s.Query, Filters: s.Filters, Limit: limit, Offset: offset})
}
