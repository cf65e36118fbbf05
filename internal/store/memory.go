package store

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"

	"github.com/starford/casekit/internal/apperr"
)

// Memory is a map-backed Store for tests and ephemeral runs.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]json.RawMessage
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]json.RawMessage)}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Get(_ context.Context, typ, id string) (json.RawMessage, error) {
	const op = "store: get"
	if err := validateKey(op, typ, id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[typ][id]
	if !ok {
		return nil, apperr.NotFound(op, typ+" "+id)
	}
	return clone(doc), nil
}

func (m *Memory) Put(_ context.Context, typ, id string, doc json.RawMessage) error {
	const op = "store: put"
	if err := validateKey(op, typ, id); err != nil {
		return err
	}
	if !json.Valid(doc) {
		return apperr.Validation(op, "document for %s %s is not valid JSON", typ, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[typ] == nil {
		m.docs[typ] = make(map[string]json.RawMessage)
	}
	m.docs[typ][id] = clone(doc)
	return nil
}

func (m *Memory) DeleteOne(_ context.Context, typ, id string) error {
	const op = "store: delete"
	if err := validateKey(op, typ, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[typ], id)
	return nil
}

func (m *Memory) QueryByEquality(_ context.Context, typ, field string, value any) ([]json.RawMessage, error) {
	const op = "store: query"
	if err := validateField(op, field); err != nil {
		return nil, err
	}
	want, err := canonical(value)
	if err != nil {
		return nil, apperr.Validation(op, "unsupported query value: %v", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []json.RawMessage
	for _, id := range sortedIDs(m.docs[typ]) {
		doc := m.docs[typ][id]
		var fields map[string]any
		if err := json.Unmarshal(doc, &fields); err != nil {
			continue
		}
		if got, ok := fields[field]; ok && reflect.DeepEqual(got, want) {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func (m *Memory) BulkDelete(_ context.Context, typ string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := m.docs[typ][id]; ok {
			delete(m.docs[typ], id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) All(_ context.Context, typ string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]json.RawMessage, 0, len(m.docs[typ]))
	for _, id := range sortedIDs(m.docs[typ]) {
		out = append(out, clone(m.docs[typ][id]))
	}
	return out, nil
}

// canonical round-trips v through JSON so it compares equal to decoded
// document fields (numbers become float64).
func canonical(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(raw, &out)
	return out, err
}

func sortedIDs(docs map[string]json.RawMessage) []string {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func clone(doc json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(doc))
	copy(out, doc)
	return out
}
