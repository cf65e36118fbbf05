// Package store defines the entity store collaborator the pipeline persists
// through, with SQLite and in-memory implementations.
package store

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/starford/casekit/internal/apperr"
)

// Store is a keyed document store partitioned by entity type. Documents are
// JSON objects; QueryByEquality matches a top-level field.
//
// Get returns an apperr NotFound error when the record is absent. DeleteOne
// of an absent record is not an error.
type Store interface {
	Get(ctx context.Context, typ, id string) (json.RawMessage, error)
	Put(ctx context.Context, typ, id string, doc json.RawMessage) error
	DeleteOne(ctx context.Context, typ, id string) error
	QueryByEquality(ctx context.Context, typ, field string, value any) ([]json.RawMessage, error)
	BulkDelete(ctx context.Context, typ string, ids []string) (int, error)
	All(ctx context.Context, typ string) ([]json.RawMessage, error)
	Close() error
}

var fieldRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateKey(op, typ, id string) error {
	if typ == "" {
		return apperr.Validation(op, "entity type is required")
	}
	if id == "" {
		return apperr.Validation(op, "id is required")
	}
	return nil
}

func validateField(op, field string) error {
	if !fieldRe.MatchString(field) {
		return apperr.Validation(op, "invalid field name %q", field)
	}
	return nil
}

// GetAs loads the record typ/id and decodes it into T.
func GetAs[T any](ctx context.Context, s Store, typ, id string) (*T, error) {
	raw, err := s.Get(ctx, typ, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apperr.Database("store: decode "+typ, err)
	}
	return &v, nil
}

// PutAs encodes v and stores it under typ/id.
func PutAs[T any](ctx context.Context, s Store, typ, id string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return apperr.Validation("store: encode "+typ, "%v", err)
	}
	return s.Put(ctx, typ, id, raw)
}

// AllAs decodes every record of typ. Records that fail to decode are
// skipped; the second return value counts them.
func AllAs[T any](ctx context.Context, s Store, typ string) ([]T, int, error) {
	raws, err := s.All(ctx, typ)
	if err != nil {
		return nil, 0, err
	}
	return decodeAll[T](raws)
}

// QueryAs decodes every record of typ whose field equals value.
func QueryAs[T any](ctx context.Context, s Store, typ, field string, value any) ([]T, int, error) {
	raws, err := s.QueryByEquality(ctx, typ, field, value)
	if err != nil {
		return nil, 0, err
	}
	return decodeAll[T](raws)
}

func decodeAll[T any](raws []json.RawMessage) ([]T, int, error) {
	out := make([]T, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped, nil
}
