// Package records stores arbitrary JSON records by type and keeps the
// search index in step with every write.
package records

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/casekit/internal/apperr"
	"github.com/starford/casekit/internal/checksum"
	"github.com/starford/casekit/internal/patterns"
	"github.com/starford/casekit/internal/search"
	"github.com/starford/casekit/internal/store"
)

// Event kinds passed to Notifier.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// List orderings.
const (
	SortUpdated = "updated"
	SortID      = "id"
)

var typeRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// reserved entity types are owned by the pipeline itself.
var reserved = []any{patterns.EntityType, search.IndexEntityType, search.SavedSearchEntityType}

// Indexer keeps the search index consistent with records.
type Indexer interface {
	Indexable(entityType string) bool
	IndexedType(ctx context.Context, entityID string) (string, error)
	IndexRecord(ctx context.Context, entityType, entityID string, raw json.RawMessage) (bool, error)
	RemoveEntity(ctx context.Context, entityType, entityID string) (bool, error)
}

// Notifier is told about every record change.
type Notifier interface {
	PublishRecordEvent(kind, entityType, id string)
}

// Record is a stored JSON object with its identity.
type Record struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	Checksum string          `json:"checksum"`
	Data     json.RawMessage `json:"data"`
}

// Service coordinates the store, the index and change notifications.
type Service struct {
	store    store.Store
	index    Indexer
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service. notifier may be nil.
func NewService(s store.Store, idx Indexer, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, index: idx, notifier: notifier, logger: logger, now: time.Now}
}

func validateType(op, typ string) error {
	err := validation.Validate(typ,
		validation.Required,
		validation.Match(typeRe).Error("must be lowercase letters, digits and underscores"),
		validation.NotIn(reserved...).Error("is reserved"),
	)
	if err != nil {
		return apperr.Validation(op, "record type %q: %v", typ, err)
	}
	return nil
}

// Get loads one record.
func (s *Service) Get(ctx context.Context, typ, id string) (*Record, error) {
	const op = "records: get"
	if err := validateType(op, typ); err != nil {
		return nil, err
	}
	raw, err := s.store.Get(ctx, typ, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound(op, typ+"/"+id)
		}
		return nil, apperr.Database(op, err)
	}
	return newRecord(typ, id, raw), nil
}

// Create stores a new record. The id comes from the "id" field of data or
// is generated. An existing record with that id is a conflict.
func (s *Service) Create(ctx context.Context, typ string, data json.RawMessage) (*Record, error) {
	const op = "records: create"
	if err := validateType(op, typ); err != nil {
		return nil, err
	}
	fields, err := decode(op, data)
	if err != nil {
		return nil, err
	}
	id, _ := fields["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := s.store.Get(ctx, typ, id); err == nil {
		return nil, apperr.AlreadyExists(op, typ+"/"+id)
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, apperr.Database(op, err)
	}
	if err := s.checkIndexOwner(ctx, op, typ, id); err != nil {
		return nil, err
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	fields["id"] = id
	fields["created_at"] = now
	fields["updated_at"] = now
	return s.write(ctx, op, typ, id, fields, EventCreated)
}

// Put creates or replaces typ/id. When ifMatch is set it must equal the
// checksum of the stored record. The original created_at is preserved.
func (s *Service) Put(ctx context.Context, typ, id string, data json.RawMessage, ifMatch string) (*Record, bool, error) {
	const op = "records: put"
	if err := validateType(op, typ); err != nil {
		return nil, false, err
	}
	if id == "" {
		return nil, false, apperr.Validation(op, "id is required")
	}
	fields, err := decode(op, data)
	if err != nil {
		return nil, false, err
	}
	if other, ok := fields["id"].(string); ok && other != "" && other != id {
		return nil, false, apperr.Validation(op, "body id %q does not match %q", other, id)
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	createdAt := now
	kind := EventCreated
	existing, err := s.store.Get(ctx, typ, id)
	switch {
	case err == nil:
		if ifMatch != "" && ifMatch != checksum.Sum(existing) {
			return nil, false, apperr.Conflict(op, "checksum mismatch")
		}
		var prev map[string]any
		if json.Unmarshal(existing, &prev) == nil {
			if c, ok := prev["created_at"].(string); ok && c != "" {
				createdAt = c
			}
		}
		kind = EventUpdated
	case apperr.KindOf(err) == apperr.KindNotFound:
		if ifMatch != "" {
			return nil, false, apperr.NotFound(op, typ+"/"+id)
		}
		if err := s.checkIndexOwner(ctx, op, typ, id); err != nil {
			return nil, false, err
		}
	default:
		return nil, false, apperr.Database(op, err)
	}

	fields["id"] = id
	fields["created_at"] = createdAt
	fields["updated_at"] = now
	rec, err := s.write(ctx, op, typ, id, fields, kind)
	if err != nil {
		return nil, false, err
	}
	return rec, kind == EventCreated, nil
}

// checkIndexOwner rejects an id of an indexed type whose index entry
// already belongs to another type. The index is keyed by id alone.
func (s *Service) checkIndexOwner(ctx context.Context, op, typ, id string) error {
	if !s.index.Indexable(typ) {
		return nil
	}
	owner, err := s.index.IndexedType(ctx, id)
	if err != nil {
		return err
	}
	if owner != "" && owner != typ {
		return apperr.Conflict(op, "id "+id+" is already used by an indexed "+owner)
	}
	return nil
}

func (s *Service) write(ctx context.Context, op, typ, id string, fields map[string]any, kind string) (*Record, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	if err := s.store.Put(ctx, typ, id, raw); err != nil {
		return nil, apperr.Database(op, err)
	}
	if _, err := s.index.IndexRecord(ctx, typ, id, raw); err != nil {
		return nil, err
	}
	s.publish(kind, typ, id)
	return newRecord(typ, id, raw), nil
}

// Delete removes a record and its index entry.
func (s *Service) Delete(ctx context.Context, typ, id string) error {
	const op = "records: delete"
	if err := validateType(op, typ); err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, typ, id); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.NotFound(op, typ+"/"+id)
		}
		return apperr.Database(op, err)
	}
	if err := s.store.DeleteOne(ctx, typ, id); err != nil {
		return apperr.Database(op, err)
	}
	if _, err := s.index.RemoveEntity(ctx, typ, id); err != nil {
		return err
	}
	s.publish(EventDeleted, typ, id)
	return nil
}

// List returns one page of records of typ and the total count. Records are
// ordered by updated_at descending unless sortBy is SortID.
func (s *Service) List(ctx context.Context, typ string, limit, offset int, sortBy string) ([]Record, int, error) {
	const op = "records: list"
	if err := validateType(op, typ); err != nil {
		return nil, 0, err
	}
	raws, err := s.store.All(ctx, typ)
	if err != nil {
		return nil, 0, apperr.Database(op, err)
	}

	type row struct {
		rec     Record
		updated time.Time
	}
	rows := make([]row, 0, len(raws))
	for _, raw := range raws {
		var head struct {
			ID        string `json:"id"`
			UpdatedAt string `json:"updated_at"`
		}
		if err := json.Unmarshal(raw, &head); err != nil || head.ID == "" {
			s.logger.Warn("records: unreadable record skipped", slog.String("type", typ))
			continue
		}
		updated, _ := time.Parse(time.RFC3339Nano, head.UpdatedAt)
		rows = append(rows, row{rec: *newRecord(typ, head.ID, raw), updated: updated})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if sortBy != SortID && !rows[i].updated.Equal(rows[j].updated) {
			return rows[i].updated.After(rows[j].updated)
		}
		return rows[i].rec.ID < rows[j].rec.ID
	})

	total := len(rows)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	out := make([]Record, 0, end-offset)
	for _, r := range rows[offset:end] {
		out = append(out, r.rec)
	}
	return out, total, nil
}

func (s *Service) publish(kind, typ, id string) {
	if s.notifier != nil {
		s.notifier.PublishRecordEvent(kind, typ, id)
	}
}

func decode(op string, data json.RawMessage) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, apperr.Validation(op, "record must be a JSON object")
	}
	return fields, nil
}

func newRecord(typ, id string, raw json.RawMessage) *Record {
	return &Record{Type: typ, ID: id, Checksum: checksum.Sum(raw), Data: raw}
}
