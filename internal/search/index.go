// Package search maintains a flat search index over stored records and
// ranks it against text queries.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/casekit/internal/apperr"
	"github.com/starford/casekit/internal/store"
)

// Store partitions owned by the search engine.
const (
	IndexEntityType       = "search_index"
	SavedSearchEntityType = "saved_search"
)

// Default tuning values.
const (
	DefaultMinRelevance  = 0.1
	DefaultRecencyWindow = 30 * 24 * time.Hour
	DefaultLimit         = 20
	MaxLimit             = 100
)

// IndexEntry is the searchable projection of one record. There is at most
// one entry per EntityID.
type IndexEntry struct {
	ID         string    `json:"id"`
	EntityID   string    `json:"entity_id"`
	EntityType string    `json:"entity_type"`
	Content    string    `json:"content"`
	Title      string    `json:"title"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Document is the searchable text of a record.
type Document struct {
	Title     string
	Body      string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Source declares which JSON fields of an entity type are searchable.
type Source struct {
	Type       string   `yaml:"type" json:"type"`
	IDField    string   `yaml:"id_field" json:"id_field,omitempty"`
	TitleField string   `yaml:"title_field" json:"title_field"`
	BodyFields []string `yaml:"body_fields" json:"body_fields"`
	TagsField  string   `yaml:"tags_field" json:"tags_field,omitempty"`
}

// Validate checks that the source names a type and at least one text field.
func (s Source) Validate() error {
	if err := validation.ValidateStruct(&s,
		validation.Field(&s.Type, validation.Required),
	); err != nil {
		return err
	}
	if s.TitleField == "" && len(s.BodyFields) == 0 {
		return fmt.Errorf("source %q: title_field or body_fields is required", s.Type)
	}
	return nil
}

// Options tunes an Engine. Zero fields take the defaults.
type Options struct {
	Sources       []Source
	MinRelevance  float64
	RecencyWindow time.Duration
	DefaultLimit  int
}

func (o Options) withDefaults() Options {
	if o.MinRelevance <= 0 {
		o.MinRelevance = DefaultMinRelevance
	}
	if o.RecencyWindow <= 0 {
		o.RecencyWindow = DefaultRecencyWindow
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = DefaultLimit
	}
	o.Sources = append([]Source(nil), o.Sources...)
	for i := range o.Sources {
		if o.Sources[i].IDField == "" {
			o.Sources[i].IDField = "id"
		}
	}
	return o
}

// RebuildReport counts the outcome of RebuildAll.
type RebuildReport struct {
	Cleared int `json:"cleared"`
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
}

// Engine indexes and searches records. Index writes are serialised.
type Engine struct {
	store    store.Store
	logger   *slog.Logger
	opts     Options
	sources  map[string]Source
	mu       sync.Mutex
	now      func() time.Time
	onChange func(kind, entityID string)
}

// NewEngine creates an Engine over s.
func NewEngine(s store.Store, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	sources := make(map[string]Source, len(opts.Sources))
	for _, src := range opts.Sources {
		sources[src.Type] = src
	}
	return &Engine{store: s, logger: logger, opts: opts, sources: sources, now: time.Now}
}

// OnChange registers fn to be called after an entry is indexed ("indexed"),
// removed ("removed") or after a rebuild ("rebuilt", empty id).
func (e *Engine) OnChange(fn func(kind, entityID string)) {
	e.onChange = fn
}

func (e *Engine) notify(kind, id string) {
	if e.onChange != nil {
		e.onChange(kind, id)
	}
}

// Indexable reports whether entityType has a configured source.
func (e *Engine) Indexable(entityType string) bool {
	_, ok := e.sources[entityType]
	return ok
}

// IndexEntity replaces the index entry of entityID with a fresh one built
// from doc.
func (e *Engine) IndexEntity(ctx context.Context, entityID, entityType string, doc Document) (*IndexEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.indexLocked(ctx, entityID, entityType, doc)
	if err != nil {
		return nil, err
	}
	e.notify("indexed", entityID)
	return entry, nil
}

func (e *Engine) indexLocked(ctx context.Context, entityID, entityType string, doc Document) (*IndexEntry, error) {
	const op = "search: index"
	if entityID == "" || entityType == "" {
		return nil, apperr.Validation(op, "entity id and type are required")
	}
	owner, err := e.ownerLocked(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if owner != "" && owner != entityType {
		return nil, apperr.Conflict(op, fmt.Sprintf("id %s is already indexed for %s", entityID, owner))
	}
	now := e.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	tags := nonNil(doc.Tags)
	entry := IndexEntry{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		EntityType: entityType,
		Content:    strings.ToLower(strings.Join([]string{doc.Title, doc.Body, strings.Join(tags, " ")}, " ")),
		Title:      doc.Title,
		Tags:       tags,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	if err := e.store.DeleteOne(ctx, IndexEntityType, entityID); err != nil {
		return nil, apperr.Database(op, err)
	}
	if err := store.PutAs(ctx, e.store, IndexEntityType, entityID, entry); err != nil {
		return nil, apperr.Database(op, err)
	}
	return &entry, nil
}

// IndexRecord indexes a raw record using the source declared for its type.
// Types without a source are ignored and reported as not indexed.
func (e *Engine) IndexRecord(ctx context.Context, entityType, entityID string, raw json.RawMessage) (bool, error) {
	src, ok := e.sources[entityType]
	if !ok {
		return false, nil
	}
	doc, err := src.Document(raw)
	if err != nil {
		return false, err
	}
	if _, err := e.IndexEntity(ctx, entityID, entityType, doc); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveFromIndex deletes the entry of entityID. A missing entry is not an
// error.
func (e *Engine) RemoveFromIndex(ctx context.Context, entityID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.DeleteOne(ctx, IndexEntityType, entityID); err != nil {
		return apperr.Database("search: remove", err)
	}
	e.notify("removed", entityID)
	return nil
}

// RemoveEntity deletes the entry of entityID only when it was indexed for
// entityType. It reports whether an entry was removed.
func (e *Engine) RemoveEntity(ctx context.Context, entityType, entityID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	owner, err := e.ownerLocked(ctx, entityID)
	if err != nil || owner != entityType {
		return false, err
	}
	if err := e.store.DeleteOne(ctx, IndexEntityType, entityID); err != nil {
		return false, apperr.Database("search: remove", err)
	}
	e.notify("removed", entityID)
	return true, nil
}

// IndexedType returns the entity type whose record owns the entry of
// entityID, or "" when nothing is indexed under that id.
func (e *Engine) IndexedType(ctx context.Context, entityID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownerLocked(ctx, entityID)
}

func (e *Engine) ownerLocked(ctx context.Context, entityID string) (string, error) {
	en, err := store.GetAs[IndexEntry](ctx, e.store, IndexEntityType, entityID)
	switch {
	case err == nil:
		return en.EntityType, nil
	case apperr.KindOf(err) == apperr.KindNotFound:
		return "", nil
	default:
		return "", apperr.Database("search: lookup", err)
	}
}

// RebuildAll clears the index and re-indexes every record of every source
// type. Records that cannot be indexed are skipped and counted.
func (e *Engine) RebuildAll(ctx context.Context) (RebuildReport, error) {
	const op = "search: rebuild"
	e.mu.Lock()
	defer e.mu.Unlock()

	var report RebuildReport
	entries, err := e.entries(ctx)
	if err != nil {
		return report, err
	}
	if len(entries) > 0 {
		ids := make([]string, 0, len(entries))
		for _, en := range entries {
			ids = append(ids, en.EntityID)
		}
		n, err := e.store.BulkDelete(ctx, IndexEntityType, ids)
		if err != nil {
			return report, apperr.Database(op, err)
		}
		report.Cleared = n
	}

	for _, src := range e.opts.Sources {
		records, err := e.store.All(ctx, src.Type)
		if err != nil {
			return report, apperr.Database(op, err)
		}
		for _, raw := range records {
			id, doc, err := src.Extract(raw)
			if err == nil {
				_, err = e.indexLocked(ctx, id, src.Type, doc)
			}
			if err != nil {
				e.logger.Warn("search: rebuild skipped record",
					slog.String("type", src.Type),
					slog.String("error", err.Error()))
				report.Skipped++
				continue
			}
			report.Indexed++
		}
	}
	e.logger.Info("search: index rebuilt",
		slog.Int("cleared", report.Cleared),
		slog.Int("indexed", report.Indexed),
		slog.Int("skipped", report.Skipped))
	e.notify("rebuilt", "")
	return report, nil
}

// Size returns the number of index entries.
func (e *Engine) Size(ctx context.Context) (int, error) {
	raws, err := e.store.All(ctx, IndexEntityType)
	if err != nil {
		return 0, apperr.Database("search: size", err)
	}
	return len(raws), nil
}

func (e *Engine) entries(ctx context.Context) ([]IndexEntry, error) {
	entries, skipped, err := store.AllAs[IndexEntry](ctx, e.store, IndexEntityType)
	if err != nil {
		return nil, apperr.Database("search: load index", err)
	}
	if skipped > 0 {
		e.logger.Warn("search: undecodable index entries skipped", slog.Int("count", skipped))
	}
	return entries, nil
}

// Document extracts the searchable text of raw according to the source.
func (s Source) Document(raw json.RawMessage) (Document, error) {
	fields, err := s.decode(raw)
	if err != nil {
		return Document{}, err
	}
	return s.document(fields), nil
}

// Extract returns the record id along with its document.
func (s Source) Extract(raw json.RawMessage) (string, Document, error) {
	fields, err := s.decode(raw)
	if err != nil {
		return "", Document{}, err
	}
	idField := s.IDField
	if idField == "" {
		idField = "id"
	}
	id := stringField(fields, idField)
	if id == "" {
		return "", Document{}, apperr.Validation("search: extract "+s.Type, "record is missing id field %q", idField)
	}
	return id, s.document(fields), nil
}

func (s Source) decode(raw json.RawMessage) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperr.Validation("search: extract "+s.Type, "record is not a JSON object: %v", err)
	}
	return fields, nil
}

func (s Source) document(fields map[string]any) Document {
	doc := Document{
		Title:     stringField(fields, s.TitleField),
		CreatedAt: timeField(fields, "created_at"),
		UpdatedAt: timeField(fields, "updated_at"),
	}
	var body []string
	for _, f := range s.BodyFields {
		if v := stringField(fields, f); v != "" {
			body = append(body, v)
		}
	}
	doc.Body = strings.Join(body, " ")
	if s.TagsField != "" {
		doc.Tags = tagsField(fields, s.TagsField)
	}
	return doc
}

func stringField(fields map[string]any, name string) string {
	if name == "" {
		return ""
	}
	switch v := fields[name].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func tagsField(fields map[string]any, name string) []string {
	switch v := fields[name].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		var out []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
		return out
	default:
		return nil
	}
}

func timeField(fields map[string]any, name string) time.Time {
	s, ok := fields[name].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
