package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/starford/casekit/internal/apperr"
	"github.com/starford/casekit/internal/store"
)

const seedDebounce = 200 * time.Millisecond

// seedNamespace derives stable ids for seeds that do not declare one.
var seedNamespace = uuid.MustParse("6f1c3a52-2d4e-4c53-9a7e-5b0f3d1c8e21")

// Seed is one operator-defined pattern in a seed file.
type Seed struct {
	ID         string   `yaml:"id"`
	Pattern    string   `yaml:"pattern"`
	Type       Type     `yaml:"type"`
	Category   string   `yaml:"category"`
	Confidence float64  `yaml:"confidence"`
	Examples   []string `yaml:"examples"`
}

type seedFile struct {
	Patterns []Seed `yaml:"patterns"`
}

// SeedReport counts the outcome of a seed import.
type SeedReport struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Invalid   int `json:"invalid"`
}

// LoadSeeds reads a YAML seed file.
func LoadSeeds(path string) ([]Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("patterns: read seeds %s: %w", path, err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("patterns: parse seeds %s: %w", path, err)
	}
	return f.Patterns, nil
}

func (s Seed) id() string {
	if s.ID != "" {
		return s.ID
	}
	key := string(s.Type) + "\x00" + s.Category + "\x00" + s.Pattern
	return uuid.NewSHA1(seedNamespace, []byte(key)).String()
}

// ImportSeeds upserts seeds. A seed that already exists keeps its learned
// success rate and examples; only its definition is refreshed. Invalid
// seeds are skipped and counted.
func (e *Engine) ImportSeeds(ctx context.Context, seeds []Seed) (SeedReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var report SeedReport
	now := e.now().UTC()
	for _, s := range seeds {
		if s.Type == "" {
			s.Type = TypeKeyword
		}
		p := ContentPattern{
			ID:          s.id(),
			Pattern:     s.Pattern,
			PatternType: s.Type,
			Category:    s.Category,
			Confidence:  s.Confidence,
			Examples:    nonNilExamples(s.Examples),
			SuccessRate: 1.0,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := p.Validate(); err != nil {
			e.logger.Warn("patterns: invalid seed skipped", slog.String("id", p.ID), slog.String("error", err.Error()))
			report.Invalid++
			continue
		}

		existing, err := store.GetAs[ContentPattern](ctx, e.store, EntityType, p.ID)
		switch {
		case err == nil:
			if existing.Pattern == p.Pattern && existing.PatternType == p.PatternType &&
				existing.Category == p.Category && existing.Confidence == p.Confidence {
				report.Unchanged++
				continue
			}
			existing.Pattern = p.Pattern
			existing.PatternType = p.PatternType
			existing.Category = p.Category
			existing.Confidence = p.Confidence
			existing.UpdatedAt = now
			p = *existing
			report.Updated++
		case apperr.KindOf(err) == apperr.KindNotFound:
			report.Created++
		default:
			return report, apperr.Database("patterns: import seeds", err)
		}
		if err := store.PutAs(ctx, e.store, EntityType, p.ID, p); err != nil {
			return report, apperr.Database("patterns: import seeds", err)
		}
	}
	e.logger.Info("patterns: seeds imported",
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("invalid", report.Invalid))
	if report.Created+report.Updated > 0 {
		e.notify(ChangeUpdated, "")
	}
	return report, nil
}

// ImportSeedFile loads and imports the seed file at path.
func (e *Engine) ImportSeedFile(ctx context.Context, path string) (SeedReport, error) {
	seeds, err := LoadSeeds(path)
	if err != nil {
		return SeedReport{}, err
	}
	return e.ImportSeeds(ctx, seeds)
}

// WatchSeeds re-imports the seed file whenever it changes, until ctx is
// cancelled. The parent directory is watched so that editors replacing the
// file are noticed. Bursts of events are debounced.
func (e *Engine) WatchSeeds(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	e.logger.Info("seed watcher: started", slog.String("path", abs))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(seedDebounce)
			fire = timer.C
		} else {
			timer.Reset(seedDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			e.logger.Info("seed watcher: stopped")
			return nil

		case <-fire:
			if _, err := e.ImportSeedFile(ctx, abs); err != nil {
				e.logger.Warn("seed watcher: import failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.logger.Error("seed watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func nonNilExamples(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ex := range in {
		out = appendExample(out, clipExample(ex), maxExamples)
	}
	return out
}
