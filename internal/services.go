package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/casekit/internal/events"
	"github.com/starford/casekit/internal/intel"
	"github.com/starford/casekit/internal/metrics"
	"github.com/starford/casekit/internal/patterns"
	"github.com/starford/casekit/internal/records"
	"github.com/starford/casekit/internal/search"
	"github.com/starford/casekit/internal/store"
)

// Services holds the wired components shared by the server and the CLI
// commands.
type Services struct {
	Store    *store.SQLite
	Patterns *patterns.Engine
	Search   *search.Engine
	Intel    *intel.Service
	Records  *records.Service
	Metrics  *metrics.Metrics

	cfg    *Config
	logger *slog.Logger
}

// NewServices opens the store and wires the engines on top of it. broker
// may be nil, in which case change events are not published.
func NewServices(cfg *Config, logger *slog.Logger, broker *events.Broker) (*Services, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := store.OpenSQLite(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	pe := patterns.NewEngine(db, logger, cfg.Intel.PatternOptions())
	se := search.NewEngine(db, logger, cfg.Search.EngineOptions())
	se.OnChange(func(kind, id string) {
		m.IndexOp(kind)
		if broker != nil {
			broker.PublishIndexEvent(kind, id)
		}
	})

	var notifier records.Notifier
	if broker != nil {
		pe.OnChange(broker.PublishPatternEvent)
		notifier = broker
	}

	return &Services{
		Store:    db,
		Patterns: pe,
		Search:   se,
		Intel:    intel.New(db, pe, m, logger, cfg.Intel.ServiceOptions()),
		Records:  records.NewService(db, se, notifier, logger),
		Metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ImportSeeds loads the configured seed file. A missing file is logged and
// skipped; a malformed one is an error.
func (s *Services) ImportSeeds(ctx context.Context) error {
	path := s.cfg.Intel.SeedFile
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("seed file not found", slog.String("path", path))
		return nil
	}
	report, err := s.Patterns.ImportSeedFile(ctx, path)
	if err != nil {
		return fmt.Errorf("import seeds: %w", err)
	}
	s.logger.Info("Seed patterns imported",
		slog.String("path", path),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("invalid", report.Invalid))
	return nil
}

// Close releases the store.
func (s *Services) Close() error {
	return s.Store.Close()
}
