// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/casekit/internal/api"
	"github.com/starford/casekit/internal/events"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = NewLogger(os.Stdout, cfg.App.LogLevel)
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("search_sources", len(cfg.Search.Sources)),
		slog.Bool("metrics", cfg.Metrics.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := events.NewBroker(cfg.Events.IndexThrottle,
		events.WithHeartbeatInterval(cfg.Events.Heartbeat))
	defer broker.Close()

	svc, err := NewServices(cfg, logger, broker)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.ImportSeeds(ctx); err != nil {
		return err
	}
	logger.Info("Services ready",
		slog.String("case_type", svc.Intel.CaseType()),
		slog.Bool("seed_watch", cfg.Intel.SeedFile != "" && cfg.Intel.WatchSeeds))

	r := NewHTTPHandler(cfg, svc, broker, logger)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("version", app.version))

	g, gCtx := errgroup.WithContext(ctx)

	// Re-import seed patterns on change.
	if cfg.Intel.SeedFile != "" && cfg.Intel.WatchSeeds {
		g.Go(func() error {
			if err := svc.Patterns.WatchSeeds(gCtx, cfg.Intel.SeedFile); err != nil {
				logger.Warn("seed watcher unavailable", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams only end when their clients go away or the broker stops.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so that the seed watcher stops with the
// server.
var errShutdown = errors.New("shutdown")

// NewHTTPHandler builds the root router: health checks, the API under /api
// and, when enabled, Prometheus metrics.
func NewHTTPHandler(cfg *Config, svc *Services, broker *events.Broker, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.Search.Size(req.Context()); err != nil {
			logger.Error("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if svc.Metrics != nil {
		r.Handle("/metrics", svc.Metrics.Handler())
	}

	var sse http.Handler
	if broker != nil {
		sse = broker
	}
	r.Mount("/api", api.NewRouter(api.Deps{
		Intel:   svc.Intel,
		Search:  svc.Search,
		Records: svc.Records,
		Metrics: svc.Metrics,
		Logger:  logger,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token, sse))

	return r
}
