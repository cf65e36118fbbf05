package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/casekit/internal/events"
	"github.com/starford/casekit/internal/fingerprint"
	"github.com/starford/casekit/internal/intel"
	"github.com/starford/casekit/internal/patterns"
	"github.com/starford/casekit/internal/search"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Intel   IntelConfig       `yaml:"intel"`
	Search  SearchConfig      `yaml:"search"`
	Metrics MetricsConfig     `yaml:"metrics"`
	Events  EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Intel.Validate(); err != nil {
		return fmt.Errorf("intel: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return c.Events.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// IntelConfig tunes the analysis pipeline and the learned patterns.
//
// Cases names the record type analyses are compared against when looking
// for similar and duplicate content. SeedFile, when set, is imported at
// startup and re-imported whenever it changes.
type IntelConfig struct {
	SimilarThreshold     float64       `yaml:"similar_threshold"`
	DuplicateThreshold   float64       `yaml:"duplicate_threshold"`
	MaxSimilar           int           `yaml:"max_similar"`
	Cases                search.Source `yaml:"cases"`
	LearningRate         float64       `yaml:"learning_rate"`
	MinPatternConfidence float64       `yaml:"min_pattern_confidence"`
	CleanupThreshold     float64       `yaml:"cleanup_threshold"`
	MergeThreshold       float64       `yaml:"merge_threshold"`
	SeedFile             string        `yaml:"seed_file"`
	WatchSeeds           bool          `yaml:"watch_seeds"`
}

// Validate validates the intel configuration.
func (c *IntelConfig) Validate() error {
	unit := []validation.Rule{validation.Min(0.0), validation.Max(1.0)}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.SimilarThreshold, unit...),
		validation.Field(&c.DuplicateThreshold, unit...),
		validation.Field(&c.MaxSimilar, validation.Min(0)),
		validation.Field(&c.Cases),
		validation.Field(&c.LearningRate, unit...),
		validation.Field(&c.MinPatternConfidence, unit...),
		validation.Field(&c.CleanupThreshold, unit...),
		validation.Field(&c.MergeThreshold, unit...),
	); err != nil {
		return err
	}
	if c.DuplicateThreshold > 0 && c.DuplicateThreshold < c.SimilarThreshold {
		return fmt.Errorf("duplicate_threshold %.2f is below similar_threshold %.2f",
			c.DuplicateThreshold, c.SimilarThreshold)
	}
	return nil
}

// FingerprintOptions returns the similarity thresholds.
func (c *IntelConfig) FingerprintOptions() fingerprint.Options {
	return fingerprint.Options{
		SimilarThreshold:   c.SimilarThreshold,
		DuplicateThreshold: c.DuplicateThreshold,
	}
}

// PatternOptions returns the pattern engine tuning.
func (c *IntelConfig) PatternOptions() patterns.Options {
	return patterns.Options{
		LearningRate:     c.LearningRate,
		MinConfidence:    c.MinPatternConfidence,
		CleanupThreshold: c.CleanupThreshold,
		MergeThreshold:   c.MergeThreshold,
	}
}

// ServiceOptions returns the pipeline options.
func (c *IntelConfig) ServiceOptions() intel.Options {
	return intel.Options{
		Cases:       c.Cases,
		Fingerprint: c.FingerprintOptions(),
		MaxSimilar:  c.MaxSimilar,
	}
}

// SearchConfig declares the indexed record types and ranking tuning.
type SearchConfig struct {
	Sources       []search.Source `yaml:"sources"`
	MinRelevance  float64         `yaml:"min_relevance"`
	RecencyWindow time.Duration   `yaml:"recency_window"`
	DefaultLimit  int             `yaml:"default_limit"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Sources),
		validation.Field(&c.MinRelevance, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.RecencyWindow, validation.Min(time.Duration(0))),
		validation.Field(&c.DefaultLimit, validation.Min(0), validation.Max(search.MaxLimit)),
	); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, src := range c.Sources {
		if _, dup := seen[src.Type]; dup {
			return fmt.Errorf("source %q is declared twice", src.Type)
		}
		seen[src.Type] = struct{}{}
	}
	return nil
}

// EngineOptions returns the search engine options.
func (c *SearchConfig) EngineOptions() search.Options {
	return search.Options{
		Sources:       c.Sources,
		MinRelevance:  c.MinRelevance,
		RecencyWindow: c.RecencyWindow,
		DefaultLimit:  c.DefaultLimit,
	}
}

// MetricsConfig toggles Prometheus instrumentation and the /metrics route.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EventsConfig tunes the server-sent event stream.
type EventsConfig struct {
	IndexThrottle time.Duration `yaml:"index_throttle"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IndexThrottle, validation.Min(time.Duration(0))),
		validation.Field(&c.Heartbeat, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	caseSource := search.Source{
		Type:       "case",
		IDField:    "id",
		TitleField: "title",
		BodyFields: []string{"description", "body"},
		TagsField:  "tags",
	}
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./casekit.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Intel: IntelConfig{
			SimilarThreshold:     fingerprint.DefaultSimilarThreshold,
			DuplicateThreshold:   fingerprint.DefaultDuplicateThreshold,
			MaxSimilar:           intel.DefaultMaxSimilar,
			Cases:                caseSource,
			LearningRate:         patterns.DefaultLearningRate,
			MinPatternConfidence: patterns.DefaultMinConfidence,
			CleanupThreshold:     patterns.DefaultCleanupThreshold,
			MergeThreshold:       patterns.DefaultMergeThreshold,
			WatchSeeds:           true,
		},
		Search: SearchConfig{
			Sources:       []search.Source{caseSource},
			MinRelevance:  search.DefaultMinRelevance,
			RecencyWindow: search.DefaultRecencyWindow,
			DefaultLimit:  search.DefaultLimit,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Events: EventsConfig{
			IndexThrottle: events.DefaultIndexThrottle,
			Heartbeat:     events.DefaultHeartbeatInterval,
		},
	}
}
