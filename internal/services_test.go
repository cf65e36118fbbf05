package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/casekit/internal/detector"
	"github.com/starford/casekit/internal/search"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "casekit.db")
	return cfg
}

func testServices(t *testing.T, cfg *Config) *Services {
	t.Helper()
	svc, err := NewServices(cfg, NewLogger(io.Discard, 0), nil)
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestNewServices_RecordsFeedSearchAndAnalysis(t *testing.T) {
	ctx := context.Background()
	svc := testServices(t, testConfig(t))
	if got := svc.Intel.CaseType(); got != "case" {
		t.Fatalf("case type = %q, want case", got)
	}

	body := `{"id":"c-1","title":"Checkout fails","description":"database timeout on checkout page"}`
	if _, err := svc.Records.Create(ctx, "case", json.RawMessage(body)); err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := svc.Search.Search(ctx, search.Query{Text: "checkout timeout"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Stats.Total != 1 || resp.Results[0].EntityID != "c-1" {
		t.Fatalf("search results = %+v", resp.Results)
	}

	res := svc.Intel.Analyze(ctx, "Checkout fails\ndatabase timeout on checkout page", detector.SourceClipboard)
	if !res.Metadata.IsDuplicate {
		t.Error("analysis of a stored case should be a duplicate")
	}
}

func TestNewServices_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	svc := testServices(t, cfg)
	if svc.Metrics != nil {
		t.Fatal("metrics should be nil when disabled")
	}

	rec := httptest.NewRecorder()
	NewHTTPHandler(cfg, svc, nil, NewLogger(io.Discard, 0)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/metrics status = %d, want 404", rec.Code)
	}
}

func TestServices_ImportSeeds(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	// Missing file is not an error.
	cfg.Intel.SeedFile = filepath.Join(t.TempDir(), "absent.yaml")
	svc := testServices(t, cfg)
	if err := svc.ImportSeeds(ctx); err != nil {
		t.Fatalf("missing seed file: %v", err)
	}

	path := filepath.Join(t.TempDir(), "seeds.yaml")
	seeds := "patterns:\n  - id: s-login\n    pattern: login password\n    category: access\n    confidence: 0.8\n"
	if err := os.WriteFile(path, []byte(seeds), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Intel.SeedFile = path
	if err := svc.ImportSeeds(ctx); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := svc.Patterns.Get(ctx, "s-login"); err != nil {
		t.Fatalf("seed not imported: %v", err)
	}

	if err := os.WriteFile(path, []byte("patterns: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := svc.ImportSeeds(ctx); err == nil {
		t.Fatal("malformed seed file should fail")
	}
}

func TestNewHTTPHandler_Routes(t *testing.T) {
	cfg := testConfig(t)
	svc := testServices(t, cfg)
	h := NewHTTPHandler(cfg, svc, nil, NewLogger(io.Discard, 0))

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"content":"Case #12345678"}`))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `casekit_analyses_total{content_type="case_number"} 1`) {
		t.Errorf("analysis not counted:\n%s", rec.Body.String())
	}
}
