package patterns

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/casekit/internal/store"
)

const seedYAML = `patterns:
  - id: seed-login
    pattern: login password
    category: access
    confidence: 0.8
  - pattern: 'timed?\s*out'
    type: regex
    category: performance
    confidence: 0.7
  - pattern: '(['
    type: regex
    category: broken
    confidence: 0.5
`

func writeSeeds(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestImportSeedFile(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(store.NewMemory(), quietLogger(), Options{})
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	writeSeeds(t, path, seedYAML)

	report, err := e.ImportSeedFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Created: 2, Invalid: 1}, report)

	login, err := e.Get(ctx, "seed-login")
	require.NoError(t, err)
	assert.Equal(t, TypeKeyword, login.PatternType, "type defaults to keyword")
	assert.Equal(t, 1.0, login.SuccessRate)

	// Re-import is idempotent, including for seeds without an explicit id.
	report, err = e.ImportSeedFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Unchanged: 2, Invalid: 1}, report)

	all, err := e.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestImportSeeds_KeepsLearnedState(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(store.NewMemory(), quietLogger(), Options{})
	seeds := []Seed{{ID: "s1", Pattern: "invoice", Category: "billing", Confidence: 0.8}}

	_, err := e.ImportSeeds(ctx, seeds)
	require.NoError(t, err)
	_, err = e.UpdateFeedback(ctx, "s1", false)
	require.NoError(t, err)

	seeds[0].Confidence = 0.6
	report, err := e.ImportSeeds(ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Updated: 1}, report)

	p, err := e.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0.6, p.Confidence)
	assert.InDelta(t, 0.9, p.SuccessRate, 1e-9)
}

func TestLoadSeeds_Errors(t *testing.T) {
	_, err := LoadSeeds(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeSeeds(t, path, "patterns: [unterminated")
	_, err = LoadSeeds(path)
	assert.Error(t, err)
}

func TestWatchSeeds_ReimportsOnChange(t *testing.T) {
	e := NewEngine(store.NewMemory(), quietLogger(), Options{})
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	writeSeeds(t, path, "patterns: []\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.WatchSeeds(ctx, path)

	time.Sleep(100 * time.Millisecond)
	writeSeeds(t, path, seedYAML)

	require.Eventually(t, func() bool {
		all, err := e.List(context.Background())
		return err == nil && len(all) == 2
	}, 5*time.Second, 50*time.Millisecond, "seed file change not imported")
}
