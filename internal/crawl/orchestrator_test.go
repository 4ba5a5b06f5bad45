package crawl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localsearchd/localsearchd/internal/configfile"
	"github.com/localsearchd/localsearchd/internal/crawl"
	"github.com/localsearchd/localsearchd/internal/extract"
	"github.com/localsearchd/localsearchd/internal/gateway"
	"github.com/localsearchd/localsearchd/internal/pattern"
	"github.com/localsearchd/localsearchd/internal/stats"
)

func testConfig() configfile.Config {
	cfg := configfile.Default()
	cfg.WatchEnabled = false // most tests assert on IDLE, not WATCHING
	cfg.BatchTimeoutMs = 50
	cfg.BulkIndexThreshold = 1000
	cfg.ThreadPoolSize = 2
	return cfg
}

func newOrchestrator(t *testing.T, dirs []string, cfg configfile.Config) (*crawl.Orchestrator, *gateway.Gateway) {
	t.Helper()
	matcher, err := pattern.New(nil, nil)
	require.NoError(t, err)
	return newOrchestratorWithMatcher(t, dirs, cfg, matcher)
}

func newOrchestratorWithMatcher(t *testing.T, dirs []string, cfg configfile.Config, matcher *pattern.Matcher) (*crawl.Orchestrator, *gateway.Gateway) {
	t.Helper()

	gw, err := gateway.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	registry := extract.NewRegistry(extract.NewPlainTextExtractor())
	tracker := stats.New()

	statePath := filepath.Join(t.TempDir(), "crawl-state.yaml")
	orch := crawl.New(gw, registry, matcher, tracker, dirs, cfg, statePath)
	return orch, gw
}

func TestStartCrawlWithNoDirectoriesStaysIdle(t *testing.T) {
	orch, _ := newOrchestrator(t, nil, testConfig())

	err := orch.StartCrawl(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, crawl.StateIdle, orch.State())
}

func TestFullCrawlIndexesAllFilesThenReturnsToIdle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bravo content"), 0o644))

	cfg := testConfig()
	cfg.ReconciliationEnabled = false
	orch, gw := newOrchestrator(t, []string{dir}, cfg)

	require.NoError(t, orch.StartCrawl(context.Background(), true))

	require.Eventually(t, func() bool {
		return orch.State() == crawl.StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	count, err := gw.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEmptyFileIsDeletedNotIndexed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), []byte(""), 0o644))

	cfg := testConfig()
	cfg.ReconciliationEnabled = false
	orch, gw := newOrchestrator(t, []string{dir}, cfg)

	require.NoError(t, orch.StartCrawl(context.Background(), true))

	require.Eventually(t, func() bool {
		return orch.State() == crawl.StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	count, err := gw.DocumentCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFullCrawlDescendsNestedDirectoriesWithIncludeListSet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "reports", "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reports", "nested.txt"), []byte("bravo"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reports", "subdir", "deep.txt"), []byte("charlie"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reports", "ignored.bin"), []byte("delta"), 0o644))

	matcher, err := pattern.New([]string{"*.txt"}, nil)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.ReconciliationEnabled = false
	orch, gw := newOrchestratorWithMatcher(t, []string{dir}, cfg, matcher)

	require.NoError(t, orch.StartCrawl(context.Background(), true))

	require.Eventually(t, func() bool {
		return orch.State() == crawl.StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	count, err := gw.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStartCrawlWhileAlreadyCrawlingIsNoop(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "f"+string(rune('a'+i))+".txt"), []byte("content body"), 0o644))
	}

	cfg := testConfig()
	cfg.ReconciliationEnabled = false
	cfg.ThreadPoolSize = 1
	orch, _ := newOrchestrator(t, []string{dir}, cfg)

	require.NoError(t, orch.StartCrawl(context.Background(), true))

	// While the first crawl is still in flight, a second StartCrawl call
	// must be a warn-and-noop, not a second concurrent crawl.
	err := orch.StartCrawl(context.Background(), true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return orch.State() == crawl.StateIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPauseThenResumeReturnsToCrawling(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha content"), 0o644))

	cfg := testConfig()
	cfg.ReconciliationEnabled = false
	orch, _ := newOrchestrator(t, []string{dir}, cfg)

	require.NoError(t, orch.StartCrawl(context.Background(), true))

	orch.Pause()
	if orch.State() == crawl.StatePaused {
		orch.Resume()
		assert.Equal(t, crawl.StateCrawling, orch.State())
	}

	require.Eventually(t, func() bool {
		return orch.State() == crawl.StateIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownReturnsToIdle(t *testing.T) {
	orch, _ := newOrchestrator(t, nil, testConfig())
	orch.Shutdown()
	assert.Equal(t, crawl.StateIdle, orch.State())
}

func TestCrawlWithWatchEnabledTransitionsToWatching(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha content"), 0o644))

	cfg := testConfig()
	cfg.WatchEnabled = true
	cfg.ReconciliationEnabled = false
	cfg.WatchPollIntervalMs = 50
	cfg.WatchDebounceMs = 20
	orch, _ := newOrchestrator(t, []string{dir}, cfg)

	require.NoError(t, orch.StartCrawl(context.Background(), true))

	require.Eventually(t, func() bool {
		return orch.State() == crawl.StateWatching
	}, 2*time.Second, 10*time.Millisecond)

	orch.Shutdown()
	assert.Equal(t, crawl.StateIdle, orch.State())
}
