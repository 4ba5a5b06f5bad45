package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localsearchd/localsearchd/internal/pattern"
	"github.com/localsearchd/localsearchd/internal/watch"
)

func TestHybridWatcherDetectsCreate(t *testing.T) {
	dir := t.TempDir()

	m, err := pattern.New(nil, []string{"**/node_modules/**"})
	require.NoError(t, err)

	w, err := watch.NewHybridWatcher(watch.Options{
		DebounceWindow:  30 * time.Millisecond,
		EventBufferSize: 10,
	}, m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Start(ctx, dir) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hi"), 0o644))

	select {
	case batch := <-w.Events():
		require.NotEmpty(t, batch)
		assert.Equal(t, "new.txt", batch[0].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for create event")
	}

	require.NoError(t, w.Stop())
}

func TestHybridWatcherIgnoresExcludedSubtree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "node_modules"), 0o755))

	m, err := pattern.New(nil, []string{"**/node_modules/**"})
	require.NoError(t, err)

	w, err := watch.NewHybridWatcher(watch.Options{
		DebounceWindow:  30 * time.Millisecond,
		EventBufferSize: 10,
	}, m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Start(ctx, dir) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg.js"), []byte("x"), 0o644))

	select {
	case batch := <-w.Events():
		t.Fatalf("expected no events from excluded subtree, got %v", batch)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, w.Stop())
}

func TestHybridWatcherDescendsNestedDirectoriesWithIncludeListSet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "reports", "subdir"), 0o755))

	m, err := pattern.New([]string{"*.pdf"}, nil)
	require.NoError(t, err)

	w, err := watch.NewHybridWatcher(watch.Options{
		DebounceWindow:  30 * time.Millisecond,
		EventBufferSize: 10,
	}, m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Start(ctx, dir) }()
	time.Sleep(50 * time.Millisecond)

	// Create a file two levels deep, under directories whose basenames
	// ("reports", "subdir") never match the "*.pdf" include pattern. The
	// watcher must still have descended into both to observe this event.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reports", "subdir", "new.pdf"), []byte("hi"), 0o644))

	select {
	case batch := <-w.Events():
		require.NotEmpty(t, batch)
		assert.Equal(t, filepath.Join("reports", "subdir", "new.pdf"), batch[0].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for create event in nested directory")
	}

	require.NoError(t, w.Stop())
}

func TestHybridWatcherStopClosesChannels(t *testing.T) {
	dir := t.TempDir()
	m, err := pattern.New(nil, nil)
	require.NoError(t, err)

	w, err := watch.NewHybridWatcher(watch.DefaultOptions(), m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx, dir) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
}
