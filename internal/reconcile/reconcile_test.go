package reconcile_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localsearchd/localsearchd/internal/pattern"
	"github.com/localsearchd/localsearchd/internal/reconcile"
)

type fakeSnapshotter struct {
	snapshot map[string]int64
	err      error
}

func (f fakeSnapshotter) SnapshotAll() (map[string]int64, error) {
	return f.snapshot, f.err
}

func newMatcher(t *testing.T) *pattern.Matcher {
	t.Helper()
	m, err := pattern.New(nil, nil)
	require.NoError(t, err)
	return m
}

func TestRunClassifiesDeletedAddedUpdatedUnchanged(t *testing.T) {
	dir := t.TempDir()

	unchangedPath := filepath.Join(dir, "unchanged.txt")
	updatedPath := filepath.Join(dir, "updated.txt")
	addedPath := filepath.Join(dir, "added.txt")

	require.NoError(t, os.WriteFile(unchangedPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(updatedPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(addedPath, []byte("x"), 0o644))

	unchangedInfo, err := os.Stat(unchangedPath)
	require.NoError(t, err)
	updatedInfo, err := os.Stat(updatedPath)
	require.NoError(t, err)

	// Given: an index snapshot with an older mtime for updated.txt, a
	// stale mtime that no longer has a disk counterpart (deleted), and
	// no entry at all for added.txt.
	snap := fakeSnapshotter{snapshot: map[string]int64{
		unchangedPath:                    unchangedInfo.ModTime().UnixMilli(),
		updatedPath:                      updatedInfo.ModTime().UnixMilli() - 60_000,
		filepath.Join(dir, "deleted.txt"): time.Now().UnixMilli(),
	}}

	result, err := reconcile.Run(snap, []string{dir}, newMatcher(t), nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{filepath.Join(dir, "deleted.txt")}, result.ToDelete)
	assert.ElementsMatch(t, []string{addedPath}, result.ToAdd)
	assert.ElementsMatch(t, []string{updatedPath}, result.ToUpdate)
	assert.Equal(t, 1, result.Unchanged)
	assert.GreaterOrEqual(t, result.ElapsedMs, int64(0))
}

func TestRunPropagatesSnapshotError(t *testing.T) {
	snap := fakeSnapshotter{err: errors.New("index unreadable")}
	_, err := reconcile.Run(snap, []string{t.TempDir()}, newMatcher(t), nil)
	assert.Error(t, err)
}

func TestRunExcludesPathsViaMatcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "ignored.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.txt"), []byte("x"), 0o644))

	m, err := pattern.New(nil, []string{"**/node_modules/**"})
	require.NoError(t, err)

	result, err := reconcile.Run(fakeSnapshotter{snapshot: map[string]int64{}}, []string{dir}, m, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{filepath.Join(dir, "kept.txt")}, result.ToAdd)
}

func TestRunDescendsNestedDirectoriesWithIncludeListSet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "reports", "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reports", "nested.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reports", "subdir", "deep.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reports", "ignored.txt"), []byte("x"), 0o644))

	m, err := pattern.New([]string{"*.pdf"}, nil)
	require.NoError(t, err)

	result, err := reconcile.Run(fakeSnapshotter{snapshot: map[string]int64{}}, []string{dir}, m, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "top.pdf"),
		filepath.Join(dir, "reports", "nested.pdf"),
		filepath.Join(dir, "reports", "subdir", "deep.pdf"),
	}, result.ToAdd)
}

func TestFilterSetIsUnionOfAddAndUpdate(t *testing.T) {
	result := reconcile.Result{
		ToAdd:    []string{"/a.txt"},
		ToUpdate: []string{"/b.txt"},
		ToDelete: []string{"/c.txt"},
	}

	set := result.FilterSet()
	assert.Len(t, set, 2)
	_, hasA := set["/a.txt"]
	_, hasB := set["/b.txt"]
	_, hasC := set["/c.txt"]
	assert.True(t, hasA)
	assert.True(t, hasB)
	assert.False(t, hasC)
}

func TestRunWithWarningCallbackCollectsReadableFile(t *testing.T) {
	dir := t.TempDir()
	okPath := filepath.Join(dir, "ok.txt")
	require.NoError(t, os.WriteFile(okPath, []byte("x"), 0o644))

	result, err := reconcile.Run(fakeSnapshotter{snapshot: map[string]int64{}}, []string{dir}, newMatcher(t), func(path string, err error) {})
	require.NoError(t, err)
	assert.Contains(t, result.ToAdd, okPath)
}
