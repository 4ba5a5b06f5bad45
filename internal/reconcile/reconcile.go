// Package reconcile implements the Reconciliation Engine (§4.7): a pure,
// no-write four-way diff between what's indexed and what's on disk.
package reconcile

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/localsearchd/localsearchd/internal/errors"
	"github.com/localsearchd/localsearchd/internal/pattern"
)

// Result is the four-way diff produced by Run.
type Result struct {
	ToDelete  []string
	ToAdd     []string
	ToUpdate  []string
	Unchanged int
	ElapsedMs int64
}

// Snapshotter is the subset of the Index Gateway the engine needs: a
// point-in-time map of indexed path to stored modified_date.
type Snapshotter interface {
	SnapshotAll() (map[string]int64, error)
}

// Run computes the four-way diff between gw's snapshot and the current
// state of dirs on disk, filtered by matcher (§4.7 steps 1-3).
//
// Any I/O error reading the snapshot is returned so the Orchestrator can
// fall back to a full crawl (§4.7 failure semantics); per-file mtime
// errors encountered while walking are skipped with a warning rather
// than failing the whole reconciliation.
func Run(gw Snapshotter, dirs []string, matcher *pattern.Matcher, onWarning func(path string, err error)) (Result, error) {
	start := time.Now()

	indexed, err := gw.SnapshotAll()
	if err != nil {
		return Result{}, errors.ReconciliationError(err)
	}

	disk := make(map[string]int64)
	for _, root := range dirs {
		if err := walkDir(root, matcher, disk, onWarning); err != nil {
			return Result{}, errors.ReconciliationError(err)
		}
	}

	result := diff(indexed, disk)
	result.ElapsedMs = time.Since(start).Milliseconds()
	return result, nil
}

func walkDir(root string, matcher *pattern.Matcher, disk map[string]int64, onWarning func(path string, err error)) error {
	return filepath.Walk(root, func(path string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			if onWarning != nil {
				onWarning(path, walkErr)
			}
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if path != root && !matcher.ShouldDescend(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !matcher.ShouldInclude(path) {
			return nil
		}

		mtime, statErr := fileModTimeMs(path, info)
		if statErr != nil {
			if onWarning != nil {
				onWarning(path, statErr)
			}
			return nil
		}
		disk[path] = mtime
		return nil
	})
}

func fileModTimeMs(path string, info fs.FileInfo) (int64, error) {
	if info == nil {
		fresh, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		info = fresh
	}
	return info.ModTime().UnixMilli(), nil
}

// diff implements §4.7 step 3 exactly:
//   - to_delete = keys(indexed) \ keys(disk)
//   - for each p in keys(disk): not in indexed -> to_add;
//     disk[p] > indexed[p] -> to_update; else unchanged++
func diff(indexed, disk map[string]int64) Result {
	var result Result

	for path := range indexed {
		if _, onDisk := disk[path]; !onDisk {
			result.ToDelete = append(result.ToDelete, path)
		}
	}

	for path, diskMtime := range disk {
		indexedMtime, isIndexed := indexed[path]
		switch {
		case !isIndexed:
			result.ToAdd = append(result.ToAdd, path)
		case diskMtime > indexedMtime:
			result.ToUpdate = append(result.ToUpdate, path)
		default:
			result.Unchanged++
		}
	}

	return result
}

// FilterSet returns the union of ToAdd and ToUpdate, the incremental-mode
// filter the Orchestrator applies to its walkers (§4.8 step 4).
func (r Result) FilterSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.ToAdd)+len(r.ToUpdate))
	for _, p := range r.ToAdd {
		set[p] = struct{}{}
	}
	for _, p := range r.ToUpdate {
		set[p] = struct{}{}
	}
	return set
}
