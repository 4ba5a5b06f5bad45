// Package gateway implements the Index Gateway (§4.6): the storage-engine
// boundary wrapping bleve with upsert/delete/commit/refresh/snapshot and
// schema-version bookkeeping.
package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/localsearchd/localsearchd/internal/document"
	"github.com/localsearchd/localsearchd/internal/errors"
)

// CurrentSchemaVersion is this build's document schema version (§6.2).
const CurrentSchemaVersion = 1

const (
	schemaVersionKey  = "schema_version"
	softwareVersionKey = "software_version"
	softwareVersion    = "localsearchd"
)

// Gateway wraps a bleve index and exposes the Index Gateway contract.
// Writes are serialized per the underlying bleve index's own batch
// semantics; readers see a consistent point-in-time snapshot between
// batches (bleve's unified writer/reader model — see DESIGN.md).
type Gateway struct {
	mu                  sync.RWMutex
	index               bleve.Index
	path                string
	refreshIntervalMs   int
	schemaUpgradeNeeded bool
}

// Open creates or opens the bleve index at path. An empty path opens an
// in-memory index, used by tests.
func Open(path string) (*Gateway, error) {
	im, err := document.BuildIndexMapping()
	if err != nil {
		return nil, errors.InternalError("build index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.IOError(path, err)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, im)
		}
	}
	if err != nil {
		return nil, errors.IndexWriteError(err)
	}

	g := &Gateway{index: idx, path: path}

	upgradeNeeded, err := g.checkSchemaVersion()
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	g.schemaUpgradeNeeded = upgradeNeeded

	return g, nil
}

// checkSchemaVersion reads the schema_version internal key and compares
// it against CurrentSchemaVersion per §6.2's four-way rule.
func (g *Gateway) checkSchemaVersion() (upgradeNeeded bool, err error) {
	raw, getErr := g.index.GetInternal([]byte(schemaVersionKey))
	if getErr != nil {
		return false, errors.IndexWriteError(getErr)
	}
	if len(raw) == 0 {
		return true, nil // missing -> legacy -> upgrade-required
	}

	stored, parseErr := strconv.Atoi(string(raw))
	if parseErr != nil {
		return true, nil
	}

	switch {
	case stored < CurrentSchemaVersion:
		return true, nil
	case stored == CurrentSchemaVersion:
		return false, nil
	default:
		return false, errors.IndexWriteError(fmt.Errorf(
			"index schema version %d is newer than this build's %d", stored, CurrentSchemaVersion))
	}
}

// Upsert atomically updates or inserts doc keyed by path (I1).
func (g *Gateway) Upsert(path string, doc document.IndexedDocument) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !document.IsIndexable(doc) {
		return g.deleteLocked(path)
	}

	if err := g.index.Index(path, doc); err != nil {
		return errors.IndexWriteError(err)
	}
	return nil
}

// Delete removes path from the index. Idempotent — deleting an absent
// path is a no-op.
func (g *Gateway) Delete(path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deleteLocked(path)
}

func (g *Gateway) deleteLocked(path string) error {
	if err := g.index.Delete(path); err != nil {
		return errors.IndexWriteError(err)
	}
	return nil
}

// BulkDelete removes every path in paths. Idempotent.
func (g *Gateway) BulkDelete(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	batch := g.index.NewBatch()
	for _, p := range paths {
		batch.Delete(p)
	}
	if err := g.index.Batch(batch); err != nil {
		return errors.IndexWriteError(err)
	}
	return nil
}

// UpsertBatch writes many documents in a single bleve batch, skipping any
// whose content normalized to blank (those are deleted instead, per I4).
func (g *Gateway) UpsertBatch(docs []document.IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	batch := g.index.NewBatch()
	for _, doc := range docs {
		if document.IsIndexable(doc) {
			if err := batch.Index(doc.Path, doc); err != nil {
				return errors.IndexWriteError(err)
			}
		} else {
			batch.Delete(doc.Path)
		}
	}
	if err := g.index.Batch(batch); err != nil {
		return errors.IndexWriteError(err)
	}
	return nil
}

// Commit is the durable checkpoint: bleve's Batch/Index calls are already
// synchronously durable (there is no separate writer/reader split to
// flush, unlike Lucene), so Commit's real job is updating the
// schema-version user metadata if it changed since Open.
func (g *Gateway) Commit() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.index.SetInternal([]byte(schemaVersionKey), []byte(strconv.Itoa(CurrentSchemaVersion))); err != nil {
		return errors.IndexWriteError(err)
	}
	if err := g.index.SetInternal([]byte(softwareVersionKey), []byte(softwareVersion)); err != nil {
		return errors.IndexWriteError(err)
	}
	g.schemaUpgradeNeeded = false
	return nil
}

// Refresh forces near-real-time searcher refresh. Bleve's Batch already
// makes writes visible to subsequent Search calls on the same index
// handle (no writer/reader split to reconcile), so this is a documented
// no-op — the real NRT knob in this system is how often the Orchestrator
// calls Commit, which its periodic commit timer does every batchTimeoutMs.
func (g *Gateway) Refresh() error {
	return nil
}

// SetRefreshIntervalMs records the refresh cadence (§4.6), reported back
// by RefreshIntervalMs. The Orchestrator sets it for bulk crawls and
// restores it afterwards; no gateway operation and no commit schedule
// reads the stored value.
func (g *Gateway) SetRefreshIntervalMs(ms int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshIntervalMs = ms
}

func (g *Gateway) RefreshIntervalMs() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.refreshIntervalMs
}

// snapshotPageSize bounds each paginated Search call made by SnapshotAll.
const snapshotPageSize = 1000

// SnapshotAll returns every indexed path mapped to its stored
// modified_date, for the Reconciliation Engine's disk-vs-index diff
// (§4.7 step 1). Paginated internally so a single call never has to hold
// the whole result set in bleve at once.
func (g *Gateway) SnapshotAll() (map[string]int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snapshot := make(map[string]int64)
	from := 0
	for {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), snapshotPageSize, from, false)
		req.Fields = []string{"path", "modified_date"}

		res, err := g.index.Search(req)
		if err != nil {
			return nil, errors.IndexWriteError(err)
		}

		for _, hit := range res.Hits {
			path, _ := hit.Fields["path"].(string)
			if path == "" {
				path = hit.ID
			}
			var modified int64
			switch v := hit.Fields["modified_date"].(type) {
			case float64:
				modified = int64(v)
			case int64:
				modified = v
			}
			snapshot[path] = modified
		}

		from += len(res.Hits)
		if len(res.Hits) < snapshotPageSize || uint64(from) >= res.Total {
			break
		}
	}

	return snapshot, nil
}

// DocumentCount returns the number of live documents.
func (g *Gateway) DocumentCount() (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count, err := g.index.DocCount()
	if err != nil {
		return 0, errors.IndexWriteError(err)
	}
	return int(count), nil
}

func (g *Gateway) SchemaVersion() int {
	return CurrentSchemaVersion
}

func (g *Gateway) SchemaUpgradeRequired() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.schemaUpgradeNeeded
}

// Index exposes the underlying bleve index for the Search Executor
// (§4.10), which needs direct access to run query trees and facet
// requests that the upsert/delete contract doesn't cover.
func (g *Gateway) Index() bleve.Index {
	return g.index
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.index.Close()
}
