// Package stats implements the Statistics Tracker (§2 row J): crawl
// counters, an in-flight file registry, and periodic progress emission.
// Counters live on each Tracker instance (the Orchestrator is handed one)
// and are reset at the start of every crawl.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time read of the tracker's counters.
type Snapshot struct {
	Processed int64
	Indexed   int64
	Deleted   int64
	Failed    int64
	Active    int
}

// Tracker holds atomic crawl counters and the set of paths currently
// being extracted/built/upserted by a per-file task.
type Tracker struct {
	processed int64
	indexed   int64
	deleted   int64
	failed    int64

	active sync.Map // path (string) -> struct{}

	emitMu   sync.Mutex
	emitStop chan struct{}
	emitDone chan struct{}
}

// New returns a Tracker with all counters at zero.
func New() *Tracker {
	return &Tracker{}
}

// Reset zeroes every counter. Called once at the start of each crawl
// (§4.8 step 5) — never mid-crawl.
func (t *Tracker) Reset() {
	atomic.StoreInt64(&t.processed, 0)
	atomic.StoreInt64(&t.indexed, 0)
	atomic.StoreInt64(&t.deleted, 0)
	atomic.StoreInt64(&t.failed, 0)
}

func (t *Tracker) IncProcessed() { atomic.AddInt64(&t.processed, 1) }
func (t *Tracker) IncIndexed()   { atomic.AddInt64(&t.indexed, 1) }
func (t *Tracker) IncDeleted()   { atomic.AddInt64(&t.deleted, 1) }
func (t *Tracker) IncFailed()    { atomic.AddInt64(&t.failed, 1) }

// RegisterActive marks path as currently being processed by a per-file
// task (§4.8 per-file task step 2).
func (t *Tracker) RegisterActive(path string) {
	t.active.Store(path, struct{}{})
}

// UnregisterActive removes path from the in-flight registry. Safe to call
// even if path was never registered, so a deferred call covering every
// per-file task exit path (success, skip, failure) is always correct
// (§4.8 per-file task step 6).
func (t *Tracker) UnregisterActive(path string) {
	t.active.Delete(path)
}

// ActiveCount returns the number of in-flight files.
func (t *Tracker) ActiveCount() int {
	count := 0
	t.active.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// Snapshot reads every counter plus the current in-flight count.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Processed: atomic.LoadInt64(&t.processed),
		Indexed:   atomic.LoadInt64(&t.indexed),
		Deleted:   atomic.LoadInt64(&t.deleted),
		Failed:    atomic.LoadInt64(&t.failed),
		Active:    t.ActiveCount(),
	}
}

// StartProgressEmitter runs emit(t.Snapshot()) every intervalMs until
// StopProgressEmitter is called. A zero or negative interval disables
// emission entirely.
func (t *Tracker) StartProgressEmitter(intervalMs int, emit func(Snapshot)) {
	if intervalMs <= 0 || emit == nil {
		return
	}

	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	if t.emitStop != nil {
		return // already running
	}
	t.emitStop = make(chan struct{})
	t.emitDone = make(chan struct{})

	stop := t.emitStop
	done := t.emitDone
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				emit(t.Snapshot())
			}
		}
	}()
}

// StopProgressEmitter halts a running emitter and waits for it to exit.
// Idempotent.
func (t *Tracker) StopProgressEmitter() {
	t.emitMu.Lock()
	stop, done := t.emitStop, t.emitDone
	t.emitStop, t.emitDone = nil, nil
	t.emitMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
