// Package crawl implements the Crawl Orchestrator (§4.8): the state
// machine that drives reconciliation, the bounded per-file worker pool,
// the periodic commit timer, and the handoff into filesystem watching.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/localsearchd/localsearchd/internal/configfile"
	"github.com/localsearchd/localsearchd/internal/document"
	"github.com/localsearchd/localsearchd/internal/extract"
	"github.com/localsearchd/localsearchd/internal/gateway"
	"github.com/localsearchd/localsearchd/internal/logging"
	"github.com/localsearchd/localsearchd/internal/pattern"
	"github.com/localsearchd/localsearchd/internal/reconcile"
	"github.com/localsearchd/localsearchd/internal/stats"
	"github.com/localsearchd/localsearchd/internal/watch"
)

// State is the single process-wide state variable described by §4.8.
type State int32

const (
	StateIdle State = iota
	StateCrawling
	StatePaused
	StateWatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCrawling:
		return "crawling"
	case StatePaused:
		return "paused"
	case StateWatching:
		return "watching"
	default:
		return "unknown"
	}
}

// pauseCheckInterval is the cooperative pause-poll period per-file tasks
// use while blocked (§4.8 per-file task step 1).
const pauseCheckInterval = 100 * time.Millisecond

// Orchestrator drives one crawl at a time for a fixed set of root
// directories. It owns the Gateway, the Extractor/Builder pipeline, the
// Reconciliation Engine, the Watcher, and the Statistics Tracker as
// long-lived shared collaborators (§REDESIGN "cyclic graphs").
type Orchestrator struct {
	gw        *gateway.Gateway
	extractor *extract.Registry
	matcher   *pattern.Matcher
	tracker   *stats.Tracker
	cfg       configfile.Config
	dirs      []string

	crawlStatePath string

	mu    sync.Mutex
	state State

	paused       atomic.Bool
	shuttingDown atomic.Bool

	filterMu sync.RWMutex
	filter   map[string]struct{} // nil means "no filter, full crawl"

	watcher     *watch.HybridWatcher
	watchCancel context.CancelFunc
	watchDone   sync.WaitGroup

	commitStop chan struct{}
	commitDone chan struct{}

	crawlWG     sync.WaitGroup
	crawlCancel context.CancelFunc
	sem         chan struct{}
	onNotify    func(event string)

	runLogger atomic.Pointer[slog.Logger]
}

// New constructs an Orchestrator over an already-opened Gateway.
func New(gw *gateway.Gateway, extractor *extract.Registry, matcher *pattern.Matcher, tracker *stats.Tracker, dirs []string, cfg configfile.Config, crawlStatePath string) *Orchestrator {
	o := &Orchestrator{
		gw:             gw,
		extractor:      extractor,
		matcher:        matcher,
		tracker:        tracker,
		cfg:            cfg,
		dirs:           dirs,
		crawlStatePath: crawlStatePath,
	}
	o.runLogger.Store(slog.Default())
	return o
}

// logger returns the logger for the in-flight (or most recently completed)
// crawl run, stamped with that run's correlation id (§4.8, §2 DOMAIN
// STACK) so every log line a crawl produces — across its walkers, its
// per-file tasks, and its coordinator — can be grepped back into one run.
func (o *Orchestrator) logger() *slog.Logger {
	return o.runLogger.Load()
}

// OnNotify registers a callback invoked on pause/resume/watching-transition
// events. Notification transport itself is out of scope; this is the seam.
func (o *Orchestrator) OnNotify(fn func(event string)) {
	o.onNotify = fn
}

func (o *Orchestrator) notify(event string) {
	if o.onNotify != nil {
		o.onNotify(event)
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// StartCrawl begins a crawl, implementing the IDLE/WATCHING -> CRAWLING
// transitions and the start sequence of §4.8.
func (o *Orchestrator) StartCrawl(ctx context.Context, fullReindex bool) error {
	o.mu.Lock()
	switch o.state {
	case StateCrawling, StatePaused:
		o.mu.Unlock()
		slog.Warn("crawl already in progress, ignoring startCrawl")
		return nil
	case StateWatching:
		o.stopWatchingLocked()
	}

	if len(o.dirs) == 0 {
		o.state = StateIdle
		o.mu.Unlock()
		slog.Warn("startCrawl called with no configured directories")
		return nil
	}

	o.state = StateCrawling
	o.mu.Unlock()

	runID := uuid.NewString()
	runLogger := logging.WithCrawlID(slog.Default(), runID)
	o.runLogger.Store(runLogger)
	runLogger.Info("crawl started", slog.Int("dirs", len(o.dirs)), slog.Bool("full_reindex", fullReindex))

	useIncremental := !fullReindex && o.cfg.ReconciliationEnabled
	effectiveFull := !useIncremental

	var filterSet map[string]struct{}
	if useIncremental {
		result, err := reconcile.Run(o.gw, o.dirs, o.matcher, func(path string, err error) {
			runLogger.Warn("skipping file during reconciliation walk", slog.String("path", path), slog.String("error", err.Error()))
		})
		if err != nil {
			runLogger.Warn("reconciliation failed, falling back to full crawl", slog.String("error", err.Error()))
			effectiveFull = true
		} else if err := o.gw.BulkDelete(result.ToDelete); err != nil {
			runLogger.Warn("bulk delete failed, falling back to full crawl", slog.String("error", err.Error()))
			effectiveFull = true
		} else {
			filterSet = result.FilterSet()
		}
	}

	if effectiveFull {
		if err := o.deleteAll(); err != nil {
			return fmt.Errorf("full crawl reset failed: %w", err)
		}
		if err := o.gw.Commit(); err != nil {
			return fmt.Errorf("full crawl reset commit failed: %w", err)
		}
		filterSet = nil
	}

	o.setFilter(filterSet)
	o.tracker.Reset()
	o.shuttingDown.Store(false)
	o.paused.Store(false)

	estimatedFiles := 0
	if effectiveFull {
		estimatedFiles = o.cfg.BulkIndexThreshold
	} else {
		estimatedFiles = len(filterSet)
	}

	originalRefresh := o.gw.RefreshIntervalMs()
	slowRefreshEngaged := false
	if estimatedFiles >= o.cfg.BulkIndexThreshold {
		o.gw.SetRefreshIntervalMs(o.cfg.SlowNrtRefreshIntervalMs)
		slowRefreshEngaged = true
	}

	o.startCommitTimer()

	mode := configfile.CrawlModeIncremental
	if effectiveFull {
		mode = configfile.CrawlModeFull
	}

	threadPoolSize := o.cfg.ThreadPoolSize
	if threadPoolSize < 1 {
		threadPoolSize = 1
	}
	o.sem = make(chan struct{}, threadPoolSize)

	// crawlCtx is distinct from the caller's ctx: Shutdown cancels it
	// directly to force-terminate stuck per-file tasks after its grace
	// window, independent of whatever the caller's own context does (§5).
	crawlCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.crawlCancel = cancel
	o.mu.Unlock()

	for _, dir := range o.dirs {
		o.crawlWG.Add(1)
		go o.walkDir(crawlCtx, dir)
	}

	go o.awaitCompletion(crawlCtx, originalRefresh, slowRefreshEngaged, mode)

	return nil
}

// walkDir enumerates files under root matching the pattern matcher and
// (in incremental mode) the filter set, submitting one per-file task per
// qualifying file to the bounded worker pool (§4.8 step 9).
func (o *Orchestrator) walkDir(ctx context.Context, root string) {
	defer o.crawlWG.Done()

	var tasks sync.WaitGroup
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			o.logger().Warn("walk error", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if info.IsDir() {
			if path != root && !o.matcher.ShouldDescend(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !o.matcher.ShouldInclude(path) {
			return nil
		}
		if !o.inFilter(path) {
			return nil
		}

		o.sem <- struct{}{} // blocking acquire: natural backpressure, the caller-runs equivalent
		tasks.Add(1)
		go func() {
			defer func() { <-o.sem; tasks.Done() }()
			o.runPerFileTask(ctx, path)
		}()
		return nil
	})
	tasks.Wait()
}

// inFilter reports whether path should be processed: everything in full
// mode, only filtered paths in incremental mode.
func (o *Orchestrator) inFilter(path string) bool {
	o.filterMu.RLock()
	defer o.filterMu.RUnlock()
	if o.filter == nil {
		return true
	}
	_, ok := o.filter[path]
	return ok
}

func (o *Orchestrator) setFilter(filter map[string]struct{}) {
	o.filterMu.Lock()
	defer o.filterMu.Unlock()
	o.filter = filter
}

// runPerFileTask implements §4.8's per-file task exactly.
func (o *Orchestrator) runPerFileTask(ctx context.Context, path string) {
	for o.paused.Load() && !o.shuttingDown.Load() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(pauseCheckInterval):
		}
	}
	if o.shuttingDown.Load() {
		return
	}

	o.tracker.RegisterActive(path)
	defer o.tracker.UnregisterActive(path)
	defer o.tracker.IncProcessed()

	info, err := os.Stat(path)
	if err != nil {
		o.tracker.IncFailed()
		return
	}
	if info.Size() == 0 {
		if err := o.gw.Delete(path); err != nil {
			o.tracker.IncFailed()
			return
		}
		o.tracker.IncDeleted()
		return
	}

	extracted, err := o.extractor.Extract(ctx, path, extract.Options{
		MaxContentLength: o.cfg.MaxContentLength,
		ExtractMetadata:  o.cfg.ExtractMetadata,
		DetectLanguage:   o.cfg.DetectLanguage,
	})
	if err != nil {
		o.tracker.IncFailed()
		return
	}

	doc := document.Build(path, extracted, time.Now())
	if !document.IsIndexable(doc) {
		if err := o.gw.Delete(path); err != nil {
			o.tracker.IncFailed()
			return
		}
		o.tracker.IncDeleted()
		return
	}

	if err := o.gw.Upsert(path, doc); err != nil {
		o.tracker.IncFailed()
		return
	}
	o.tracker.IncIndexed()
}

// awaitCompletion is the coordinator thread: it waits for every walker to
// finish, then runs the completion sequence (§4.8 Completion).
func (o *Orchestrator) awaitCompletion(ctx context.Context, originalRefreshMs int, slowRefreshEngaged bool, mode configfile.CrawlMode) {
	o.crawlWG.Wait()

	o.stopCommitTimer()

	if slowRefreshEngaged {
		o.gw.SetRefreshIntervalMs(originalRefreshMs)
	}

	if err := o.gw.Commit(); err != nil {
		o.logger().Warn("final commit failed", slog.String("error", err.Error()))
	}

	count, err := o.gw.DocumentCount()
	if err != nil {
		o.logger().Warn("document count failed, crawl state not saved", slog.String("error", err.Error()))
	} else if o.crawlStatePath != "" {
		state := configfile.CrawlState{
			LastCompletionTimeMs: time.Now().UnixMilli(),
			LastDocumentCount:    count,
			LastCrawlMode:        mode,
		}
		if err := configfile.SaveCrawlState(o.crawlStatePath, state); err != nil {
			o.logger().Warn("failed to save crawl state", slog.String("error", err.Error()))
		}
	}

	o.logger().Info("crawl completed", slog.Int("document_count", count), slog.String("mode", string(mode)))

	o.setFilter(nil)

	o.mu.Lock()
	if o.cfg.WatchEnabled {
		o.state = StateWatching
		o.mu.Unlock()
		o.startWatching(ctx)
		o.notify("watching")
	} else {
		o.state = StateIdle
		o.mu.Unlock()
	}
}

// deleteAll removes every currently-indexed document (§4.8 step 4,
// effectiveFull branch, and the reconciliation-fallback path).
func (o *Orchestrator) deleteAll() error {
	snapshot, err := o.gw.SnapshotAll()
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(snapshot))
	for p := range snapshot {
		paths = append(paths, p)
	}
	return o.gw.BulkDelete(paths)
}

func (o *Orchestrator) startCommitTimer() {
	o.commitStop = make(chan struct{})
	o.commitDone = make(chan struct{})
	stop, done := o.commitStop, o.commitDone
	interval := time.Duration(o.cfg.BatchTimeoutMs) * time.Millisecond

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := o.gw.Commit(); err != nil {
					o.logger().Warn("periodic commit failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

func (o *Orchestrator) stopCommitTimer() {
	if o.commitStop == nil {
		return
	}
	close(o.commitStop)
	<-o.commitDone
	o.commitStop, o.commitDone = nil, nil
}

// Pause implements CRAWLING -> PAUSED. In-flight per-file tasks finish;
// no new ones begin until Resume (§4.8, §8 scenario).
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateCrawling {
		return
	}
	o.state = StatePaused
	o.paused.Store(true)
	o.notify("pause")
}

// Resume implements PAUSED -> CRAWLING.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StatePaused {
		return
	}
	o.state = StateCrawling
	o.paused.Store(false)
	o.notify("resume")
}

// startWatching registers every configured root with the filesystem
// watcher and forwards its debounced batches into the incremental
// indexing path (§4.9).
func (o *Orchestrator) startWatching(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	o.watchCancel = cancel

	watcher, err := watch.NewHybridWatcher(watch.Options{
		PollInterval:   time.Duration(o.cfg.WatchPollIntervalMs) * time.Millisecond,
		DebounceWindow: time.Duration(o.cfg.WatchDebounceMs) * time.Millisecond,
	}.WithDefaults(), o.matcher)
	if err != nil {
		o.logger().Warn("failed to start filesystem watcher", slog.String("error", err.Error()))
		return
	}
	o.watcher = watcher

	for _, dir := range o.dirs {
		if err := watcher.Start(watchCtx, dir); err != nil {
			o.logger().Warn("failed to watch directory", slog.String("path", dir), slog.String("error", err.Error()))
		}
	}

	o.watchDone.Add(1)
	go func() {
		defer o.watchDone.Done()
		for {
			select {
			case <-watchCtx.Done():
				return
			case batch, ok := <-watcher.Events():
				if !ok {
					return
				}
				o.handleWatchBatch(watchCtx, batch)
			case err, ok := <-watcher.Errors():
				if !ok {
					return
				}
				if err != nil {
					o.logger().Warn("watcher error", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// handleWatchBatch applies a debounced batch of events directly, outside
// the bounded worker pool — watch events arrive far slower than a crawl's
// file enumeration does, so no backpressure scheme is needed here.
func (o *Orchestrator) handleWatchBatch(ctx context.Context, batch []watch.FileEvent) {
	for _, event := range batch {
		if event.IsDir {
			continue
		}
		switch event.Operation {
		case watch.OpDelete:
			if err := o.gw.Delete(event.Path); err != nil {
				o.logger().Warn("watch delete failed", slog.String("path", event.Path), slog.String("error", err.Error()))
			}
		case watch.OpCreate, watch.OpModify, watch.OpRename:
			if !o.matcher.ShouldInclude(event.Path) {
				continue
			}
			o.runPerFileTask(ctx, event.Path)
		}
	}
}

func (o *Orchestrator) stopWatchingLocked() {
	if o.watchCancel != nil {
		o.watchCancel()
	}
	if o.watcher != nil {
		_ = o.watcher.Stop()
	}
	o.watchDone.Wait()
	o.watcher = nil
	o.watchCancel = nil
}

// crawlJoinTimeout and crawlForceGrace implement §5's shutdown contract:
// the coordinator is joined with a 10-second timeout, then, if still
// unfinished, its crawl context is cancelled and it is given a further
// 5-second grace window before Shutdown gives up the join and returns
// anyway, rather than blocking forever on one stuck per-file task.
const (
	crawlJoinTimeout = 10 * time.Second
	crawlForceGrace  = 5 * time.Second
)

// Shutdown implements "any -> IDLE": stop watchers, let in-flight work
// drain (forcing termination if it doesn't, within a bounded window), and
// leave the orchestrator quiescent.
func (o *Orchestrator) Shutdown() {
	o.shuttingDown.Store(true)

	o.mu.Lock()
	wasWatching := o.state == StateWatching
	o.state = StateIdle
	o.mu.Unlock()

	if wasWatching {
		o.mu.Lock()
		o.stopWatchingLocked()
		o.mu.Unlock()
	}

	o.joinCrawlWG()
	o.stopCommitTimer()
}

// joinCrawlWG waits for crawlWG to drain, with the bounded timeout and
// forced-cancellation grace window documented on Shutdown.
func (o *Orchestrator) joinCrawlWG() {
	done := make(chan struct{})
	go func() {
		o.crawlWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(crawlJoinTimeout):
		o.logger().Warn("crawl shutdown join timed out, forcing cancellation of in-flight tasks",
			slog.Duration("timeout", crawlJoinTimeout))
	}

	o.mu.Lock()
	if o.crawlCancel != nil {
		o.crawlCancel()
	}
	o.mu.Unlock()

	select {
	case <-done:
	case <-time.After(crawlForceGrace):
		o.logger().Warn("in-flight crawl tasks still running after forced cancellation grace window, giving up the join",
			slog.Duration("grace", crawlForceGrace))
	}
}
