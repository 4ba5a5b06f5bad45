// Package watch implements the Filesystem Watcher & Debouncer (spec §4.9):
// event coalescing for live updates once a crawl reaches the WATCHING state.
package watch

import (
	"context"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a single collapsed filesystem event, post-debounce.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher defines the interface for file system watching. Events arrive in
// debounced batches — the only coupling between the watcher and its
// consumer is this channel, per the message-passing design note in spec §9
// (the Orchestrator owns the Watcher but must not be a back-reference from
// inside the watcher's event callback).
type Watcher interface {
	Start(ctx context.Context, path string) error
	Stop() error
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// Options configures watcher behavior. DebounceWindow corresponds to
// watchDebounceMs (§6.4); PollInterval corresponds to watchPollIntervalMs.
type Options struct {
	DebounceWindow  time.Duration
	PollInterval    time.Duration
	EventBufferSize int
}

func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
