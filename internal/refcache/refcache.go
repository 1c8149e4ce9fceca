// Package refcache lazily resolves externally-referenced posts (quote and
// reply targets) with per-conversation caching. Each external id owns a small
// state machine; the one-shot fetching→resolved transition and the in-flight
// dedupe live here, not in caller bookkeeping flags.
package refcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/MikeSquared-Agency/loom/internal/message"
	"github.com/MikeSquared-Agency/loom/internal/metrics"
)

// Resolution states per external id.
type ResolutionState stateless.State

var (
	StateUnresolved ResolutionState = "unresolved"
	StateFetching   ResolutionState = "fetching"
	StateResolved   ResolutionState = "resolved"
	StateFailed     ResolutionState = "failed"
)

// Triggers.
type resolutionTrigger stateless.Trigger

var (
	triggerExpand       resolutionTrigger = "Expand"
	triggerFetchSuccess resolutionTrigger = "FetchSucceeded"
	triggerFetchFailure resolutionTrigger = "FetchFailed"
)

// Fetcher loads the content of an externally hosted post by its id.
type Fetcher interface {
	FetchExternalPost(ctx context.Context, externalID string) (*message.Message, error)
}

// Snapshot is an immutable view of one cache entry, safe to hand to the
// assembler and the presentation layer.
type Snapshot struct {
	ID       string           `json:"id"`
	State    ResolutionState  `json:"state"`
	Content  *message.Message `json:"content,omitempty"` // non-nil only when State == StateResolved
	Expanded bool             `json:"expanded"`
	Err      error            `json:"-"` // last fetch error, set only when State == StateFailed
}

type entry struct {
	id       string
	fsm      *stateless.StateMachine
	content  *message.Message
	expanded bool
	lastErr  error
}

func newEntry(id string) *entry {
	fsm := stateless.NewStateMachine(StateUnresolved)
	fsm.Configure(StateUnresolved).
		Permit(triggerExpand, StateFetching)
	fsm.Configure(StateFetching).
		Permit(triggerFetchSuccess, StateResolved).
		Permit(triggerFetchFailure, StateFailed).
		Ignore(triggerExpand) // second expand while fetching attaches, never refetches
	fsm.Configure(StateResolved).
		Ignore(triggerExpand) // resolved entries are permanent, no refetch
	fsm.Configure(StateFailed).
		Permit(triggerExpand, StateFetching) // failed entries may retry
	return &entry{id: id, fsm: fsm}
}

func (e *entry) state() ResolutionState {
	return e.fsm.MustState().(ResolutionState)
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		ID:       e.id,
		State:    e.state(),
		Content:  e.content,
		Expanded: e.expanded,
		Err:      e.lastErr,
	}
}

// ErrStaleContext marks a result discarded because the conversation changed
// while the fetch was in flight.
var ErrStaleContext = errors.New("stale context: conversation changed during fetch")

// Resolver is the per-conversation reference cache. The assembler reads it,
// the resolver's own fetch completions write it; no other component mutates
// shared state.
type Resolver struct {
	mu         sync.Mutex
	fetcher    Fetcher
	logger     *slog.Logger
	entries    map[string]*entry
	waiters    map[string][]chan error
	generation uint64

	// onChange is invoked (outside the lock) after a fetch reaches a terminal
	// state, so the session can re-assemble affected entries.
	onChange func(externalID string)
}

func New(fetcher Fetcher, logger *slog.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		logger:  logger,
		entries: make(map[string]*entry),
		waiters: make(map[string][]chan error),
	}
}

// SetOnChange registers the re-assembly hook. Must be called before the first
// Expand.
func (r *Resolver) SetOnChange(fn func(externalID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Reset discards the cache and invalidates any in-flight fetches. Called when
// the session switches conversations; late results for the old conversation
// fail the generation check and are dropped.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.entries = make(map[string]*entry)
	for id, chans := range r.waiters {
		for _, ch := range chans {
			ch <- ErrStaleContext
		}
		delete(r.waiters, id)
	}
}

// Placeholder ensures an entry exists for the id and returns its snapshot.
// Used by the assembler when it inserts a collapsed reference placeholder; it
// never starts a fetch.
func (r *Resolver) Placeholder(externalID string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(externalID).snapshot()
}

// Lookup returns the snapshot for an id if an entry exists.
func (r *Resolver) Lookup(externalID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[externalID]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Expand marks the reference expanded and starts a fetch if one is needed.
// Non-blocking: the outcome lands in the cache and fires the onChange hook.
// Calling Expand while a fetch is in flight attaches to that fetch.
func (r *Resolver) Expand(ctx context.Context, externalID string) {
	r.mu.Lock()
	e := r.ensureLocked(externalID)
	e.expanded = true
	r.startFetchLocked(ctx, e)
	r.mu.Unlock()
}

// Resolve expands the reference and blocks until it reaches a terminal state.
// Returns nil once resolved, the fetch error on failure, or ctx.Err on
// cancellation. Resolved content is never refetched.
func (r *Resolver) Resolve(ctx context.Context, externalID string) error {
	r.mu.Lock()
	e := r.ensureLocked(externalID)
	e.expanded = true
	if e.state() == StateResolved {
		r.mu.Unlock()
		return nil
	}
	done := make(chan error, 1)
	r.waiters[externalID] = append(r.waiters[externalID], done)
	r.startFetchLocked(ctx, e)
	r.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Collapse folds the reference back down. Resolved content is retained, so a
// later re-expand never refetches.
func (r *Resolver) Collapse(externalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[externalID]; ok {
		e.expanded = false
	}
}

func (r *Resolver) ensureLocked(externalID string) *entry {
	e, ok := r.entries[externalID]
	if !ok {
		e = newEntry(externalID)
		r.entries[externalID] = e
	}
	return e
}

// startFetchLocked fires the expand trigger and launches the fetch goroutine
// when the entry actually moved into fetching. In the fetching and resolved
// states the trigger is ignored, so at most one fetch per id is ever in
// flight.
func (r *Resolver) startFetchLocked(ctx context.Context, e *entry) {
	before := e.state()
	if err := e.fsm.Fire(triggerExpand); err != nil {
		r.logger.Error("reference state machine rejected expand", "external_id", e.id, "state", before, "error", err)
		return
	}
	if before == StateFetching || e.state() != StateFetching {
		return
	}
	gen := r.generation
	go r.fetch(ctx, e.id, gen)
}

func (r *Resolver) fetch(ctx context.Context, externalID string, gen uint64) {
	content, err := r.fetcher.FetchExternalPost(ctx, externalID)

	r.mu.Lock()
	if r.generation != gen {
		// The conversation changed mid-flight. Drop the result; the waiters
		// were already failed by Reset.
		r.mu.Unlock()
		r.logger.Debug("discarding stale reference result", "external_id", externalID)
		metrics.ReferenceFetches.WithLabelValues("stale").Inc()
		return
	}
	e, ok := r.entries[externalID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if err != nil {
		e.lastErr = err
		if ferr := e.fsm.Fire(triggerFetchFailure); ferr != nil {
			r.logger.Error("reference state machine rejected failure", "external_id", externalID, "error", ferr)
		}
		metrics.ReferenceFetches.WithLabelValues("failed").Inc()
		r.logger.Warn("reference fetch failed", "external_id", externalID, "error", err)
	} else {
		e.content = content
		e.lastErr = nil
		if ferr := e.fsm.Fire(triggerFetchSuccess); ferr != nil {
			r.logger.Error("reference state machine rejected success", "external_id", externalID, "error", ferr)
		}
		metrics.ReferenceFetches.WithLabelValues("resolved").Inc()
	}

	waiters := r.waiters[externalID]
	delete(r.waiters, externalID)
	onChange := r.onChange
	r.mu.Unlock()

	for _, ch := range waiters {
		if err != nil {
			ch <- fmt.Errorf("fetch external post %s: %w", externalID, err)
		} else {
			ch <- nil
		}
	}
	if onChange != nil {
		onChange(externalID)
	}
}
