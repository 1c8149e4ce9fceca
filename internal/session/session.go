// Package session owns one conversation's in-memory timeline: the ordered
// canonical messages, the reference cache, the scroll controller, and the
// generation guard that drops late results after a conversation switch.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/loom/internal/adapters"
	"github.com/MikeSquared-Agency/loom/internal/message"
	"github.com/MikeSquared-Agency/loom/internal/refcache"
	"github.com/MikeSquared-Agency/loom/internal/scroll"
	"github.com/MikeSquared-Agency/loom/internal/source"
	"github.com/MikeSquared-Agency/loom/internal/timeline"
)

// ErrNoAdapter is returned when a conversation names a channel type no
// adapter is registered for.
var ErrNoAdapter = errors.New("no adapter registered for channel type")

// ErrStaleLoad marks an older-page result that arrived after the session
// switched conversations; the result is discarded.
var ErrStaleLoad = errors.New("older page arrived for a superseded conversation")

// Config wires a session's collaborators.
type Config struct {
	ConversationID uuid.UUID
	ChannelID      string
	Channel        message.ChannelType
	Identity       adapters.Identity
	// OpeningRefID is the conversation-opening post id; it never gets an
	// inline placeholder.
	OpeningRefID string
	Layout       timeline.Layout

	Source   source.Source
	Fetcher  refcache.Fetcher
	Viewport scroll.Viewport
	Logger   *slog.Logger

	PageSize   int
	NearEdgePx float64
}

// Session is safe for use by one consumer plus the asynchronous fetch
// completions; all mutation happens under one lock.
type Session struct {
	cfg        Config
	adapter    adapters.Adapter
	resolver   *refcache.Resolver
	controller *scroll.Controller
	logger     *slog.Logger

	mu         sync.Mutex
	msgs       []message.Message
	cursor     string
	generation uint64
	entries    []timeline.Entry
}

func New(cfg Config) (*Session, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.NearEdgePx <= 0 {
		cfg.NearEdgePx = 80
	}
	adapter, ok := adapters.For(cfg.Channel, cfg.Identity, cfg.Logger)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, cfg.Channel)
	}

	s := &Session{
		cfg:        cfg,
		adapter:    adapter,
		resolver:   refcache.New(cfg.Fetcher, cfg.Logger),
		controller: scroll.New(cfg.Viewport, cfg.NearEdgePx, cfg.Logger),
		logger:     cfg.Logger,
	}
	// Re-assemble in place when a reference fetch lands; resolution only
	// substitutes placeholder content, never reorders messages.
	s.resolver.SetOnChange(func(string) {
		s.mu.Lock()
		s.reassembleLocked()
		s.mu.Unlock()
	})
	return s, nil
}

// LoadInitial fetches the newest page and pins the viewport to the bottom.
func (s *Session) LoadInitial(ctx context.Context) error {
	page, err := s.cfg.Source.FetchOlderPage(ctx, s.cfg.ChannelID, "", s.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("fetch initial page: %w", err)
	}

	s.mu.Lock()
	s.msgs = s.adapter.Normalize(page.Records)
	s.cursor = page.NextCursor
	s.reassembleLocked()
	s.mu.Unlock()

	if page.End {
		// Single-page conversations have no older history to pull.
		s.controller.LatchEndOfHistory()
	}
	s.controller.ScrollToBottom()
	return nil
}

// Timeline returns the current render-ready list. The returned slice is a
// copy; entries are read-only to consumers.
func (s *Session) Timeline() []timeline.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]timeline.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Messages returns a copy of the loaded canonical messages, oldest first.
func (s *Session) Messages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// NotifyNearTop is the viewport host's near-top hook. It starts a backward
// page load off the caller's goroutine and returns immediately; the outcome
// surfaces through the timeline and the controller.
func (s *Session) NotifyNearTop(ctx context.Context) {
	go func() {
		if err := s.LoadOlder(ctx); err != nil {
			s.logger.Warn("older page load failed", "channel_id", s.cfg.ChannelID, "error", err)
		}
	}()
}

// LoadOlder runs one backward-pagination cycle synchronously: fetch, prepend,
// re-assemble. The scroll anchor is applied when the host reports the
// post-render content height. A failure leaves messages and offset untouched;
// scrolling near the top again retries.
func (s *Session) LoadOlder(ctx context.Context) error {
	if !s.controller.Begin() {
		return nil
	}

	s.mu.Lock()
	gen := s.generation
	cursor := s.cursor
	channelID := s.cfg.ChannelID
	src := s.cfg.Source
	s.mu.Unlock()

	page, err := src.FetchOlderPage(ctx, channelID, cursor, s.cfg.PageSize)
	if err != nil {
		s.controller.Finish(err, false)
		return fmt.Errorf("fetch older page: %w", err)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.controller.Cancel()
		s.logger.Debug("discarding stale older page", "channel_id", channelID)
		return ErrStaleLoad
	}
	if len(page.Records) > 0 {
		older := s.adapter.Normalize(page.Records)
		// Older pages are prepended, never spliced mid-stream.
		s.msgs = append(older, s.msgs...)
		s.reassembleLocked()
	}
	s.cursor = page.NextCursor
	s.mu.Unlock()

	s.controller.Finish(nil, page.End)
	return nil
}

// OnContentHeightChange is forwarded from the viewport host after layout
// settles; it completes the pending anchor adjustment, if any.
func (s *Session) OnContentHeightChange(newHeight float64) {
	s.controller.OnContentHeightChange(newHeight)
}

// AppendLive appends one newly delivered raw record at the bottom. The
// viewport follows only when it was already near the bottom.
func (s *Session) AppendLive(record json.RawMessage) {
	wasNearBottom := s.controller.NearBottom()

	s.mu.Lock()
	msgs := s.adapter.Normalize([]json.RawMessage{record})
	s.msgs = append(s.msgs, msgs...)
	s.reassembleLocked()
	s.mu.Unlock()

	if wasNearBottom {
		s.controller.ScrollToBottom()
	}
}

// Expand lazily resolves an external reference and re-assembles once the
// expansion flag (and later the fetched content) is visible.
func (s *Session) Expand(ctx context.Context, externalID string) {
	s.resolver.Expand(ctx, externalID)
	s.mu.Lock()
	s.reassembleLocked()
	s.mu.Unlock()
}

// Resolve is Expand that waits for the terminal state. A failure is
// recoverable and scoped to this reference; the placeholder stays collapsed.
func (s *Session) Resolve(ctx context.Context, externalID string) error {
	err := s.resolver.Resolve(ctx, externalID)
	s.mu.Lock()
	s.reassembleLocked()
	s.mu.Unlock()
	return err
}

// Collapse folds a reference back down without discarding resolved content.
func (s *Session) Collapse(externalID string) {
	s.resolver.Collapse(externalID)
	s.mu.Lock()
	s.reassembleLocked()
	s.mu.Unlock()
}

// Reference exposes a reference snapshot to the presentation layer.
func (s *Session) Reference(externalID string) (refcache.Snapshot, bool) {
	return s.resolver.Lookup(externalID)
}

// EndOfHistory reports whether the channel's full history is loaded.
func (s *Session) EndOfHistory() bool {
	return s.controller.EndOfHistory()
}

// Loading reports whether a backward page load is in flight.
func (s *Session) Loading() bool {
	return s.controller.Loading()
}

// ScrollToBottom pins the viewport to the newest content.
func (s *Session) ScrollToBottom() {
	s.controller.ScrollToBottom()
}

// Reset switches the session to a different conversation context. Any
// in-flight older-page or reference result for the old context fails the
// generation check and is dropped.
func (s *Session) Reset(channelID string, channel message.ChannelType, openingRefID string) error {
	adapter, ok := adapters.For(channel, s.cfg.Identity, s.cfg.Logger)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAdapter, channel)
	}

	s.mu.Lock()
	s.generation++
	s.cfg.ChannelID = channelID
	s.cfg.Channel = channel
	s.cfg.OpeningRefID = openingRefID
	s.adapter = adapter
	s.msgs = nil
	s.cursor = ""
	s.entries = nil
	s.mu.Unlock()

	s.resolver.Reset()
	s.controller.ResetHistory()
	return nil
}

// reassembleLocked rebuilds the render-ready list. Callers hold s.mu.
func (s *Session) reassembleLocked() {
	s.entries = timeline.Assemble(s.msgs, s.resolver, timeline.Options{
		OpeningRefID: s.cfg.OpeningRefID,
		Layout:       s.cfg.Layout,
	})
}
