package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/loom/internal/adapters"
	"github.com/MikeSquared-Agency/loom/internal/message"
	"github.com/MikeSquared-Agency/loom/internal/refcache"
	"github.com/MikeSquared-Agency/loom/internal/session"
	"github.com/MikeSquared-Agency/loom/internal/source"
	"github.com/MikeSquared-Agency/loom/internal/timeline"
)

// ErrUnknownConversation is returned for conversation ids the manager does not
// hold a session for.
var ErrUnknownConversation = errors.New("unknown conversation")

// OpenRequest names the channel context a new conversation session binds to.
type OpenRequest struct {
	ChannelID    string              `json:"channel_id"`
	Channel      message.ChannelType `json:"channel_type"`
	OwnAccountID string              `json:"own_account_id"`
	CustomerID   string              `json:"customer_id"`
	OpeningRefID string              `json:"opening_ref_id,omitempty"`
	LayoutWidth  int                 `json:"layout_width,omitempty"`
}

type managed struct {
	session   *session.Session
	viewport  *hostViewport
	channelID string
}

// Manager owns the live conversation sessions, keyed by conversation id, and
// fans live channel records out to the sessions following each channel.
type Manager struct {
	src      source.Source
	fetcher  refcache.Fetcher
	logger   *slog.Logger
	pageSize int
	nearEdge float64

	mu       sync.Mutex
	sessions map[uuid.UUID]*managed
}

func NewManager(src source.Source, fetcher refcache.Fetcher, pageSize, nearEdgePx int, logger *slog.Logger) *Manager {
	return &Manager{
		src:      src,
		fetcher:  fetcher,
		logger:   logger,
		pageSize: pageSize,
		nearEdge: float64(nearEdgePx),
		sessions: make(map[uuid.UUID]*managed),
	}
}

// Open creates a session for the requested channel, loads the newest page and
// returns the new conversation id.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (uuid.UUID, error) {
	id := uuid.New()
	vp := &hostViewport{}

	sess, err := session.New(session.Config{
		ConversationID: id,
		ChannelID:      req.ChannelID,
		Channel:        req.Channel,
		Identity:       adapters.Identity{OwnAccountID: req.OwnAccountID, CustomerID: req.CustomerID},
		OpeningRefID:   req.OpeningRefID,
		Layout:         timeline.Layout{Width: req.LayoutWidth},
		Source:         m.src,
		Fetcher:        m.fetcher,
		Viewport:       vp,
		Logger:         m.logger,
		PageSize:       m.pageSize,
		NearEdgePx:     m.nearEdge,
	})
	if err != nil {
		return uuid.Nil, err
	}
	if err := sess.LoadInitial(ctx); err != nil {
		return uuid.Nil, err
	}

	m.mu.Lock()
	m.sessions[id] = &managed{session: sess, viewport: vp, channelID: req.ChannelID}
	m.mu.Unlock()

	m.logger.Info("conversation opened",
		"conversation_id", id, "channel_id", req.ChannelID, "channel_type", req.Channel)
	return id, nil
}

func (m *Manager) get(id uuid.UUID) (*managed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mg, ok := m.sessions[id]
	return mg, ok
}

// Close drops the session for a conversation id.
func (m *Manager) Close(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// DispatchRecord routes one live raw record to every session following the
// channel. Wired as the live feed subscription handler.
func (m *Manager) DispatchRecord(channelID string, record json.RawMessage) {
	m.mu.Lock()
	var targets []*managed
	for _, mg := range m.sessions {
		if mg.channelID == channelID {
			targets = append(targets, mg)
		}
	}
	m.mu.Unlock()

	for _, mg := range targets {
		mg.session.AppendLive(record)
	}
}
