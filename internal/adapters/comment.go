package adapters

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/loom/internal/message"
)

// mediaComment is an image-sharing platform comment.
type mediaComment struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"` // RFC 3339
	Text      string `json:"text"`
	Hidden    bool   `json:"hidden"`
	ParentID  string `json:"parent_comment_id"`
	MediaType string `json:"media_type"` // set when the comment itself carries media
	MediaURL  string `json:"media_url"`
}

type commentAdapter struct {
	identity Identity
	logger   *slog.Logger
}

func init() {
	Register(message.ChannelComment, func(id Identity, l *slog.Logger) Adapter {
		return &commentAdapter{identity: id, logger: l}
	})
}

func (a *commentAdapter) ChannelType() message.ChannelType { return message.ChannelComment }

func (a *commentAdapter) Normalize(records []json.RawMessage) []message.Message {
	out := make([]message.Message, 0, len(records))
	for i, raw := range records {
		out = append(out, a.normalizeOne(raw, i))
	}
	return out
}

func (a *commentAdapter) normalizeOne(raw json.RawMessage, idx int) message.Message {
	var rec mediaComment
	if err := json.Unmarshal(raw, &rec); err != nil {
		id := fmt.Sprintf("%s-unparsed-%d", message.ChannelComment, idx)
		return degrade(message.ChannelComment, id, "", message.RoleThirdParty, time.Time{}, a.logger, "unmarshal: "+err.Error())
	}

	ts, tsErr := time.Parse(time.RFC3339, rec.Timestamp)
	role := a.identity.Role(rec.UserID)

	if rec.ID == "" || tsErr != nil {
		id := rec.ID
		if id == "" {
			id = fmt.Sprintf("%s-unparsed-%d", message.ChannelComment, idx)
		}
		return degrade(message.ChannelComment, id, rec.UserID, role, ts, a.logger, "missing id or bad timestamp")
	}

	m := message.Message{
		ID:        rec.ID,
		Channel:   message.ChannelComment,
		SenderID:  rec.UserID,
		Role:      role,
		Timestamp: ts,
		Kind:      message.KindText,
		Text:      rec.Text,
		Lifecycle: message.LifecycleActive,
		Refs:      message.References{InReplyToID: rec.ParentID},
	}
	if rec.Hidden {
		m.Lifecycle = message.LifecycleHidden
	}
	if rec.MediaURL != "" {
		m.Kind = message.KindMedia
		m.Attachments = []message.Attachment{{Type: rec.MediaType, URL: rec.MediaURL}}
	}

	if err := m.Validate(); err != nil {
		return degrade(message.ChannelComment, rec.ID, rec.UserID, role, ts, a.logger, err.Error())
	}
	return m
}

func (a *commentAdapter) ExtractReferences(record json.RawMessage) message.References {
	var rec mediaComment
	if err := json.Unmarshal(record, &rec); err != nil {
		return message.References{}
	}
	return message.References{InReplyToID: rec.ParentID}
}
