package adapters

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/loom/internal/message"
)

// chatRecord is a WhatsApp-style message. Timestamps are epoch milliseconds.
type chatRecord struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	FromMe    bool   `json:"from_me"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"` // "text", "image", "video", "audio", "document", "notification"
	Body      string `json:"body"`
	Caption   string `json:"caption"`
	MediaURL  string `json:"media_url"`
	Status    string `json:"status"` // "sending", "sent", "delivered", "read", "failed"
	Revoked   bool   `json:"revoked"`
}

type chatAdapter struct {
	identity Identity
	logger   *slog.Logger
}

func init() {
	Register(message.ChannelChatMessage, func(id Identity, l *slog.Logger) Adapter {
		return &chatAdapter{identity: id, logger: l}
	})
}

func (a *chatAdapter) ChannelType() message.ChannelType { return message.ChannelChatMessage }

func (a *chatAdapter) Normalize(records []json.RawMessage) []message.Message {
	out := make([]message.Message, 0, len(records))
	for i, raw := range records {
		out = append(out, a.normalizeOne(raw, i))
	}
	return out
}

func (a *chatAdapter) normalizeOne(raw json.RawMessage, idx int) message.Message {
	var rec chatRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		id := fmt.Sprintf("%s-unparsed-%d", message.ChannelChatMessage, idx)
		return degrade(message.ChannelChatMessage, id, "", message.RoleThirdParty, time.Time{}, a.logger, "unmarshal: "+err.Error())
	}

	role := a.identity.Role(rec.Author)
	if rec.FromMe {
		role = message.RoleOwnAccount
	}

	if rec.ID == "" || rec.Timestamp == 0 {
		id := rec.ID
		if id == "" {
			id = fmt.Sprintf("%s-unparsed-%d", message.ChannelChatMessage, idx)
		}
		return degrade(message.ChannelChatMessage, id, rec.Author, role, time.Time{}, a.logger, "missing id or timestamp")
	}
	ts := time.UnixMilli(rec.Timestamp).UTC()

	m := message.Message{
		ID:        rec.ID,
		Channel:   message.ChannelChatMessage,
		SenderID:  rec.Author,
		Role:      role,
		Timestamp: ts,
		Lifecycle: message.LifecycleActive,
	}
	if rec.Revoked {
		m.Lifecycle = message.LifecycleRemoved
	}
	// Delivery status only means anything on own-account messages.
	if rec.FromMe {
		m.Delivery = deliveryStatus(rec.Status)
	}

	switch rec.Type {
	case "text", "":
		m.Kind = message.KindText
		m.Text = rec.Body
		if rec.Body == "" && !rec.Revoked {
			return degrade(message.ChannelChatMessage, rec.ID, rec.Author, role, ts, a.logger, "text message with no body")
		}
	case "image", "video", "audio", "document", "sticker":
		m.Kind = message.KindMedia
		m.Text = rec.Caption
		m.Attachments = []message.Attachment{{Type: rec.Type, URL: rec.MediaURL}}
	case "notification":
		m.Kind = message.KindSystemNotice
		m.Text = rec.Body
	default:
		return degrade(message.ChannelChatMessage, rec.ID, rec.Author, role, ts, a.logger, "unknown type "+rec.Type)
	}

	if err := m.Validate(); err != nil {
		return degrade(message.ChannelChatMessage, rec.ID, rec.Author, role, ts, a.logger, err.Error())
	}
	return m
}

func (a *chatAdapter) ExtractReferences(json.RawMessage) message.References {
	return message.References{}
}

func deliveryStatus(s string) message.DeliveryStatus {
	switch s {
	case "sending":
		return message.DeliverySending
	case "sent", "delivered":
		return message.DeliverySent
	case "read":
		return message.DeliveryRead
	case "failed":
		return message.DeliveryFailed
	default:
		return ""
	}
}
