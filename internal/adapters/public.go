package adapters

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/loom/internal/message"
)

// publicPost is a public micro-blog status with quote/reply linkage.
// Timestamps arrive in the classic "Mon Jan 02 15:04:05 -0700 2006" form.
type publicPost struct {
	IDStr string `json:"id_str"`
	User  struct {
		IDStr      string `json:"id_str"`
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	CreatedAt            string `json:"created_at"`
	FullText             string `json:"full_text"`
	QuotedStatusIDStr    string `json:"quoted_status_id_str"`
	InReplyToStatusIDStr string `json:"in_reply_to_status_id_str"`
	FavoriteCount        int    `json:"favorite_count"`
	RetweetCount         int    `json:"retweet_count"`
	WithheldEverywhere   bool   `json:"withheld_everywhere"`
	Entities             struct {
		Media []struct {
			Type     string `json:"type"`
			MediaURL string `json:"media_url_https"`
		} `json:"media"`
	} `json:"entities"`
}

type publicAdapter struct {
	identity Identity
	logger   *slog.Logger
}

func init() {
	Register(message.ChannelPublicPost, func(id Identity, l *slog.Logger) Adapter {
		return &publicAdapter{identity: id, logger: l}
	})
}

func (a *publicAdapter) ChannelType() message.ChannelType { return message.ChannelPublicPost }

func (a *publicAdapter) Normalize(records []json.RawMessage) []message.Message {
	out := make([]message.Message, 0, len(records))
	for i, raw := range records {
		out = append(out, a.normalizeOne(raw, i))
	}
	return out
}

func (a *publicAdapter) normalizeOne(raw json.RawMessage, idx int) message.Message {
	var rec publicPost
	if err := json.Unmarshal(raw, &rec); err != nil {
		id := fmt.Sprintf("%s-unparsed-%d", message.ChannelPublicPost, idx)
		return degrade(message.ChannelPublicPost, id, "", message.RoleThirdParty, time.Time{}, a.logger, "unmarshal: "+err.Error())
	}

	ts, tsErr := time.Parse(time.RubyDate, rec.CreatedAt)
	role := a.identity.Role(rec.User.IDStr)

	if rec.IDStr == "" || tsErr != nil {
		id := rec.IDStr
		if id == "" {
			id = fmt.Sprintf("%s-unparsed-%d", message.ChannelPublicPost, idx)
		}
		return degrade(message.ChannelPublicPost, id, rec.User.IDStr, role, ts, a.logger, "missing id_str or bad created_at")
	}

	m := message.Message{
		ID:        rec.IDStr,
		Channel:   message.ChannelPublicPost,
		SenderID:  rec.User.IDStr,
		Role:      role,
		Timestamp: ts,
		Kind:      message.KindStatusUpdate,
		Lifecycle: message.LifecycleActive,
		Post: &message.SocialPost{
			AuthorName:   rec.User.Name,
			AuthorHandle: rec.User.ScreenName,
			Body:         rec.FullText,
			Likes:        rec.FavoriteCount,
			Shares:       rec.RetweetCount,
		},
		Refs: message.References{
			QuotedID:    rec.QuotedStatusIDStr,
			InReplyToID: rec.InReplyToStatusIDStr,
		},
	}
	if rec.WithheldEverywhere {
		m.Lifecycle = message.LifecycleRemoved
	}
	for _, med := range rec.Entities.Media {
		if med.MediaURL != "" {
			m.Attachments = append(m.Attachments, message.Attachment{Type: med.Type, URL: med.MediaURL})
		}
	}

	if err := m.Validate(); err != nil {
		return degrade(message.ChannelPublicPost, rec.IDStr, rec.User.IDStr, role, ts, a.logger, err.Error())
	}
	return m
}

func (a *publicAdapter) ExtractReferences(record json.RawMessage) message.References {
	var rec publicPost
	if err := json.Unmarshal(record, &rec); err != nil {
		return message.References{}
	}
	return message.References{
		QuotedID:    rec.QuotedStatusIDStr,
		InReplyToID: rec.InReplyToStatusIDStr,
	}
}
