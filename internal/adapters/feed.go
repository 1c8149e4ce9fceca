package adapters

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/loom/internal/message"
)

// feedPost is a page feed post or comment-on-post record.
type feedPost struct {
	ID   string `json:"id"`
	From struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
	CreatedTime string `json:"created_time"`
	Message     string `json:"message"`
	Story       string `json:"story"` // system-generated line, e.g. "Page updated its cover photo."
	Permalink   string `json:"permalink_url"`
	IsHidden    bool   `json:"is_hidden"`
	Attachments struct {
		Data []graphAttachment `json:"data"`
	} `json:"attachments"`
	Reactions struct {
		Summary struct {
			TotalCount int `json:"total_count"`
		} `json:"summary"`
	} `json:"reactions"`
	Shares struct {
		Count int `json:"count"`
	} `json:"shares"`
}

type feedAdapter struct {
	identity Identity
	logger   *slog.Logger
}

func init() {
	Register(message.ChannelPageFeedPost, func(id Identity, l *slog.Logger) Adapter {
		return &feedAdapter{identity: id, logger: l}
	})
}

func (a *feedAdapter) ChannelType() message.ChannelType { return message.ChannelPageFeedPost }

func (a *feedAdapter) Normalize(records []json.RawMessage) []message.Message {
	out := make([]message.Message, 0, len(records))
	for i, raw := range records {
		out = append(out, a.normalizeOne(raw, i))
	}
	return out
}

func (a *feedAdapter) normalizeOne(raw json.RawMessage, idx int) message.Message {
	var rec feedPost
	if err := json.Unmarshal(raw, &rec); err != nil {
		id := fmt.Sprintf("%s-unparsed-%d", message.ChannelPageFeedPost, idx)
		return degrade(message.ChannelPageFeedPost, id, "", message.RoleThirdParty, time.Time{}, a.logger, "unmarshal: "+err.Error())
	}

	ts, tsErr := time.Parse(graphTimeLayout, rec.CreatedTime)
	role := a.identity.Role(rec.From.ID)

	if rec.ID == "" || tsErr != nil {
		id := rec.ID
		if id == "" {
			id = fmt.Sprintf("%s-unparsed-%d", message.ChannelPageFeedPost, idx)
		}
		return degrade(message.ChannelPageFeedPost, id, rec.From.ID, role, ts, a.logger, "missing id or bad created_time")
	}

	m := message.Message{
		ID:        rec.ID,
		Channel:   message.ChannelPageFeedPost,
		SenderID:  rec.From.ID,
		Role:      role,
		Timestamp: ts,
		Lifecycle: message.LifecycleActive,
	}
	if rec.IsHidden {
		m.Lifecycle = message.LifecycleHidden
	}

	switch {
	case len(rec.Attachments.Data) > 0:
		m.Kind = message.KindMedia
		m.Text = rec.Message
		m.Attachments = graphAttachments(rec.Attachments.Data)
	case rec.Message != "":
		m.Kind = message.KindSocialPost
		m.Post = &message.SocialPost{
			AuthorName:   rec.From.Name,
			Body:         rec.Message,
			Likes:        rec.Reactions.Summary.TotalCount,
			Shares:       rec.Shares.Count,
			PermalinkURL: rec.Permalink,
		}
	case rec.Story != "":
		m.Kind = message.KindSystemNotice
		m.Text = rec.Story
	default:
		return degrade(message.ChannelPageFeedPost, rec.ID, rec.From.ID, role, ts, a.logger, "record carries no renderable payload")
	}

	if err := m.Validate(); err != nil {
		return degrade(message.ChannelPageFeedPost, rec.ID, rec.From.ID, role, ts, a.logger, err.Error())
	}
	return m
}

func (a *feedAdapter) ExtractReferences(json.RawMessage) message.References {
	return message.References{}
}
