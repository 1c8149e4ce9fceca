package adapters

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/loom/internal/message"
)

// graphTimeLayout is the timestamp format used by Graph-style records.
const graphTimeLayout = "2006-01-02T15:04:05-0700"

// graphMessage is a single direct or page message as delivered by the
// Graph-style inbox endpoints.
type graphMessage struct {
	ID   string `json:"id"`
	From struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
	CreatedTime string `json:"created_time"`
	Message     string `json:"message"`
	Attachments struct {
		Data []graphAttachment `json:"data"`
	} `json:"attachments"`
	IsDeleted     bool `json:"is_deleted"`
	IsUnsupported bool `json:"is_unsupported"`
}

type graphAttachment struct {
	MimeType string `json:"mime_type"`
	ImageData struct {
		URL        string `json:"url"`
		PreviewURL string `json:"preview_url"`
	} `json:"image_data"`
	FileURL string `json:"file_url"`
	VideoData struct {
		URL string `json:"url"`
	} `json:"video_data"`
}

// directAdapter normalizes direct messages and page messages; the two streams
// share the Graph record shape and differ only in channel type.
type directAdapter struct {
	channel  message.ChannelType
	identity Identity
	logger   *slog.Logger
}

func init() {
	Register(message.ChannelDirectMessage, func(id Identity, l *slog.Logger) Adapter {
		return &directAdapter{channel: message.ChannelDirectMessage, identity: id, logger: l}
	})
	Register(message.ChannelPageMessage, func(id Identity, l *slog.Logger) Adapter {
		return &directAdapter{channel: message.ChannelPageMessage, identity: id, logger: l}
	})
}

func (a *directAdapter) ChannelType() message.ChannelType { return a.channel }

func (a *directAdapter) Normalize(records []json.RawMessage) []message.Message {
	out := make([]message.Message, 0, len(records))
	for i, raw := range records {
		out = append(out, a.normalizeOne(raw, i))
	}
	return out
}

func (a *directAdapter) normalizeOne(raw json.RawMessage, idx int) message.Message {
	var rec graphMessage
	if err := json.Unmarshal(raw, &rec); err != nil {
		id := fmt.Sprintf("%s-unparsed-%d", a.channel, idx)
		return degrade(a.channel, id, "", message.RoleThirdParty, time.Time{}, a.logger, "unmarshal: "+err.Error())
	}

	ts, tsErr := time.Parse(graphTimeLayout, rec.CreatedTime)
	role := a.identity.Role(rec.From.ID)

	if rec.ID == "" || tsErr != nil {
		id := rec.ID
		if id == "" {
			id = fmt.Sprintf("%s-unparsed-%d", a.channel, idx)
		}
		return degrade(a.channel, id, rec.From.ID, role, ts, a.logger, "missing id or bad created_time")
	}

	if rec.IsUnsupported {
		return degrade(a.channel, rec.ID, rec.From.ID, role, ts, a.logger, "record flagged unsupported")
	}

	m := message.Message{
		ID:        rec.ID,
		Channel:   a.channel,
		SenderID:  rec.From.ID,
		Role:      role,
		Timestamp: ts,
		Lifecycle: message.LifecycleActive,
	}
	if rec.IsDeleted {
		m.Lifecycle = message.LifecycleRemoved
	}

	switch {
	case len(rec.Attachments.Data) > 0:
		m.Kind = message.KindMedia
		m.Text = rec.Message
		m.Attachments = graphAttachments(rec.Attachments.Data)
	case rec.Message != "" || rec.IsDeleted:
		m.Kind = message.KindText
		m.Text = rec.Message
	default:
		return degrade(a.channel, rec.ID, rec.From.ID, role, ts, a.logger, "record carries no renderable payload")
	}

	if err := m.Validate(); err != nil {
		return degrade(a.channel, rec.ID, rec.From.ID, role, ts, a.logger, err.Error())
	}
	return m
}

// Direct message streams carry no quote/reply linkage.
func (a *directAdapter) ExtractReferences(json.RawMessage) message.References {
	return message.References{}
}

func graphAttachments(data []graphAttachment) []message.Attachment {
	out := make([]message.Attachment, 0, len(data))
	for _, att := range data {
		switch {
		case att.ImageData.URL != "":
			out = append(out, message.Attachment{Type: "image", URL: att.ImageData.URL, PreviewURL: att.ImageData.PreviewURL})
		case att.VideoData.URL != "":
			out = append(out, message.Attachment{Type: "video", URL: att.VideoData.URL})
		case att.FileURL != "":
			out = append(out, message.Attachment{Type: "file", URL: att.FileURL})
		}
	}
	return out
}
