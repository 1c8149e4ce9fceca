package message

import (
	"fmt"
	"time"
)

// ChannelType identifies which social/messaging channel a message came from.
type ChannelType string

const (
	ChannelDirectMessage ChannelType = "direct_message"
	ChannelPageMessage   ChannelType = "page_message"
	ChannelPageFeedPost  ChannelType = "page_feed_post"
	ChannelPublicPost    ChannelType = "public_post"
	ChannelComment       ChannelType = "comment"
	ChannelChatMessage   ChannelType = "chat_message"
)

// Kind is the tagged variant of a message's payload.
type Kind string

const (
	KindText         Kind = "text"
	KindMedia        Kind = "media"
	KindSystemNotice Kind = "system_notice"
	KindSocialPost   Kind = "social_post"
	KindStatusUpdate Kind = "status_update"
)

// Class buckets kinds for grouping decisions: plain chat bubbles group with
// each other, notices and post-shaped messages do not group across the
// boundary.
type Class string

const (
	ClassBubble Class = "bubble"
	ClassNotice Class = "notice"
	ClassPost   Class = "post"
)

func (k Kind) Class() Class {
	switch k {
	case KindText, KindMedia:
		return ClassBubble
	case KindSystemNotice:
		return ClassNotice
	case KindSocialPost, KindStatusUpdate:
		return ClassPost
	default:
		return ClassBubble
	}
}

// AuthorRole is derived from the sender relative to the conversation, never
// stored verbatim from the raw record.
type AuthorRole string

const (
	RoleOwnAccount AuthorRole = "own_account"
	RoleCustomer   AuthorRole = "customer"
	RoleThirdParty AuthorRole = "third_party"
)

// LifecycleStatus is the channel-dependent moderation state.
type LifecycleStatus string

const (
	LifecycleActive  LifecycleStatus = "active"
	LifecycleRemoved LifecycleStatus = "removed"
	LifecycleHidden  LifecycleStatus = "hidden"
)

// DeliveryStatus is only meaningful for own-account messages. The zero value
// means "not applicable".
type DeliveryStatus string

const (
	DeliverySending DeliveryStatus = "sending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryRead    DeliveryStatus = "read"
	DeliveryFailed  DeliveryStatus = "failed"
)

// References points at externally-authored content that may or may not be
// present in the loaded window.
type References struct {
	QuotedID    string `json:"quoted_id,omitempty"`
	InReplyToID string `json:"in_reply_to_id,omitempty"`
}

// External returns the single external id a message hangs off, quoted content
// taking precedence over the reply target.
func (r References) External() string {
	if r.QuotedID != "" {
		return r.QuotedID
	}
	return r.InReplyToID
}

// Attachment is one media item carried by a media-kind message.
type Attachment struct {
	Type       string `json:"type"` // "image", "video", "audio", "file", "sticker"
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// SocialPost is the structured payload of social_post and status_update kinds.
type SocialPost struct {
	AuthorName   string `json:"author_name"`
	AuthorHandle string `json:"author_handle,omitempty"`
	Body         string `json:"body"`
	Likes        int    `json:"likes,omitempty"`
	Shares       int    `json:"shares,omitempty"`
	PermalinkURL string `json:"permalink_url,omitempty"`
}

// Message is the normalized, channel-agnostic representation of one
// conversation event.
type Message struct {
	ID          string          `json:"id"`
	Channel     ChannelType     `json:"channel"`
	SenderID    string          `json:"sender_id"`
	Role        AuthorRole      `json:"role"`
	Timestamp   time.Time       `json:"timestamp"`
	Kind        Kind            `json:"kind"`
	Text        string          `json:"text,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	Post        *SocialPost     `json:"post,omitempty"`
	Lifecycle   LifecycleStatus `json:"lifecycle"`
	Refs        References      `json:"refs,omitempty"`
	Delivery    DeliveryStatus  `json:"delivery,omitempty"`
}

// DegradedPlaceholder is the body given to messages degraded from records the
// adapters could not fully parse.
const DegradedPlaceholder = "[unsupported message]"

// Validate enforces that the kind's required payload fields are present.
// Adapters must never emit a message that fails Validate; malformed input is
// degraded to a text placeholder instead.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message has no id")
	}
	switch m.Kind {
	case KindText:
		// A text body may legitimately be empty (placeholder messages).
	case KindMedia:
		if len(m.Attachments) == 0 {
			return fmt.Errorf("media message %s has no attachments", m.ID)
		}
	case KindSystemNotice:
		if m.Text == "" {
			return fmt.Errorf("system notice %s has no text", m.ID)
		}
	case KindSocialPost, KindStatusUpdate:
		if m.Post == nil {
			return fmt.Errorf("%s message %s has no post payload", m.Kind, m.ID)
		}
	default:
		return fmt.Errorf("message %s has unknown kind %q", m.ID, m.Kind)
	}
	return nil
}

// Degrade builds the placeholder text message substituted for a record that
// could not be normalized. The identity fields survive so pagination counts
// and ordering stay intact.
func Degrade(channel ChannelType, id, senderID string, role AuthorRole, ts time.Time) Message {
	return Message{
		ID:        id,
		Channel:   channel,
		SenderID:  senderID,
		Role:      role,
		Timestamp: ts,
		Kind:      KindText,
		Text:      DegradedPlaceholder,
		Lifecycle: LifecycleActive,
	}
}

// SameDay reports whether two instants fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// SameMinute reports whether two instants fall within the same clock minute.
func SameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}

// DayOf truncates an instant to the start of its calendar day, preserving the
// location. Used for date separators.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
