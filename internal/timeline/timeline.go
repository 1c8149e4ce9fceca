// Package timeline turns a channel's ordered canonical messages into the
// render-ready entry list: date separators, interleaved reference
// placeholders, and grouping-annotated message entries. The assembler
// exclusively owns construction of this list; consumers treat it as
// read-only.
package timeline

import (
	"time"

	"github.com/MikeSquared-Agency/loom/internal/grouping"
	"github.com/MikeSquared-Agency/loom/internal/message"
	"github.com/MikeSquared-Agency/loom/internal/metrics"
	"github.com/MikeSquared-Agency/loom/internal/refcache"
)

// EntryKind discriminates the render-ready entry variants.
type EntryKind string

const (
	KindDateSeparator EntryKind = "date_separator"
	KindMessage       EntryKind = "message"
	KindReferencePost EntryKind = "reference_post"
)

// Entry is one render-ready timeline item.
type Entry struct {
	Kind EntryKind `json:"kind"`

	// KindDateSeparator
	Date time.Time `json:"date,omitempty"`

	// KindMessage
	Message  *message.Message `json:"message,omitempty"`
	Grouping grouping.Flags   `json:"grouping,omitempty"`

	// KindReferencePost
	Ref *refcache.Snapshot `json:"ref,omitempty"`
	// AnchorIndex is the input index of the message this placeholder
	// precedes.
	AnchorIndex int `json:"anchor_index,omitempty"`
	// Layout is the render budget in effect when the entry was assembled.
	Layout Layout `json:"layout,omitempty"`
}

// RefSource is the slice of the reference cache the assembler needs: ensure a
// placeholder entry exists and read its snapshot. Satisfied by
// *refcache.Resolver.
type RefSource interface {
	Placeholder(externalID string) refcache.Snapshot
}

// Layout is the explicit render-budget parameter threaded into assembly
// instead of ambient context reads. Width is in device-independent pixels and
// is stamped onto reference entries for the presentation layer's truncation
// decisions.
type Layout struct {
	Width int
}

// Options controls a single assembly pass.
type Options struct {
	// OpeningRefID is the conversation's designated opening post; it never
	// receives an inline placeholder.
	OpeningRefID string
	Layout       Layout
}

// Assemble walks the channel's messages in delivered (chronological) order and
// emits the render-ready list. Message relative order is always preserved;
// re-running over the same input yields an identical list.
func Assemble(msgs []message.Message, refs RefSource, opts Options) []Entry {
	metrics.Assemblies.Inc()
	if len(msgs) == 0 {
		return nil
	}

	placeholders := placeholderPlan(msgs, opts.OpeningRefID)

	out := make([]Entry, 0, len(msgs)+len(msgs)/4+2)
	var prevTS time.Time
	emitted := false

	for i := range msgs {
		m := &msgs[i]

		if !emitted || !message.SameDay(prevTS, m.Timestamp) {
			out = append(out, Entry{Kind: KindDateSeparator, Date: message.DayOf(m.Timestamp)})
		}
		emitted = true
		prevTS = m.Timestamp

		if id := placeholders[i]; id != "" {
			snap := refs.Placeholder(id)
			out = append(out, Entry{Kind: KindReferencePost, Ref: &snap, AnchorIndex: i, Layout: opts.Layout})
		}

		var prev, next *message.Message
		if i > 0 {
			prev = &msgs[i-1]
		}
		if i < len(msgs)-1 {
			next = &msgs[i+1]
		}
		flags := grouping.Compute(m, prev, next)
		if i == 0 {
			// The very first message of a channel has no true previous;
			// sender and profile always show.
			flags = grouping.Flags{}
		}
		// An interleaved foreign post re-establishes attribution context on
		// both sides.
		if placeholders[i] != "" {
			flags.HideSender = false
		}
		if i+1 < len(msgs) && placeholders[i+1] != "" {
			flags.HideProfile = false
		}

		out = append(out, Entry{Kind: KindMessage, Message: m, Grouping: flags})
	}

	return out
}

// placeholderPlan decides, per message index, which external id (if any) gets
// a reference placeholder inserted immediately before it. No placeholder when
// the target is already loaded, when it is the conversation-opening post, or
// when the same id's placeholder already sits immediately before (a reply run
// shares one placeholder).
func placeholderPlan(msgs []message.Message, openingRefID string) []string {
	loaded := make(map[string]bool, len(msgs))
	for i := range msgs {
		loaded[msgs[i].ID] = true
	}

	plan := make([]string, len(msgs))
	run := "" // id of the placeholder already visible above the current run
	for i := range msgs {
		ext := msgs[i].Refs.External()
		if ext == "" || ext == openingRefID || loaded[ext] {
			run = ""
			continue
		}
		if ext == run {
			// A run of consecutive messages replying to the same target
			// shares the single placeholder above the run.
			continue
		}
		plan[i] = ext
		run = ext
	}
	return plan
}
