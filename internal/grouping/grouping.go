// Package grouping decides whether consecutive messages collapse their shared
// sender/profile UI chrome. Compute is pure: neighbors in, flags out.
package grouping

import (
	"github.com/MikeSquared-Agency/loom/internal/message"
)

// Flags are the per-message display-grouping annotations.
type Flags struct {
	HideSender  bool `json:"hide_sender"`
	HideProfile bool `json:"hide_profile"`
}

// Compute evaluates a message against its immediate neighbors in the same
// channel's ordered stream. prev and next may be nil at the stream edges.
//
// The sender line is hidden when the previous message is from the same sender
// on the same calendar day with a compatible kind. The profile (avatar) is
// hidden when the next message continues the group within the same minute.
// A removed message keeps grouping with its neighbors so the tombstone does
// not re-introduce chrome.
func Compute(cur *message.Message, prev, next *message.Message) Flags {
	var f Flags

	if prev != nil {
		removed := cur.Lifecycle == message.LifecycleRemoved
		sameKind := prev.Kind == cur.Kind || removed
		classChange := prev.Kind.Class() != cur.Kind.Class() && !removed
		f.HideSender = message.SameDay(prev.Timestamp, cur.Timestamp) &&
			prev.SenderID == cur.SenderID &&
			sameKind &&
			!classChange
	}

	showProfile := next == nil ||
		!message.SameDay(next.Timestamp, cur.Timestamp) ||
		next.SenderID != cur.SenderID ||
		!message.SameMinute(next.Timestamp, cur.Timestamp) ||
		(next.Kind.Class() != cur.Kind.Class() && cur.Lifecycle != message.LifecycleRemoved)
	f.HideProfile = !showProfile

	return f
}
