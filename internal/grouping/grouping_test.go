package grouping

import (
	"testing"
	"time"

	"github.com/MikeSquared-Agency/loom/internal/message"
)

func msg(id, sender string, ts time.Time, kind message.Kind) message.Message {
	return message.Message{
		ID:        id,
		Channel:   message.ChannelDirectMessage,
		SenderID:  sender,
		Timestamp: ts,
		Kind:      kind,
		Lifecycle: message.LifecycleActive,
	}
}

func at(h, m, s int) time.Time {
	return time.Date(2026, 3, 14, h, m, s, 0, time.UTC)
}

// Two same-day messages from A at 10:00:00 and 10:00:40, then one from B at
// 10:02:00. Expected: m1 shows sender, hides profile behind m2's run; m2
// hides sender but shows profile (next sender differs); m3 shows both.
func TestCompute_SenderRun(t *testing.T) {
	m1 := msg("1", "A", at(10, 0, 0), message.KindText)
	m2 := msg("2", "A", at(10, 0, 40), message.KindText)
	m3 := msg("3", "B", at(10, 2, 0), message.KindText)

	f1 := Compute(&m1, nil, &m2)
	if f1.HideSender {
		t.Error("m1: first of run must show sender")
	}
	if !f1.HideProfile {
		t.Error("m1: profile hides when m2 continues the group in the same minute")
	}

	f2 := Compute(&m2, &m1, &m3)
	if !f2.HideSender {
		t.Error("m2: same sender, same day, same kind must hide sender")
	}
	if f2.HideProfile {
		t.Error("m2: next message is a different sender, profile must show")
	}

	f3 := Compute(&m3, &m2, nil)
	if f3.HideSender {
		t.Error("m3: different sender must show sender")
	}
	if f3.HideProfile {
		t.Error("m3: no next message, profile must show")
	}
}

func TestCompute_DayBoundaryBreaksGroup(t *testing.T) {
	m1 := msg("1", "A", time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC), message.KindText)
	m2 := msg("2", "A", time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC), message.KindText)

	if Compute(&m2, &m1, nil).HideSender {
		t.Error("crossing midnight must re-show the sender")
	}
	if Compute(&m1, nil, &m2).HideProfile {
		t.Error("crossing midnight must show the profile on the earlier message")
	}
}

func TestCompute_KindClassChangeForcesSender(t *testing.T) {
	m1 := msg("1", "A", at(10, 0, 0), message.KindText)
	m2 := msg("2", "A", at(10, 0, 10), message.KindSocialPost)
	m2.Post = &message.SocialPost{AuthorName: "A", Body: "post"}

	if Compute(&m2, &m1, nil).HideSender {
		t.Error("bubble→post class change must show sender")
	}

	// A removed message keeps grouping despite the class change.
	m2.Lifecycle = message.LifecycleRemoved
	if !Compute(&m2, &m1, nil).HideSender {
		t.Error("removed message must keep grouping with the previous message")
	}
}

func TestCompute_TextAndMediaShareClassButNotKind(t *testing.T) {
	m1 := msg("1", "A", at(10, 0, 0), message.KindText)
	m2 := msg("2", "A", at(10, 0, 10), message.KindMedia)
	m2.Attachments = []message.Attachment{{Type: "image", URL: "u"}}

	// Same class, but a kind change still shows the sender.
	if Compute(&m2, &m1, nil).HideSender {
		t.Error("text→media kind change must show sender")
	}
	// Profile hiding keys on class, so the run continues downward.
	if !Compute(&m1, nil, &m2).HideProfile {
		t.Error("text followed by same-minute media must hide profile")
	}
}

func TestCompute_MinuteBoundaryShowsProfile(t *testing.T) {
	m1 := msg("1", "A", at(10, 0, 59), message.KindText)
	m2 := msg("2", "A", at(10, 1, 0), message.KindText)

	if Compute(&m1, nil, &m2).HideProfile {
		t.Error("next message outside the minute must show profile")
	}
}

func TestCompute_Deterministic(t *testing.T) {
	m1 := msg("1", "A", at(10, 0, 0), message.KindText)
	m2 := msg("2", "A", at(10, 0, 30), message.KindText)
	m3 := msg("3", "A", at(10, 0, 50), message.KindText)

	first := Compute(&m2, &m1, &m3)
	for i := 0; i < 100; i++ {
		if got := Compute(&m2, &m1, &m3); got != first {
			t.Fatalf("call %d: result %+v differs from first %+v", i, got, first)
		}
	}
}
