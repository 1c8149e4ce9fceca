package timeline

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/loom/internal/message"
	"github.com/MikeSquared-Agency/loom/internal/refcache"
)

// stubRefs satisfies RefSource without a fetcher.
type stubRefs struct {
	asked []string
}

func (s *stubRefs) Placeholder(id string) refcache.Snapshot {
	s.asked = append(s.asked, id)
	return refcache.Snapshot{ID: id, State: refcache.StateUnresolved}
}

func testResolver() *refcache.Resolver {
	return refcache.New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func msg(id, sender string, ts time.Time, kind message.Kind) message.Message {
	m := message.Message{
		ID:        id,
		Channel:   message.ChannelPublicPost,
		SenderID:  sender,
		Timestamp: ts,
		Kind:      kind,
		Lifecycle: message.LifecycleActive,
	}
	if kind == message.KindSocialPost || kind == message.KindStatusUpdate {
		m.Post = &message.SocialPost{AuthorName: sender, Body: "post " + id}
	}
	return m
}

func at(day, h, m int) time.Time {
	return time.Date(2026, 3, day, h, m, 0, 0, time.UTC)
}

func messageIDs(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		if e.Kind == KindMessage {
			out = append(out, e.Message.ID)
		}
	}
	return out
}

func TestAssemble_OrderingPreserved(t *testing.T) {
	msgs := []message.Message{
		msg("1", "A", at(14, 10, 0), message.KindText),
		msg("2", "B", at(14, 10, 1), message.KindText),
		msg("3", "A", at(14, 10, 2), message.KindText),
		msg("4", "B", at(15, 9, 0), message.KindText),
	}
	entries := Assemble(msgs, &stubRefs{}, Options{})

	got := messageIDs(entries)
	want := []string{"1", "2", "3", "4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("message order = %v, want %v", got, want)
	}
}

func TestAssemble_DateSeparators(t *testing.T) {
	msgs := []message.Message{
		msg("1", "A", at(14, 10, 0), message.KindText),
		msg("2", "A", at(14, 22, 0), message.KindText),
		msg("3", "A", at(15, 0, 5), message.KindText),
	}
	entries := Assemble(msgs, &stubRefs{}, Options{})

	if entries[0].Kind != KindDateSeparator {
		t.Fatal("first entry must be a date separator")
	}
	var seps []time.Time
	for _, e := range entries {
		if e.Kind == KindDateSeparator {
			seps = append(seps, e.Date)
		}
	}
	if len(seps) != 2 {
		t.Fatalf("%d separators, want 2 (one per day)", len(seps))
	}
	if seps[0].Day() != 14 || seps[1].Day() != 15 {
		t.Errorf("separator days = %v", seps)
	}
	if seps[0].Hour() != 0 {
		t.Errorf("separator not at midnight: %v", seps[0])
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	msgs := []message.Message{
		msg("1", "A", at(14, 10, 0), message.KindText),
		msg("2", "B", at(15, 10, 0), message.KindStatusUpdate),
		msg("3", "A", at(15, 10, 1), message.KindText),
	}
	msgs[1].Refs = message.References{QuotedID: "ext-9"}

	refs := testResolver()
	first := Assemble(msgs, refs, Options{})
	second := Assemble(msgs, refs, Options{})

	if !reflect.DeepEqual(first, second) {
		t.Error("re-running assemble over the same input must yield an identical list")
	}
}

func TestAssemble_ReferencePlaceholderInsertion(t *testing.T) {
	msgs := []message.Message{
		msg("1", "A", at(14, 10, 0), message.KindText),
		msg("2", "B", at(14, 10, 5), message.KindStatusUpdate),
	}
	msgs[1].Refs = message.References{QuotedID: "ext-9"}

	entries := Assemble(msgs, testResolver(), Options{})

	var refEntries []Entry
	for _, e := range entries {
		if e.Kind == KindReferencePost {
			refEntries = append(refEntries, e)
		}
	}
	if len(refEntries) != 1 {
		t.Fatalf("%d reference entries, want 1", len(refEntries))
	}
	re := refEntries[0]
	if re.Ref.ID != "ext-9" || re.Ref.State != refcache.StateUnresolved {
		t.Errorf("placeholder = %+v, want unresolved ext-9", re.Ref)
	}
	if re.AnchorIndex != 1 {
		t.Errorf("anchor index = %d, want 1", re.AnchorIndex)
	}

	// The placeholder sits immediately before its message.
	for i, e := range entries {
		if e.Kind == KindReferencePost {
			if entries[i+1].Kind != KindMessage || entries[i+1].Message.ID != "2" {
				t.Error("placeholder must directly precede its anchoring message")
			}
		}
	}
}

func TestAssemble_NoPlaceholderWhenTargetLoaded(t *testing.T) {
	msgs := []message.Message{
		msg("850", "B", at(14, 9, 0), message.KindStatusUpdate),
		msg("900", "A", at(14, 10, 0), message.KindStatusUpdate),
	}
	msgs[1].Refs = message.References{InReplyToID: "850"}

	entries := Assemble(msgs, testResolver(), Options{})
	for _, e := range entries {
		if e.Kind == KindReferencePost {
			t.Fatal("no placeholder when the target is already in the loaded window")
		}
	}
}

func TestAssemble_NoPlaceholderForOpeningReference(t *testing.T) {
	msgs := []message.Message{
		msg("900", "A", at(14, 10, 0), message.KindStatusUpdate),
	}
	msgs[0].Refs = message.References{InReplyToID: "850"}

	entries := Assemble(msgs, testResolver(), Options{OpeningRefID: "850"})
	for _, e := range entries {
		if e.Kind == KindReferencePost {
			t.Fatal("the conversation-opening reference never gets a placeholder")
		}
	}
}

func TestAssemble_ConsecutiveSameReferenceShareOnePlaceholder(t *testing.T) {
	msgs := []message.Message{
		msg("1", "A", at(14, 10, 0), message.KindStatusUpdate),
		msg("2", "A", at(14, 10, 1), message.KindStatusUpdate),
		msg("3", "A", at(14, 10, 2), message.KindStatusUpdate),
	}
	for i := range msgs {
		msgs[i].Refs = message.References{InReplyToID: "ext-9"}
	}

	entries := Assemble(msgs, testResolver(), Options{})
	count := 0
	for _, e := range entries {
		if e.Kind == KindReferencePost {
			count++
		}
	}
	if count != 1 {
		t.Errorf("%d placeholders for one reply run, want 1", count)
	}
}

func TestAssemble_InterveningMessageRestoresPlaceholder(t *testing.T) {
	msgs := []message.Message{
		msg("1", "A", at(14, 10, 0), message.KindStatusUpdate),
		msg("2", "B", at(14, 10, 1), message.KindText),
		msg("3", "A", at(14, 10, 2), message.KindStatusUpdate),
	}
	msgs[0].Refs = message.References{InReplyToID: "ext-9"}
	msgs[2].Refs = message.References{InReplyToID: "ext-9"}

	entries := Assemble(msgs, testResolver(), Options{})
	count := 0
	for _, e := range entries {
		if e.Kind == KindReferencePost {
			count++
		}
	}
	if count != 2 {
		t.Errorf("%d placeholders, want 2 (run broken by unrelated message)", count)
	}
}

func TestAssemble_FirstMessageAlwaysVisible(t *testing.T) {
	// Second message would normally hide the first one's profile.
	msgs := []message.Message{
		msg("1", "A", at(14, 10, 0), message.KindText),
		msg("2", "A", time.Date(2026, 3, 14, 10, 0, 30, 0, time.UTC), message.KindText),
	}
	entries := Assemble(msgs, &stubRefs{}, Options{})

	for _, e := range entries {
		if e.Kind == KindMessage && e.Message.ID == "1" {
			if e.Grouping.HideSender || e.Grouping.HideProfile {
				t.Errorf("first message grouping = %+v, want fully visible", e.Grouping)
			}
		}
	}
}

func TestAssemble_PlaceholderForcesAttributionVisible(t *testing.T) {
	// All three from the same sender, same minute; the middle one quotes an
	// external post, so it gets a placeholder above it.
	msgs := []message.Message{
		msg("1", "A", at(14, 10, 0), message.KindStatusUpdate),
		msg("2", "A", time.Date(2026, 3, 14, 10, 0, 20, 0, time.UTC), message.KindStatusUpdate),
		msg("3", "A", time.Date(2026, 3, 14, 10, 0, 40, 0, time.UTC), message.KindStatusUpdate),
	}
	msgs[1].Refs = message.References{QuotedID: "ext-9"}

	entries := Assemble(msgs, testResolver(), Options{})

	var g1, g2 Entry
	for _, e := range entries {
		if e.Kind != KindMessage {
			continue
		}
		switch e.Message.ID {
		case "1":
			g1 = e
		case "2":
			g2 = e
		}
	}
	if g2.Grouping.HideSender {
		t.Error("message under an interleaved reference must show its sender")
	}
	if g1.Grouping.HideProfile {
		t.Error("message above an interleaved reference must show its profile")
	}
}

func TestAssemble_EmptyInput(t *testing.T) {
	if got := Assemble(nil, &stubRefs{}, Options{}); got != nil {
		t.Errorf("assemble(nil) = %v, want nil", got)
	}
}

func TestAssemble_LayoutStampedOnReferenceEntries(t *testing.T) {
	msgs := []message.Message{
		msg("1", "A", at(14, 10, 0), message.KindStatusUpdate),
	}
	msgs[0].Refs = message.References{QuotedID: "ext-9"}
	// Not the opening: reference with no opening configured.
	entries := Assemble(msgs, testResolver(), Options{Layout: Layout{Width: 420}})

	for _, e := range entries {
		if e.Kind == KindReferencePost && e.Layout.Width != 420 {
			t.Errorf("reference layout width = %d, want 420", e.Layout.Width)
		}
	}
}
