package message

import (
	"testing"
	"time"
)

func TestValidate_KindPayloads(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	valid := []Message{
		{ID: "1", Kind: KindText, Timestamp: ts},
		{ID: "2", Kind: KindText, Text: "hello", Timestamp: ts},
		{ID: "3", Kind: KindMedia, Attachments: []Attachment{{Type: "image", URL: "https://cdn/x.jpg"}}},
		{ID: "4", Kind: KindSystemNotice, Text: "conversation assigned"},
		{ID: "5", Kind: KindSocialPost, Post: &SocialPost{AuthorName: "A", Body: "b"}},
		{ID: "6", Kind: KindStatusUpdate, Post: &SocialPost{AuthorName: "A", Body: "b"}},
	}
	for _, m := range valid {
		if err := m.Validate(); err != nil {
			t.Errorf("message %s: unexpected validate error: %v", m.ID, err)
		}
	}

	invalid := []Message{
		{ID: "", Kind: KindText},
		{ID: "7", Kind: KindMedia},
		{ID: "8", Kind: KindSystemNotice},
		{ID: "9", Kind: KindSocialPost},
		{ID: "10", Kind: KindStatusUpdate},
		{ID: "11", Kind: Kind("carrier_pigeon")},
	}
	for _, m := range invalid {
		if err := m.Validate(); err == nil {
			t.Errorf("message %q kind %q: expected validate error, got nil", m.ID, m.Kind)
		}
	}
}

func TestDegrade_ProducesValidText(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := Degrade(ChannelDirectMessage, "raw-9", "u1", RoleCustomer, ts)

	if err := m.Validate(); err != nil {
		t.Fatalf("degraded message must validate: %v", err)
	}
	if m.Kind != KindText {
		t.Errorf("degraded kind = %q, want text", m.Kind)
	}
	if m.Text != DegradedPlaceholder {
		t.Errorf("degraded text = %q, want placeholder", m.Text)
	}
	if m.ID != "raw-9" || m.SenderID != "u1" || !m.Timestamp.Equal(ts) {
		t.Errorf("degraded identity fields not preserved: %+v", m)
	}
}

func TestReferences_External(t *testing.T) {
	if got := (References{}).External(); got != "" {
		t.Errorf("empty refs external = %q, want empty", got)
	}
	if got := (References{InReplyToID: "r1"}).External(); got != "r1" {
		t.Errorf("reply-only external = %q, want r1", got)
	}
	// Quoted content wins over the reply target.
	if got := (References{QuotedID: "q1", InReplyToID: "r1"}).External(); got != "q1" {
		t.Errorf("external = %q, want q1", got)
	}
}

func TestCalendarHelpers(t *testing.T) {
	a := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)

	if SameDay(a, b) {
		t.Error("23:59 and next-day 00:01 must not be same day")
	}
	if !SameDay(a, a.Add(-time.Hour)) {
		t.Error("same-date instants must be same day")
	}

	if !SameMinute(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), time.Date(2026, 3, 14, 10, 0, 40, 0, time.UTC)) {
		t.Error("10:00:00 and 10:00:40 must be same minute")
	}
	if SameMinute(time.Date(2026, 3, 14, 10, 0, 59, 0, time.UTC), time.Date(2026, 3, 14, 10, 1, 0, 0, time.UTC)) {
		t.Error("10:00:59 and 10:01:00 must not be same minute")
	}

	day := DayOf(a)
	if day.Hour() != 0 || day.Minute() != 0 || day.Day() != 14 {
		t.Errorf("DayOf = %v, want midnight of the 14th", day)
	}
}

func TestKindClass(t *testing.T) {
	cases := map[Kind]Class{
		KindText:         ClassBubble,
		KindMedia:        ClassBubble,
		KindSystemNotice: ClassNotice,
		KindSocialPost:   ClassPost,
		KindStatusUpdate: ClassPost,
	}
	for k, want := range cases {
		if got := k.Class(); got != want {
			t.Errorf("class(%s) = %s, want %s", k, got, want)
		}
	}
}
