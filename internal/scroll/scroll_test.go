package scroll

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeViewport is an in-memory viewport host.
type fakeViewport struct {
	scrollTop      float64
	contentHeight  float64
	viewportHeight float64
	writes         int
}

func (v *fakeViewport) Metrics() Metrics {
	return Metrics{ScrollTop: v.scrollTop, ContentHeight: v.contentHeight, ViewportHeight: v.viewportHeight}
}

func (v *fakeViewport) SetScrollTop(top float64) {
	v.scrollTop = top
	v.writes++
}

func TestAnchorDelta_PinsVisibleContent(t *testing.T) {
	vp := &fakeViewport{scrollTop: 10, contentHeight: 1000, viewportHeight: 600}
	c := New(vp, 50, testLogger())

	if !c.Begin() {
		t.Fatal("begin must start from idle")
	}
	if !c.Loading() {
		t.Error("controller must report loading after begin")
	}

	// Older page arrives; render grows the content by 400px.
	c.Finish(nil, false)
	vp.contentHeight = 1400
	c.OnContentHeightChange(1400)

	if vp.scrollTop != 410 {
		t.Errorf("scrollTop = %v, want 10 + (1400-1000) = 410", vp.scrollTop)
	}
	if c.Loading() {
		t.Error("controller must return to idle after the cycle")
	}
}

func TestBegin_RejectsWhileLoading(t *testing.T) {
	vp := &fakeViewport{contentHeight: 1000, viewportHeight: 600}
	c := New(vp, 50, testLogger())

	if !c.Begin() {
		t.Fatal("first begin must succeed")
	}
	if c.Begin() {
		t.Error("second begin while loading must be refused")
	}
}

func TestEmptyPage_LeavesOffsetUntouched(t *testing.T) {
	vp := &fakeViewport{scrollTop: 25, contentHeight: 1000, viewportHeight: 600}
	c := New(vp, 50, testLogger())

	c.Begin()
	c.Finish(nil, true) // end of history, nothing prepended
	c.OnContentHeightChange(1000)

	if vp.scrollTop != 25 {
		t.Errorf("scrollTop = %v, want unchanged 25", vp.scrollTop)
	}
	if vp.writes != 0 {
		t.Errorf("%d offset writes for a zero delta, want 0", vp.writes)
	}
	if !c.EndOfHistory() {
		t.Error("end-of-history must latch")
	}
	if c.Begin() {
		t.Error("begin after end-of-history must be refused")
	}

	c.ResetHistory()
	if !c.Begin() {
		t.Error("begin after ResetHistory must succeed")
	}
}

func TestFailedLoad_LeavesOffsetAndAllowsRetry(t *testing.T) {
	vp := &fakeViewport{scrollTop: 5, contentHeight: 1000, viewportHeight: 600}
	c := New(vp, 50, testLogger())

	c.Begin()
	c.Finish(errors.New("network down"), false)
	c.OnContentHeightChange(1000)

	if vp.scrollTop != 5 {
		t.Errorf("scrollTop = %v, want unchanged after failure", vp.scrollTop)
	}
	if c.Loading() {
		t.Error("failure must return the controller to idle")
	}
	// A later near-top scroll retries.
	if !c.Begin() {
		t.Error("retry begin after failure must succeed")
	}
}

func TestCancel_DropsPendingDelta(t *testing.T) {
	vp := &fakeViewport{scrollTop: 5, contentHeight: 1000, viewportHeight: 600}
	c := New(vp, 50, testLogger())

	c.Begin()
	c.Cancel()
	vp.contentHeight = 1500
	c.OnContentHeightChange(1500)

	if vp.scrollTop != 5 {
		t.Errorf("scrollTop = %v, cancelled cycle must not adjust the offset", vp.scrollTop)
	}
	if c.Loading() {
		t.Error("cancel must return the controller to idle")
	}
}

func TestNearBottom(t *testing.T) {
	vp := &fakeViewport{scrollTop: 350, contentHeight: 1000, viewportHeight: 600}
	c := New(vp, 50, testLogger())

	// 1000 - (350+600) = 50, inside the threshold.
	if !c.NearBottom() {
		t.Error("viewport 50px from bottom with 50px threshold must be near bottom")
	}
	vp.scrollTop = 300
	if c.NearBottom() {
		t.Error("viewport 100px from bottom must not be near bottom")
	}
}

func TestScrollToBottom(t *testing.T) {
	vp := &fakeViewport{scrollTop: 0, contentHeight: 1000, viewportHeight: 600}
	c := New(vp, 50, testLogger())

	c.ScrollToBottom()
	if vp.scrollTop != 400 {
		t.Errorf("scrollTop = %v, want 400", vp.scrollTop)
	}

	// Content shorter than the viewport clamps to zero.
	vp.contentHeight = 300
	c.ScrollToBottom()
	if vp.scrollTop != 0 {
		t.Errorf("scrollTop = %v, want clamped 0", vp.scrollTop)
	}
}
