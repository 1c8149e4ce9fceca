// Package scroll manages backward-page loads and viewport anchoring. When
// older history is prepended, the controller measures content height before
// and after the render and applies one corrective offset so the visible
// content does not jump.
package scroll

import (
	"log/slog"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/MikeSquared-Agency/loom/internal/metrics"
)

// Controller states.
type loadState stateless.State

var (
	stateIdle         loadState = "idle"
	stateLoadingOlder loadState = "loadingOlder"
)

type loadTrigger stateless.Trigger

var (
	triggerLoadStarted  loadTrigger = "LoadStarted"
	triggerLoadFinished loadTrigger = "LoadFinished"
	triggerLoadFailed   loadTrigger = "LoadFailed"
)

// Metrics is one reading of the viewport host's scroll geometry.
type Metrics struct {
	ScrollTop      float64
	ContentHeight  float64
	ViewportHeight float64
}

// Viewport is the host surface the controller steers: current geometry plus
// programmatic scroll-offset writes.
type Viewport interface {
	Metrics() Metrics
	SetScrollTop(top float64)
}

// Controller drives the idle/loadingOlder cycle and owns the anchor-delta
// computation.
type Controller struct {
	mu           sync.Mutex
	fsm          *stateless.StateMachine
	vp           Viewport
	logger       *slog.Logger
	nearEdge     float64
	prevHeight   float64
	pendingDelta bool
	endOfHistory bool
}

// New builds a controller. nearEdge is the distance in pixels from either
// content edge within which the viewport counts as "near" it.
func New(vp Viewport, nearEdge float64, logger *slog.Logger) *Controller {
	fsm := stateless.NewStateMachine(stateIdle)
	fsm.Configure(stateIdle).
		Permit(triggerLoadStarted, stateLoadingOlder)
	fsm.Configure(stateLoadingOlder).
		Permit(triggerLoadFinished, stateIdle).
		Permit(triggerLoadFailed, stateIdle).
		Ignore(triggerLoadStarted)

	return &Controller{
		fsm:      fsm,
		vp:       vp,
		logger:   logger,
		nearEdge: nearEdge,
	}
}

// Begin starts a backward-pagination cycle. It records the pre-render content
// height and returns false when a load is already running or history is
// exhausted, in which case the caller must not fetch.
func (c *Controller) Begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.endOfHistory {
		return false
	}
	if c.fsm.MustState().(loadState) != stateIdle {
		return false
	}
	c.prevHeight = c.vp.Metrics().ContentHeight
	c.pendingDelta = false
	if err := c.fsm.Fire(triggerLoadStarted); err != nil {
		c.logger.Error("pagination state machine rejected start", "error", err)
		return false
	}
	return true
}

// Finish completes the cycle started by Begin. On success the next
// OnContentHeightChange applies the anchor delta; on failure the offset is
// left untouched and a later near-top scroll retries.
func (c *Controller) Finish(err error, endOfHistory bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.pendingDelta = false
		if ferr := c.fsm.Fire(triggerLoadFailed); ferr != nil {
			c.logger.Error("pagination state machine rejected failure", "error", ferr)
		}
		metrics.OlderPageLoads.WithLabelValues("failed").Inc()
		return
	}
	if endOfHistory {
		c.endOfHistory = true
	}
	c.pendingDelta = true
	if ferr := c.fsm.Fire(triggerLoadFinished); ferr != nil {
		c.logger.Error("pagination state machine rejected finish", "error", ferr)
	}
	metrics.OlderPageLoads.WithLabelValues("ok").Inc()
}

// Cancel aborts the running cycle without touching the offset. Used when a
// result arrives for a conversation that is no longer current.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingDelta = false
	if c.fsm.MustState().(loadState) == stateLoadingOlder {
		if err := c.fsm.Fire(triggerLoadFailed); err != nil {
			c.logger.Error("pagination state machine rejected cancel", "error", err)
		}
		metrics.OlderPageLoads.WithLabelValues("stale").Inc()
	}
}

// OnContentHeightChange is the post-render hook from the viewport host. After
// a successful prepend it shifts the scroll offset by exactly the content
// growth, pinning the previously visible content.
func (c *Controller) OnContentHeightChange(newHeight float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pendingDelta {
		return
	}
	c.pendingDelta = false
	delta := newHeight - c.prevHeight
	if delta == 0 {
		return
	}
	m := c.vp.Metrics()
	c.vp.SetScrollTop(m.ScrollTop + delta)
}

// Loading reports whether a backward-page load is running.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.MustState().(loadState) == stateLoadingOlder
}

// EndOfHistory reports whether the channel source has signalled that no older
// records exist.
func (c *Controller) EndOfHistory() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endOfHistory
}

// LatchEndOfHistory marks history exhausted without running a load cycle.
// Used when the very first page already reaches the start of the channel.
func (c *Controller) LatchEndOfHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endOfHistory = true
}

// ResetHistory clears the end-of-history latch, for conversation switches.
func (c *Controller) ResetHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endOfHistory = false
}

// NearBottom reports whether the viewport currently sits within the near-edge
// threshold of the content bottom. New-message arrivals only auto-follow when
// this was true before the arrival.
func (c *Controller) NearBottom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.vp.Metrics()
	return m.ContentHeight-(m.ScrollTop+m.ViewportHeight) <= c.nearEdge
}

// ScrollToBottom pins the viewport to the content bottom.
func (c *Controller) ScrollToBottom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.vp.Metrics()
	top := m.ContentHeight - m.ViewportHeight
	if top < 0 {
		top = 0
	}
	c.vp.SetScrollTop(top)
}
