package api

import (
	"sync"

	"github.com/MikeSquared-Agency/loom/internal/scroll"
)

// hostViewport mirrors the embedding host's scroll geometry. The host reports
// readings over the API; programmatic scroll writes accumulate here and are
// returned to the host on its next viewport call.
type hostViewport struct {
	mu      sync.Mutex
	metrics scroll.Metrics
}

func (v *hostViewport) Metrics() scroll.Metrics {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.metrics
}

func (v *hostViewport) SetScrollTop(top float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.metrics.ScrollTop = top
}

// update replaces the geometry with the host's latest reading.
func (v *hostViewport) update(m scroll.Metrics) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.metrics = m
}

// scrollTop returns the current offset, including any programmatic write the
// host has not picked up yet.
func (v *hostViewport) scrollTop() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.metrics.ScrollTop
}
