// Package metrics holds the engine's Prometheus collectors. Everything is a
// counter; the timeline itself carries no latency-sensitive paths worth a
// histogram.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReferenceFetches counts external-post fetches by terminal result
	// ("resolved", "failed", "stale").
	ReferenceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_reference_fetches_total",
		Help: "External reference fetches by result.",
	}, []string{"result"})

	// OlderPageLoads counts backward-pagination cycles by result
	// ("ok", "empty", "failed", "stale").
	OlderPageLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_older_page_loads_total",
		Help: "Older-page load cycles by result.",
	}, []string{"result"})

	// DegradedRecords counts raw records the adapters could not fully parse
	// and degraded to text placeholders.
	DegradedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_degraded_records_total",
		Help: "Raw records degraded to placeholder text messages, by channel.",
	}, []string{"channel"})

	// Assemblies counts timeline re-assembly passes.
	Assemblies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_timeline_assemblies_total",
		Help: "Timeline assembly passes.",
	})
)
