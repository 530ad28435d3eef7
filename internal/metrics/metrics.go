// Package metrics wires the core's observability points to Prometheus
// (spec §9 "no global mutable state": every gauge/counter here is owned by
// one Metrics value, registered against a caller-supplied Registerer, never
// a package-level default registry).
//
// Grounded on the teacher's proto/go.mod having no observability at all —
// the teacher's standalone CPU model has nothing comparable — so this
// package is instead built from the rest of the retrieval pack's Prometheus
// usage (client_golang's NewGaugeVec/NewCounterVec idiom), giving the core a
// metrics surface consistent with the ambient stack SPEC_FULL.md specifies
// even though the spec's own Non-goals don't require it.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every gauge/counter the core exposes. None of it feeds
// back into simulated behavior; it is pure observation, updated from
// Core.Cycle() and Core.Dispatch() in the module root (lane.go).
type Metrics struct {
	RSOccupancy      *prometheus.GaugeVec
	DispatchStalls   *prometheus.CounterVec
	WMStageOccupancy *prometheus.GaugeVec
	SyncLatency      prometheus.Histogram
	PacketsEmitted   *prometheus.CounterVec
}

// New builds and registers every metric against reg. Callers typically pass
// prometheus.NewRegistry() in tests and the default registry (or a
// namespaced wrapper) in a real deployment.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RSOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "amlet",
			Subsystem: "rs",
			Name:      "occupancy",
			Help:      "Number of occupied reservation-station slots, by unit.",
		}, []string{"unit"}),
		DispatchStalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amlet",
			Subsystem: "rename",
			Name:      "dispatch_stalls_total",
			Help:      "Count of dispatch stalls, by cause (tag, rs).",
		}, []string{"cause"}),
		WMStageOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "amlet",
			Subsystem: "wm",
			Name:      "stage_occupancy",
			Help:      "Whether a Witem Monitor pipeline stage link holds a valid entry.",
		}, []string{"link"}),
		SyncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "amlet",
			Subsystem: "ksync",
			Name:      "latency_cycles",
			Help:      "Cycles between faultReady/completeReady and the matching sync broadcast.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		PacketsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amlet",
			Subsystem: "wm",
			Name:      "packets_emitted_total",
			Help:      "Packets emitted at S15, by mode.",
		}, []string{"mode"}),
	}
	reg.MustRegister(m.RSOccupancy, m.DispatchStalls, m.WMStageOccupancy, m.SyncLatency, m.PacketsEmitted)
	return m
}
