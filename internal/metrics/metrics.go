// Package metrics exposes prometheus counters and gauges for the
// ingress core: packets admitted or dropped, broken down by outcome
// kind, duplicate rate, and the live connection count.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/yourusername/quicingress/quic"
)

var (
	segmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quicingress",
			Subsystem: "ingress",
			Name:      "segments_total",
			Help:      "Total coalesced segments processed, by outcome kind.",
		},
		[]string{"kind"},
	)

	duplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quicingress",
			Subsystem: "ingress",
			Name:      "duplicate_packets_total",
			Help:      "Total packets dropped as duplicates of an already-received packet number.",
		},
	)

	connectionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quicingress",
			Subsystem: "registry",
			Name:      "connections_created_total",
			Help:      "Total connections committed to the registry from a server-side Initial.",
		},
	)

	registrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quicingress",
			Subsystem: "registry",
			Name:      "connections",
			Help:      "Current number of connections indexed in the registry.",
		},
	)

	statelessResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quicingress",
			Subsystem: "ingress",
			Name:      "stateless_resets_total",
			Help:      "Total connections torn down by a verified stateless reset.",
		},
	)
)

// ObserveOutcome increments the per-kind segment counter and the
// duplicate/reset counters where applicable. Call once per processed
// coalesced segment.
func ObserveOutcome(k quic.Kind) {
	segmentsTotal.WithLabelValues(k.String()).Inc()
	switch k {
	case quic.KindDuplicate:
		duplicatesTotal.Inc()
	case quic.KindStatelessReset:
		statelessResetsTotal.Inc()
	}
}

// ObserveConnectionCreated increments the connections-created counter.
func ObserveConnectionCreated() {
	connectionsCreatedTotal.Inc()
}

// SetRegistrySize publishes the registry's current connection count.
func SetRegistrySize(n int) {
	registrySize.Set(float64(n))
}
