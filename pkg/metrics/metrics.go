// Package metrics exposes Merlin's Prometheus instrumentation: the daemon's
// only consumer of github.com/prometheus/client_golang, a dependency the
// teacher repository declared but never imported.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every counter/gauge/histogram Merlin publishes, built on
// a private prometheus.Registerer so tests can construct an isolated
// instance instead of colliding on the global default registry.
type Registry struct {
	reg *prometheus.Registry

	StoreRequests *prometheus.CounterVec
	StoreLatency  *prometheus.HistogramVec

	ProofsAccepted prometheus.Counter
	ProofsRejected prometheus.Counter

	EpochsSealed    prometheus.Counter
	EpochNumber     prometheus.Gauge
	EpochProofCount prometheus.Gauge

	SettlementVolume prometheus.Counter
	HeartbeatsSent   prometheus.Counter
}

// New builds a Registry with all metrics registered under it.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		StoreRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merlin",
			Subsystem: "store",
			Name:      "requests_total",
			Help:      "Object-store HTTP requests by operation and outcome.",
		}, []string{"operation", "outcome"}),

		StoreLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "merlin",
			Subsystem: "store",
			Name:      "request_duration_seconds",
			Help:      "Object-store HTTP request latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		ProofsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "merlin",
			Subsystem: "epoch",
			Name:      "proofs_accepted_total",
			Help:      "Proofs accepted into the current epoch's accumulator.",
		}),
		ProofsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "merlin",
			Subsystem: "epoch",
			Name:      "proofs_rejected_total",
			Help:      "Proofs rejected by schema validation.",
		}),

		EpochsSealed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "merlin",
			Subsystem: "epoch",
			Name:      "sealed_total",
			Help:      "Epochs successfully sealed.",
		}),
		EpochNumber: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "merlin",
			Subsystem: "epoch",
			Name:      "current_number",
			Help:      "Epoch number of the currently active epoch.",
		}),
		EpochProofCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "merlin",
			Subsystem: "epoch",
			Name:      "current_proof_count",
			Help:      "Proofs accumulated in the currently active epoch.",
		}),

		SettlementVolume: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "merlin",
			Subsystem: "settlement",
			Name:      "volume_usdc_total",
			Help:      "Cumulative settled volume across all sealed epochs.",
		}),
		HeartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "merlin",
			Subsystem: "supervisor",
			Name:      "heartbeats_total",
			Help:      "Heartbeat announcements published.",
		}),
	}
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
