// Package metrics exposes the one-to-one and poll-server back-ends' runtime
// counters to Prometheus: register once at startup, increment from the hot
// path. The worker-pool back-end does not report into it.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric a back-end reports during Run.
type Registry struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	BytesEchoed         prometheus.Counter
	RequestDuration     prometheus.Histogram
}

// New builds and registers a fresh Registry under reg. library labels the
// metrics with the selected back-end name so all three can share one
// Prometheus endpoint when compared side by side.
func New(reg prometheus.Registerer, library string) *Registry {
	labels := prometheus.Labels{"library": library}

	m := &Registry{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "scalable_server",
			Name:        "connections_accepted_total",
			Help:        "Total TCP connections accepted by the running back-end.",
			ConstLabels: labels,
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "scalable_server",
			Name:        "connections_active",
			Help:        "Connections currently being served.",
			ConstLabels: labels,
		}),
		BytesEchoed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "scalable_server",
			Name:        "bytes_echoed_total",
			Help:        "Total bytes echoed back to clients.",
			ConstLabels: labels,
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "scalable_server",
			Name:        "request_duration_seconds",
			Help:        "Time to receive one request's length-prefixed blob.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.ConnectionsAccepted, m.ConnectionsActive, m.BytesEchoed, m.RequestDuration)
	return m
}
