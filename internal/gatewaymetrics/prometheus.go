package gatewaymetrics

import "github.com/prometheus/client_golang/prometheus"

// promCollectors holds the Prometheus vectors the store mirrors its
// counters into. Kept separate from the JSON snapshot
// logic in store.go so the core store type has no hard Prometheus
// dependency in its public Snapshot/LatencySnapshot contract.
type promCollectors struct {
	requestsTotal *prometheus.CounterVec
	gateTotal     *prometheus.CounterVec
	latencyMs     *prometheus.HistogramVec
}

func newPromCollectors(reg prometheus.Registerer) *promCollectors {
	p := &promCollectors{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total requests forwarded per route and status class.",
		}, []string{"route", "status_class"}),
		gateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_gate_total",
			Help: "Total requests per admission gate outcome.",
		}, []string{"gate"}),
		latencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_upstream_latency_ms",
			Help:    "Upstream forward latency in milliseconds, per route.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
	}
	reg.MustRegister(p.requestsTotal, p.gateTotal, p.latencyMs)
	return p
}

func (p *promCollectors) observe(route string, class StatusClass, latencyMs float64) {
	p.requestsTotal.WithLabelValues(route, string(class)).Inc()
	p.latencyMs.WithLabelValues(route).Observe(latencyMs)
}

func (p *promCollectors) gate(kind GateKind) {
	p.gateTotal.WithLabelValues(string(kind)).Inc()
}
