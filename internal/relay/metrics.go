package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the relay updates as it runs.
// A nil *Metrics is valid throughout this package — every call site guards
// on it being non-nil, so metrics are strictly optional.
type Metrics struct {
	connectedBrowsers prometheus.Gauge
	connectedAgents   prometheus.Gauge
	pendingRequests   prometheus.Gauge
	messagesRouted    *prometheus.CounterVec
	heartbeatMisses   prometheus.Counter
	requestDuration   prometheus.Histogram
}

// NewMetrics constructs and registers the relay's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectedBrowsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "connected_browsers",
			Help:      "Number of currently connected browser sessions.",
		}),
		connectedAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "connected_agents",
			Help:      "Number of currently connected agent sessions.",
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "pending_requests",
			Help:      "Number of correlated requests awaiting a response.",
		}),
		messagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "messages_routed_total",
			Help:      "Envelopes routed, by routing path and message type.",
		}, []string{"path", "type"}),
		heartbeatMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "heartbeat_misses_total",
			Help:      "Agents closed for missing consecutive heartbeat pongs.",
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "request_duration_seconds",
			Help:      "Time from a correlated request being forwarded to its resolution.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.connectedBrowsers,
		m.connectedAgents,
		m.pendingRequests,
		m.messagesRouted,
		m.heartbeatMisses,
		m.requestDuration,
	)
	return m
}
