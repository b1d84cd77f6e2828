package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of currently authenticated connections",
		},
	)

	RoomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_rooms_active",
			Help: "Number of rooms with at least one member",
		},
	)

	AuthFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_auth_failures_total",
			Help: "Total number of rejected connection attempts",
		},
	)

	// Routing metrics
	EventsRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_routed_total",
			Help: "Total number of domain events routed by type",
		},
		[]string{"type"},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Total frames dropped because a recipient buffer was full or closed",
		},
	)

	RoutingMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_routing_misses_total",
			Help: "Total events for projects with no tracked room",
		},
	)

	MalformedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_malformed_messages_total",
			Help: "Total unparseable inbound frames dropped",
		},
	)

	UnknownMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_unknown_messages_total",
			Help: "Total well-formed frames dropped for an unrecognized message type",
		},
	)

	MessageHandleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_message_handle_duration_seconds",
			Help:    "Time spent handling one inbound frame, including fan-out enqueue",
			Buckets: prometheus.ExponentialBuckets(0.00001, 10, 6),
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(RoomsActive)
	prometheus.MustRegister(AuthFailures)
	prometheus.MustRegister(EventsRouted)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(RoutingMisses)
	prometheus.MustRegister(MalformedMessages)
	prometheus.MustRegister(UnknownMessages)
	prometheus.MustRegister(MessageHandleDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
