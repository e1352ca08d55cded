package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FeedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fastgo", Name: "feed_events_total", Help: "Change feed events by table, type and outcome"},
		[]string{"table", "type", "outcome"},
	)
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fastgo", Name: "snapshots_total", Help: "Initial snapshot reads by outcome"},
		[]string{"outcome"},
	)
	WritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fastgo", Name: "write_through_total", Help: "Write-through attempts by operation and outcome"},
		[]string{"op", "outcome"},
	)
	WriteRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "fastgo", Name: "write_through_retries_total", Help: "Write-through retries"})
	WriteLatency      = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "fastgo", Name: "write_through_latency_seconds", Help: "Write-through latency including retries"})
	PaymentsTotal     = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fastgo", Name: "payments_total", Help: "Payment processor calls by action and outcome"},
		[]string{"action", "outcome"},
	)
	AdvisorTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fastgo", Name: "advisor_requests_total", Help: "Advisory text requests by outcome"},
		[]string{"outcome"},
	)
	RidersOnline  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "fastgo", Name: "riders_online", Help: "Riders with an open shift"})
	WSSessions    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "fastgo", Name: "ws_sessions", Help: "Connected dashboard sessions"})
	SyncDegraded  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "fastgo", Name: "sync_degraded", Help: "1 while the local projection is degraded"})
	OrdersPlaced  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "fastgo", Name: "orders_placed_total", Help: "Orders placed through this instance"})
	LocationsSent = promauto.NewCounter(prometheus.CounterOpts{Namespace: "fastgo", Name: "rider_locations_total", Help: "Rider location updates accepted"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fastgo", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fastgo",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
