package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequested = promauto.NewCounter(prometheus.CounterOpts{Namespace: "boots", Name: "rides_requested_total", Help: "Total ride requests accepted by the API"})
	RidesCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "boots", Name: "rides_completed_total", Help: "Total rides completed"})
	RidesCancelled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "boots", Name: "rides_cancelled_total", Help: "Total rides cancelled"})
	OffersSent     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "boots", Name: "ride_offers_sent_total", Help: "Ride offers pushed to captains"})

	// AcceptConflicts counts accepts that lost the pending->accepted race.
	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "boots", Name: "ride_accept_conflicts_total", Help: "Ride accepts rejected because another captain won"})

	CaptainsOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "boots", Name: "captains_online", Help: "Captains currently online"})

	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "boots", Name: "match_latency_seconds", Help: "Time from ride request to offers dispatched"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "boots", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "boots",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
