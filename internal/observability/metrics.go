package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersSurfaced  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier", Name: "offers_surfaced_total", Help: "Mission offers surfaced to drivers"})
	OffersWithdrawn = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier", Name: "offers_withdrawn_total", Help: "Offers withdrawn after leaving the pending pool"})
	ClaimsWon       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier", Name: "claims_won_total", Help: "Mission claims that won the pending row"})
	ClaimsLost      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier", Name: "claims_lost_total", Help: "Mission claims rejected because the mission was already taken"})

	PresenceWrites      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier", Name: "presence_writes_total", Help: "Successful presence location writes"})
	PresenceWriteErrors = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier", Name: "presence_write_errors_total", Help: "Failed presence location writes"})

	RoutesComputed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier", Name: "routes_computed_total", Help: "Routing provider calls"})
	RouteCacheHits = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier", Name: "route_cache_hits_total", Help: "Routes served from the grid cache"})
	RouteFailures  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier", Name: "route_failures_total", Help: "Routing provider failures"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "courier", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "courier",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
