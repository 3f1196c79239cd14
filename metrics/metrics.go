// Package metrics provides Prometheus instrumentation for the trade-idea service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SignalsTotal counts generated trade ideas by source (oracle or fallback).
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeidea_signals_total",
		Help: "Total trade ideas generated",
	}, []string{"source"})

	// FallbacksTotal counts fallback substitutions by reason.
	FallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeidea_fallbacks_total",
		Help: "Trade ideas that fell back to synthetic generation",
	}, []string{"reason"})

	// RepairsTotal counts proposals whose stop/targets were re-derived from entry.
	RepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeidea_ordering_repairs_total",
		Help: "Proposals repaired because price ordering was violated",
	})

	OracleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradeidea_oracle_latency_seconds",
		Help:    "Oracle call latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
	})

	// PriceLookups counts reference price lookups by origin (cache, provider, mock).
	PriceLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeidea_price_lookups_total",
		Help: "Reference price lookups by origin",
	}, []string{"origin"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeidea_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradeidea_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "path"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeidea_rate_limited_total",
		Help: "Requests rejected by the per-IP rate limiter",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
