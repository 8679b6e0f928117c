// Package metrics exposes Prometheus collectors for the rankings service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapePagesTotal           *prometheus.CounterVec
	ingestRunsTotal            *prometheus.CounterVec
	rankingsStoredTotal        *prometheus.CounterVec
	playersUpsertedTotal       prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapePagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankingsd_scrape_pages_total",
				Help: "Total number of federation pages fetched, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankingsd_ingest_runs_total",
				Help: "Total number of background ingestion runs, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		rankingsStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankingsd_rankings_stored_total",
				Help: "Total number of ranking batches committed, labeled by source.",
			},
			[]string{"source"},
		)

		playersUpsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rankingsd_players_upserted_total",
				Help: "Total number of player profile records written.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrapePage increments the page fetch counter.
func ObserveScrapePage(source, outcome string) {
	scrapePagesTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRun increments the run counter for the given kind and final status.
func ObserveRun(kind, status string) {
	ingestRunsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveRankingStored increments the committed ranking batch counter.
func ObserveRankingStored(source string) {
	rankingsStoredTotal.WithLabelValues(source).Inc()
}

// ObservePlayerUpserted increments the player write counter.
func ObservePlayerUpserted() {
	playersUpsertedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
