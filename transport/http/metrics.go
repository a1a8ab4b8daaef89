package http

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/service"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrgate_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nostrgate_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	challengesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrgate_challenges_issued_total",
		Help: "Total challenges issued by kind.",
	}, []string{"kind"})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrgate_verifications_total",
		Help: "Total assertion verifications by result.",
	}, []string{"result"})

	enrichmentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrgate_enrichment_total",
		Help: "Total profile lookups by outcome.",
	}, []string{"outcome"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Metrics feeds auth flow events into the Prometheus counters.
type Metrics struct{}

var _ service.Observer = Metrics{}

func (Metrics) ChallengeIssued(kind core.ChallengeKind) {
	challengesIssued.WithLabelValues(string(kind)).Inc()
}

func (Metrics) VerificationFinished(reason string) {
	verificationsTotal.WithLabelValues(reason).Inc()
}

func (Metrics) EnrichmentFinished(outcome string) {
	enrichmentTotal.WithLabelValues(outcome).Inc()
}

// RegisterStoreSize exposes the challenge store size as a gauge. Call it once.
func RegisterStoreSize(size func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "nostrgate_challenge_store_size",
		Help: "Challenges currently held by the in-memory store.",
	}, func() float64 {
		return float64(size())
	})
}
