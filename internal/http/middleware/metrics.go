package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP collectors. The route label is the Gin route template, so ids in
// paths do not multiply series.
var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booking",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "booking",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		// Gateway pushes run inside the request, so the tail is long.
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
	}, []string{"method", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "booking",
		Subsystem: "http",
		Name:      "requests_inflight",
		Help:      "HTTP requests being served.",
	})

	httpResponseSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "booking",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response body size.",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
	}, []string{"method", "route"})

	httpRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booking",
		Subsystem: "http",
		Name:      "rejected_total",
		Help:      "Requests stopped by edge middleware, by reason.",
	}, []string{"reason"})

	idempotentReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "booking",
		Subsystem: "http",
		Name:      "idempotent_replays_total",
		Help:      "Requests recognized as replays of a stored result.",
	})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, httpInflight, httpResponseSize, httpRejected, idempotentReplays)
}

// MetricsPath is not instrumented so scrapes do not count themselves.
const MetricsPath = "/metrics"

// Metrics records request counts, latency, response size and in-flight
// requests.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == MetricsPath {
			c.Next()
			return
		}
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		method, route := c.Request.Method, routeOf(c)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n >= 0 {
			httpResponseSize.WithLabelValues(method, route).Observe(float64(n))
		}
	}
}
