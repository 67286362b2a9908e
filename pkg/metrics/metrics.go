package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialwise_http_requests_total",
		Help: "HTTP requests by method, path and status.",
	}, []string{"method", "path", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dialwise_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	activeCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dialwise_active_calls",
		Help: "Call sessions currently in progress.",
	})

	reclaimedCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialwise_reclaimed_calls_total",
		Help: "Stuck call sessions reclaimed by the timeout sweep.",
	})

	broadcastEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialwise_broadcast_events_total",
		Help: "Events published on the broadcast channel by type.",
	}, []string{"type"})
)

// SetActiveCalls records the current in-progress session count.
func SetActiveCalls(n int64) { activeCalls.Set(float64(n)) }

// AddReclaimed counts sessions reclaimed by the stuck-call sweep.
func AddReclaimed(n int) { reclaimedCalls.Add(float64(n)) }

// CountEvent counts one published broadcast event.
func CountEvent(eventType string) { broadcastEvents.WithLabelValues(eventType).Inc() }

// Middleware observes request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
