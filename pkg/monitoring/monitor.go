package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	SubmissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_submissions_total",
			Help: "Submissions written, by resulting status",
		},
		[]string{"status"},
	)

	ProgressRecomputes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_progress_recomputes_total",
			Help: "Progress tree recomputations, by operation",
		},
		[]string{"operation"},
	)

	VersionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_version_conflicts_total",
			Help: "Optimistic write conflicts that triggered a retry",
		},
		[]string{"entity"},
	)

	LockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "learnhub_lock_wait_seconds",
			Help:    "Time spent waiting for a per-key lock",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"scope"},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_events_published_total",
			Help: "Domain events published, by kind",
		},
		[]string{"kind"},
	)

	EventFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_event_failures_total",
			Help: "Domain events dropped or failed in a handler",
		},
		[]string{"kind", "reason"},
	)

	CertificatesIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "learnhub_certificates_issued_total",
			Help: "Certificates issued",
		},
	)

	ReconcileRepairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_reconcile_repairs_total",
			Help: "Inconsistencies repaired by the reconciliation job",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			SubmissionCounter,
			ProgressRecomputes,
			VersionConflicts,
			LockWait,
			EventsPublished,
			EventFailures,
			CertificatesIssued,
			ReconcileRepairs,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
