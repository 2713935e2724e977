package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockapi_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockapi_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	salesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockapi_sales_total",
		Help: "Total committed sales.",
	})

	salesValueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockapi_sales_value_total",
		Help: "Cumulative monetary value of committed sales.",
	})

	digestOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockapi_digest_outcomes_total",
		Help: "Digest authentication attempts by outcome.",
	}, []string{"outcome"})

	dependencyChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockapi_dependency_checks_total",
		Help: "Dependency health probes by dependency and result.",
	}, []string{"dependency", "result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		requestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RecordSale records a committed sale of the given value.
func RecordSale(value float64) {
	salesTotal.Inc()
	if value > 0 {
		salesValueTotal.Add(value)
	}
}

// RecordDigest records the outcome of a digest authentication attempt.
func RecordDigest(accepted bool) {
	if accepted {
		digestOutcomesTotal.WithLabelValues("accepted").Inc()
	} else {
		digestOutcomesTotal.WithLabelValues("challenged").Inc()
	}
}

// RecordDependencyCheck records a dependency health probe result.
func RecordDependencyCheck(dependency string, success bool) {
	if success {
		dependencyChecksTotal.WithLabelValues(dependency, "success").Inc()
	} else {
		dependencyChecksTotal.WithLabelValues(dependency, "failure").Inc()
	}
}
