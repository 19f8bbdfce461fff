package middleware

import (
	"strconv"
	"time"

	"captiongram/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status", "service"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	workflowStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_workflow_steps_total",
			Help: "Total number of post workflow steps executed",
		},
		[]string{"workflow", "step", "status"},
	)

	workflowStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "post_workflow_step_duration_seconds",
			Help:    "Duration of post workflow steps in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"workflow", "step"},
	)

	workflowErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_workflow_errors_total",
			Help: "Total number of post workflow errors by kind",
		},
		[]string{"workflow", "step", "error_type"},
	)
)

func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
			serviceName,
		).Inc()

		httpRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			serviceName,
		).Observe(duration)
	}
}

// RecordWorkflowStep записывает результат шага сценария поста
func RecordWorkflowStep(workflow, step string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		workflowErrors.WithLabelValues(workflow, step, services.ErrorKind(err)).Inc()
	}
	workflowStepsTotal.WithLabelValues(workflow, step, status).Inc()
	workflowStepDuration.WithLabelValues(workflow, step).Observe(duration.Seconds())
}
