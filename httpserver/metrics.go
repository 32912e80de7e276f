package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maastricht-university/edmo-emotion/orchestrator"
)

const namespace = "emotion"

// Metrics owns a private registry so tests can build several servers.
type Metrics struct {
	backend string
	handler http.Handler

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	failures     *prometheus.CounterVec
	inference    *prometheus.HistogramVec
}

func NewMetrics(backend string) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	latencyBuckets := []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30}
	m := &Metrics{
		backend: backend,
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   latencyBuckets,
			},
			[]string{"method", "route", "status"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classify_failures_total",
				Help:      "Failed classifications by pipeline stage.",
			},
			[]string{"stage"},
		),
		inference: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inference_duration_seconds",
				Help:      "Duration of model inference in seconds.",
				Buckets:   latencyBuckets,
			},
			[]string{"backend"},
		),
	}

	for _, c := range []prometheus.Collector{m.httpRequests, m.httpLatency, m.failures, m.inference} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m, nil
}

func (m *Metrics) Handler() http.Handler { return m.handler }

// ObserveStage implements orchestrator.Observer.
func (m *Metrics) ObserveStage(stage orchestrator.Stage, d time.Duration, err error) {
	if err != nil {
		m.failures.WithLabelValues(string(stage)).Inc()
		return
	}
	if stage == orchestrator.StageInference {
		m.inference.WithLabelValues(m.backend).Observe(d.Seconds())
	}
}

func (m *Metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpLatency.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}
