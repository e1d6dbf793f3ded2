package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Operation results.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultNoOutput = "no_output"
)

// Collector records engine and HTTP metrics.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	tokensLearned     prometheus.Counter
	bansTotal         prometheus.Counter
	contextsOpen      prometheus.Gauge

	logger *zap.Logger
}

// NewCollector registers all metrics under namespace in a fresh registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.operationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Context operations by kind and result",
		},
		[]string{"operation", "result"},
	)

	c.operationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Context operation latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)

	c.tokensLearned = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_learned_total",
		Help:      "Tokens accepted by learn across all contexts",
	})

	c.bansTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bans_total",
		Help:      "New banned entries across all contexts",
	})

	c.contextsOpen = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "contexts_open",
		Help:      "Contexts currently held open by the engine",
	})

	c.logger.Debug("metrics collector ready", zap.String("namespace", namespace))
	return c
}

// Registry returns the registry backing c.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records one context operation.
func (c *Collector) RecordOperation(operation, result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.operationsTotal.WithLabelValues(operation, result).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddTokensLearned counts tokens accepted by learn.
func (c *Collector) AddTokensLearned(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.tokensLearned.Add(float64(n))
}

// AddBans counts new banned entries.
func (c *Collector) AddBans(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.bansTotal.Add(float64(n))
}

// SetContextsOpen reports the number of open contexts.
func (c *Collector) SetContextsOpen(n int) {
	if c == nil {
		return
	}
	c.contextsOpen.Set(float64(n))
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return strconv.Itoa(code)
	}
}
