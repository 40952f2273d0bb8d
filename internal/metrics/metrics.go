package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	transitions    *prometheus.CounterVec
	journeyLookups *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agrichain_workflow_transitions_total",
			Help: "Committed custody workflow transitions by type.",
		}, []string{"transition"}),
		journeyLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agrichain_journey_lookups_total",
			Help: "Journey lookups by result.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agrichain_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.transitions, m.journeyLookups, m.httpDuration)
	return m
}

func (m *Metrics) Transition(name string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name).Inc()
}

const (
	LookupHit      = "cache_hit"
	LookupMiss     = "cache_miss"
	LookupNotFound = "not_found"
)

func (m *Metrics) JourneyLookup(result string) {
	if m == nil {
		return
	}
	m.journeyLookups.WithLabelValues(result).Inc()
}

// Middleware records request latency labelled by the matched route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
