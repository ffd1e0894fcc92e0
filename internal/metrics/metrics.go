// Package metrics holds the Prometheus collectors for the segments service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "segments"

// Cache lookup results.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Operation statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusPartial = "partial"
)

// Metrics groups the service collectors.
type Metrics struct {
	cacheRequests *prometheus.CounterVec // Cache lookups by result
	operations    *prometheus.CounterVec // Service operations by name and status
	duration      *prometheus.HistogramVec
	repairedRows  *prometheus.CounterVec // Rows removed by auto-repair, by issue kind
	healthScore   prometheus.Gauge       // Last computed integrity health score
}

// New creates the collectors and registers them with reg. A nil reg returns
// nil, which disables metrics.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Segment list cache lookups",
		}, []string{"result"}),

		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Service operations by outcome",
		}, []string{"operation", "status"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		repairedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "repaired_rows_total",
			Help:      "Rows removed by auto-repair",
		}, []string{"kind"}),

		healthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "health_score",
			Help:      "Health score from the most recent validation (0-100)",
		}),
	}

	for _, c := range []prometheus.Collector{m.cacheRequests, m.operations, m.duration, m.repairedRows, m.healthScore} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

// CacheLookup counts a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// Observe records one operation with its status and the time since start.
func (m *Metrics) Observe(operation, status string, start time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Repaired adds n removed rows of the given kind.
func (m *Metrics) Repaired(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.repairedRows.WithLabelValues(kind).Add(float64(n))
}

// HealthScore sets the integrity gauge.
func (m *Metrics) HealthScore(score int) {
	if m == nil {
		return
	}
	m.healthScore.Set(float64(score))
}
