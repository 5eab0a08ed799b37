// Package metrics exposes the station counters in the Prometheus format.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "odi_gate"

// Scan results.
const (
	ResultAccepted      = "accepted"
	ResultLowConfidence = "low_confidence"
	ResultInvalid       = "invalid_payload"
	ResultNoCode        = "no_code"
	ResultNotImage      = "not_image"
	ResultTooLarge      = "too_large"
	ResultBusy          = "busy"
	ResultDuplicate     = "duplicate"
)

type Metrics struct {
	registry *prometheus.Registry

	scans            *prometheus.CounterVec
	sessions         *prometheus.CounterVec
	fetchDegraded    prometheus.Counter
	approvalDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Decoded scans by source and validation result.",
		}, []string{"source", "result"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Scan sessions by terminal state.",
		}, []string{"outcome"}),
		fetchDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_degraded_total",
			Help:      "Person lookups that fell back to the scan snapshot.",
		}),
		approvalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "approval_duration_seconds",
			Help:      "Time spent submitting an approval to the backend.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.scans,
		m.sessions,
		m.fetchDegraded,
		m.approvalDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ScanObserved(source string, result string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(source, result).Inc()
}

func (m *Metrics) SessionFinished(outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FetchDegraded() {
	if m == nil {
		return
	}
	m.fetchDegraded.Inc()
}

func (m *Metrics) ObserveApproval(d time.Duration) {
	if m == nil {
		return
	}
	m.approvalDuration.Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Scans returns the current value of a scans_total series.
func (m *Metrics) Scans(source string, result string) float64 {
	return counterValue(m.scans.WithLabelValues(source, result))
}

func (m *Metrics) Sessions(outcome string) float64 {
	return counterValue(m.sessions.WithLabelValues(outcome))
}

func (m *Metrics) Degraded() float64 {
	return counterValue(m.fetchDegraded)
}
