// Package metrics exposes Prometheus counters for the form conversation.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "formbot"

// Metrics groups the collectors registered by New.
type Metrics struct {
	updates        *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	started        *prometheus.CounterVec
	submitted      *prometheus.CounterVec
	expired        prometheus.Counter
	submitFailures prometheus.Counter
	notifyFailures prometheus.Counter
	submitDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound messages by input kind.",
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Conversation machine results by outcome.",
		}, []string{"outcome"}),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions started by language.",
		}, []string{"language"}),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applications_submitted_total",
			Help:      "Applications durably appended to the log by language.",
		}, []string{"language"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Sessions discarded after the idle TTL.",
		}),
		submitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_failures_total",
			Help:      "Submits that failed to append the application record.",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Notifications that could not be delivered to the destination chat.",
		}),
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Time spent in the application sink.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.updates, m.outcomes, m.started, m.submitted,
			m.expired, m.submitFailures, m.notifyFailures, m.submitDuration,
		)
	}
	return m
}

// Update counts one inbound message of kind.
func (m *Metrics) Update(kind string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(kind).Inc()
}

// Outcome counts one machine result.
func (m *Metrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

// SessionStarted counts a started session.
func (m *Metrics) SessionStarted(language string) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(language).Inc()
}

// SessionsExpired adds n expired sessions.
func (m *Metrics) SessionsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

// Submitted counts an appended application.
func (m *Metrics) Submitted(language string, took time.Duration) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(language).Inc()
	m.submitDuration.Observe(took.Seconds())
}

// SubmitFailed counts a failed append.
func (m *Metrics) SubmitFailed() {
	if m == nil {
		return
	}
	m.submitFailures.Inc()
}

// NotifyFailed counts a notification that was given up on.
func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}
