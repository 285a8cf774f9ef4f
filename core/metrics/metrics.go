// Package metrics exposes Prometheus collectors for the bot and a small HTTP
// server serving /metrics and /healthz.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tariffbot"

// Metrics groups the bot collectors.
type Metrics struct {
	Updates        *prometheus.CounterVec
	StepsAccepted  *prometheus.CounterVec
	InputsRejected *prometheus.CounterVec
	Submissions    *prometheus.CounterVec
	SubmitDuration *prometheus.HistogramVec
	Reminders      *prometheus.CounterVec
	Registrations  prometheus.Counter
}

// New creates the collectors and registers them in reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates received by kind.",
		}, []string{"kind"}),
		StepsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_steps_total",
			Help:      "Accepted conversation inputs by flow and state.",
		}, []string{"flow", "state"}),
		InputsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_rejected_inputs_total",
			Help:      "Invalid conversation inputs by flow and state.",
		}, []string{"flow", "state"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Tariff service submissions by flow and outcome.",
		}, []string{"flow", "outcome"}),
		SubmitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Duration of tariff service submissions.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"flow"}),
		Reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Reminder deliveries by result.",
		}, []string{"result"}),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Users seen for the first time.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Updates,
			m.StepsAccepted,
			m.InputsRejected,
			m.Submissions,
			m.SubmitDuration,
			m.Reminders,
			m.Registrations,
		)
	}
	return m
}

// StepAccepted counts a valid input.
func (m *Metrics) StepAccepted(flow, state string) {
	m.StepsAccepted.WithLabelValues(flow, state).Inc()
}

// InputRejected counts an invalid input.
func (m *Metrics) InputRejected(flow, state string) {
	m.InputsRejected.WithLabelValues(flow, state).Inc()
}

// Submitted records one submission attempt.
func (m *Metrics) Submitted(flow, outcome string, took time.Duration) {
	m.Submissions.WithLabelValues(flow, outcome).Inc()
	m.SubmitDuration.WithLabelValues(flow).Observe(took.Seconds())
}

// ReminderDelivered counts a reminder attempt.
func (m *Metrics) ReminderDelivered(ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.Reminders.WithLabelValues(result).Inc()
}

// UpdateReceived counts an inbound update.
func (m *Metrics) UpdateReceived(kind string) {
	m.Updates.WithLabelValues(kind).Inc()
}

// UserRegistered counts a first contact.
func (m *Metrics) UserRegistered() {
	m.Registrations.Inc()
}
