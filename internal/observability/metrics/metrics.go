package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReminderMetrics exposes counters/histograms for reminder delivery and scheduling.
type ReminderMetrics struct {
	tickDuration  prometheus.Histogram
	reminderSends *prometheus.CounterVec
	whatsappCalls *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	outboxEvents  *prometheus.CounterVec
}

// NewReminderMetrics registers reminder metrics on reg (the default registerer when nil).
func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "consultations",
			Subsystem: "reminders",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one email reminder dispatcher tick",
			Buckets:   prometheus.DefBuckets,
		}),
		reminderSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultations",
			Subsystem: "reminders",
			Name:      "email_sends_total",
			Help:      "Reminder emails attempted by the dispatcher",
		}, []string{"kind", "status"}),
		whatsappCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultations",
			Subsystem: "whatsapp",
			Name:      "calls_total",
			Help:      "Calls made to the WhatsApp campaign platform",
		}, []string{"op", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultations",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Appointment lifecycle transitions handled",
		}, []string{"transition", "status"}),
		outboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultations",
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox events processed by the deliverer",
		}, []string{"type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.tickDuration, m.reminderSends, m.whatsappCalls, m.transitions, m.outboxEvents)
	return m
}

func (m *ReminderMetrics) ObserveTick(seconds float64) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(seconds)
}

func (m *ReminderMetrics) ObserveReminderSend(kind, status string) {
	if m == nil {
		return
	}
	m.reminderSends.WithLabelValues(kind, status).Inc()
}

func (m *ReminderMetrics) ObserveWhatsApp(op, status string) {
	if m == nil {
		return
	}
	m.whatsappCalls.WithLabelValues(op, status).Inc()
}

func (m *ReminderMetrics) ObserveTransition(transition, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(transition, status).Inc()
}

func (m *ReminderMetrics) ObserveOutbox(eventType, status string) {
	if m == nil {
		return
	}
	m.outboxEvents.WithLabelValues(eventType, status).Inc()
}
