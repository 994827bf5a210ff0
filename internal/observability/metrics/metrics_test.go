package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReminderMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReminderMetrics(reg)
	m.ObserveTick(0.2)
	m.ObserveReminderSend("live_now", "sent")
	m.ObserveReminderSend("live_now", "sent")
	m.ObserveReminderSend("24hr_reminder", "failed")
	m.ObserveWhatsApp("schedule", "ok")
	m.ObserveTransition("confirm", "ok")
	m.ObserveOutbox("appointment.confirmed", "delivered")

	if got := testutil.ToFloat64(m.reminderSends.WithLabelValues("live_now", "sent")); got != 2 {
		t.Fatalf("expected 2 sends, got %v", got)
	}
	if got := testutil.ToFloat64(m.reminderSends.WithLabelValues("24hr_reminder", "failed")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.whatsappCalls.WithLabelValues("schedule", "ok")); got != 1 {
		t.Fatalf("expected 1 whatsapp call, got %v", got)
	}
}

func TestReminderMetricsNilSafe(t *testing.T) {
	var m *ReminderMetrics
	m.ObserveTick(0.1)
	m.ObserveReminderSend("live_now", "sent")
	m.ObserveWhatsApp("cancel", "failed")
	m.ObserveTransition("cancel", "ok")
	m.ObserveOutbox("appointment.canceled", "failed")
}
