package whatsapp

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/consultation-reminders/internal/appointments"
	"github.com/wolfman30/consultation-reminders/internal/observability/metrics"
	"github.com/wolfman30/consultation-reminders/internal/reminders"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

// Delegate hands reminder timing to the campaign platform. Nothing here is
// polled locally; the platform fires each job at its scheduled instant.
type Delegate struct {
	client  *Client
	metrics *metrics.ReminderMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewDelegate wires a Delegate around client.
func NewDelegate(client *Client, logger *logging.Logger) *Delegate {
	if logger == nil {
		logger = logging.Default()
	}
	return &Delegate{client: client, logger: logger, now: appointments.Now}
}

// WithMetrics records WhatsApp call outcomes.
func (d *Delegate) WithMetrics(m *metrics.ReminderMetrics) *Delegate {
	d.metrics = m
	return d
}

// WithClock overrides the clock used to drop already-past offsets.
func (d *Delegate) WithClock(now func() time.Time) *Delegate {
	if now != nil {
		d.now = now
	}
	return d
}

// ScheduleReminders submits one timed job per reminder kind and returns the
// references that were accepted. Offsets already in the past are not
// submitted, so fewer than five jobs can come back even when nothing failed.
// A failed offset is logged and skipped; only an unusable slot time fails the
// whole call.
func (d *Delegate) ScheduleReminders(ctx context.Context, appt *appointments.Appointment) ([]appointments.JobRef, error) {
	start, err := appt.Start()
	if err != nil {
		return nil, fmt.Errorf("whatsapp: schedule reminders: %w", err)
	}
	now := d.now()
	mobile := Mobile(appt.Phone)

	jobs := make([]appointments.JobRef, 0, len(reminders.Kinds))
	for _, kind := range reminders.Kinds {
		sendAt := kind.At(start)
		if !sendAt.After(now) {
			d.logger.Debug("whatsapp reminder already past", "appointment_id", appt.ID, "label", kind.Label())
			continue
		}
		jobID, err := d.client.Schedule(ctx, ScheduleRequest{
			Template:  ReminderTemplate(kind),
			Mobile:    mobile,
			SendAt:    sendAt,
			Variables: ReminderVariables(kind, appt),
		})
		if err != nil {
			d.metrics.ObserveWhatsApp("schedule", "error")
			d.logger.Error("whatsapp reminder schedule failed",
				"appointment_id", appt.ID,
				"label", kind.Label(),
				"send_at", sendAt,
				"error", err,
			)
			continue
		}
		d.metrics.ObserveWhatsApp("schedule", "ok")
		jobs = append(jobs, appointments.JobRef{Label: kind.Label(), JobID: jobID})
	}
	d.logger.Info("whatsapp reminders scheduled", "appointment_id", appt.ID, "scheduled", len(jobs))
	return jobs, nil
}

// CancelJobs withdraws each job id and returns how many cancellations the
// platform acknowledged. Failures are logged per id.
func (d *Delegate) CancelJobs(ctx context.Context, jobIDs []string) int {
	canceled := 0
	for _, id := range jobIDs {
		if id == "" {
			continue
		}
		if err := d.client.Cancel(ctx, id); err != nil {
			d.metrics.ObserveWhatsApp("cancel", "error")
			d.logger.Error("whatsapp job cancel failed", "job_id", id, "error", err)
			continue
		}
		d.metrics.ObserveWhatsApp("cancel", "ok")
		canceled++
	}
	return canceled
}

// SendNow delivers an immediate template message.
func (d *Delegate) SendNow(ctx context.Context, msg TemplateMessage) error {
	if err := d.client.SendTemplate(ctx, msg); err != nil {
		d.metrics.ObserveWhatsApp("send", "error")
		return err
	}
	d.metrics.ObserveWhatsApp("send", "ok")
	return nil
}

// SendConfirmation sends the booking confirmation template.
func (d *Delegate) SendConfirmation(ctx context.Context, appt *appointments.Appointment) error {
	return d.SendNow(ctx, ConfirmationMessage(appt))
}

// SendRescheduleNotice sends the reschedule template for the appointment's new slot.
func (d *Delegate) SendRescheduleNotice(ctx context.Context, appt *appointments.Appointment) error {
	return d.SendNow(ctx, RescheduleMessage(appt))
}
