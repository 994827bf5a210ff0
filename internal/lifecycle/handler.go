package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/consultation-reminders/internal/appointments"
	"github.com/wolfman30/consultation-reminders/internal/events"
	"github.com/wolfman30/consultation-reminders/internal/notify"
	"github.com/wolfman30/consultation-reminders/internal/reminders"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

// AppointmentStore reads appointments and writes back WhatsApp job ids.
// UpdateWhatsAppJobs returns appointments.ErrStale when the appointment is no
// longer active on the slot it was loaded with.
type AppointmentStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	UpdateWhatsAppJobs(ctx context.Context, appt *appointments.Appointment, jobs []appointments.JobRef) error
}

// WhatsApp schedules and withdraws campaign jobs and sends immediate templates.
type WhatsApp interface {
	ScheduleReminders(ctx context.Context, appt *appointments.Appointment) ([]appointments.JobRef, error)
	CancelJobs(ctx context.Context, jobIDs []string) int
	SendConfirmation(ctx context.Context, appt *appointments.Appointment) error
	SendRescheduleNotice(ctx context.Context, appt *appointments.Appointment) error
}

// Mailer sends the transactional emails tied to a transition.
type Mailer interface {
	SendConfirmation(ctx context.Context, appt *appointments.Appointment) error
	SendRescheduleConfirmation(ctx context.Context, appt *appointments.Appointment) error
}

// NotificationRecorder keeps the admin notification log.
type NotificationRecorder interface {
	Record(ctx context.Context, n notify.Notification)
}

// Handler carries out lifecycle intents read from the outbox.
//
// A returned error makes the outbox retry the entry, so errors are only
// returned before the first irreversible side effect of a new slot
// (scheduling WhatsApp jobs or sending a message). Later failures are logged
// with enough context for manual reconciliation.
type Handler struct {
	appointments AppointmentStore
	plans        reminders.ReminderStore
	whatsapp     WhatsApp
	mailer       Mailer
	notes        NotificationRecorder
	logger       *logging.Logger
	now          func() time.Time
}

// HandlerDeps groups the Handler collaborators. Notes is optional.
type HandlerDeps struct {
	Appointments AppointmentStore
	Plans        reminders.ReminderStore
	WhatsApp     WhatsApp
	Mailer       Mailer
	Notes        NotificationRecorder
	Logger       *logging.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	if deps.Appointments == nil || deps.Plans == nil || deps.WhatsApp == nil || deps.Mailer == nil {
		panic("lifecycle: handler dependencies missing")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		appointments: deps.Appointments,
		plans:        deps.Plans,
		whatsapp:     deps.WhatsApp,
		mailer:       deps.Mailer,
		notes:        deps.Notes,
		logger:       logger,
		now:          appointments.Now,
	}
}

// WithClock overrides the clock used to build reminder plans.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	if now != nil {
		h.now = now
	}
	return h
}

// Handle implements events.DeliveryHandler.
func (h *Handler) Handle(ctx context.Context, entry events.OutboxEntry) error {
	ctx, span := lifecycleTracer.Start(ctx, "lifecycle.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("consultations.event_type", entry.Type),
		attribute.String("consultations.aggregate", entry.Aggregate),
	)

	var err error
	switch entry.Type {
	case events.TypeAppointmentConfirmed:
		var evt events.AppointmentConfirmedV1
		if _, err = events.Decode(entry, &evt); err == nil {
			err = h.handleConfirmed(ctx, evt)
		}
	case events.TypeAppointmentRescheduled:
		var evt events.AppointmentRescheduledV1
		if _, err = events.Decode(entry, &evt); err == nil {
			err = h.handleRescheduled(ctx, evt)
		}
	case events.TypeAppointmentCanceled:
		var evt events.AppointmentCanceledV1
		if _, err = events.Decode(entry, &evt); err == nil {
			err = h.handleCanceled(ctx, evt)
		}
	default:
		h.logger.Warn("ignoring unknown outbox event", "type", entry.Type, "event_id", entry.ID)
		return nil
	}
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (h *Handler) handleConfirmed(ctx context.Context, evt events.AppointmentConfirmedV1) error {
	appt, err := h.load(ctx, evt.AppointmentID)
	if err != nil || appt == nil {
		return err
	}
	if !appt.Active() {
		h.logger.Info("skipping confirmation for inactive appointment", "appointment_id", appt.ID, "status", appt.Status)
		return nil
	}
	if !sameSlot(appt, evt.Slot) {
		// A later reschedule owns the reminders for the current slot.
		h.logger.Info("confirmation superseded by reschedule", "appointment_id", appt.ID)
	} else if err := h.rebuild(ctx, appt, nil); err != nil {
		return err
	}

	if err := h.whatsapp.SendConfirmation(ctx, appt); err != nil {
		h.logger.Error("whatsapp confirmation failed", "appointment_id", appt.ID, "error", err)
	}
	if err := h.mailer.SendConfirmation(ctx, appt); err != nil {
		h.logger.Error("confirmation email failed", "appointment_id", appt.ID, "error", err)
	}
	h.record(ctx, appt, notify.EventBooked, "Consultation booked",
		fmt.Sprintf("%s booked a %s on %s at %s", appt.Name, appt.ServiceLabel(), appointments.FormatDate(appt.SlotDate), appt.SlotStartTime))
	return nil
}

func (h *Handler) handleRescheduled(ctx context.Context, evt events.AppointmentRescheduledV1) error {
	id, err := uuid.Parse(evt.AppointmentID)
	if err != nil {
		h.logger.Error("rescheduled event has bad appointment id", "appointment_id", evt.AppointmentID, "error", err)
		return nil
	}
	appt, err := h.load(ctx, evt.AppointmentID)
	if err != nil {
		return err
	}

	h.withdraw(ctx, id, evt.PreviousJobIDs)
	if err := h.plans.DeleteByAppointment(ctx, id); err != nil {
		return fmt.Errorf("lifecycle: delete old plan: %w", err)
	}
	if appt == nil {
		return nil
	}
	if !appt.Active() {
		h.withdraw(ctx, id, without(appt.JobIDs(), evt.PreviousJobIDs))
		h.logger.Info("skipping rebuild for inactive appointment", "appointment_id", appt.ID, "status", appt.Status)
		return nil
	}
	if !sameSlot(appt, evt.Slot) {
		h.logger.Info("reschedule superseded by a later change", "appointment_id", appt.ID)
		return nil
	}
	if err := h.rebuild(ctx, appt, evt.PreviousJobIDs); err != nil {
		return err
	}

	if err := h.whatsapp.SendRescheduleNotice(ctx, appt); err != nil {
		h.logger.Error("whatsapp reschedule notice failed", "appointment_id", appt.ID, "error", err)
	}
	if err := h.mailer.SendRescheduleConfirmation(ctx, appt); err != nil {
		h.logger.Error("reschedule email failed", "appointment_id", appt.ID, "error", err)
	}
	h.record(ctx, appt, notify.EventRescheduled, "Consultation rescheduled",
		fmt.Sprintf("%s moved from %s %s to %s %s", appt.Name,
			evt.PreviousSlot.Date, evt.PreviousSlot.StartTime, evt.Slot.Date, evt.Slot.StartTime))
	return nil
}

func (h *Handler) handleCanceled(ctx context.Context, evt events.AppointmentCanceledV1) error {
	id, err := uuid.Parse(evt.AppointmentID)
	if err != nil {
		h.logger.Error("canceled event has bad appointment id", "appointment_id", evt.AppointmentID, "error", err)
		return nil
	}
	appt, err := h.load(ctx, evt.AppointmentID)
	if err != nil {
		return err
	}

	// Jobs stored after the cancel committed were never seen by the intent.
	ids := evt.PreviousJobIDs
	if appt != nil && !appt.Active() {
		ids = append(append([]string(nil), ids...), without(appt.JobIDs(), ids)...)
	}
	h.withdraw(ctx, id, ids)
	if err := h.plans.DeleteByAppointment(ctx, id); err != nil {
		return fmt.Errorf("lifecycle: delete plan: %w", err)
	}
	if h.notes != nil {
		h.notes.Record(ctx, notify.Notification{
			AppointmentID: id,
			Event:         notify.EventCanceled,
			Title:         "Consultation canceled",
			Message:       fmt.Sprintf("withdrew %d scheduled WhatsApp reminders", len(ids)),
			Channels:      []string{"whatsapp"},
		})
	}
	return nil
}

// rebuild creates the email plan and schedules WhatsApp jobs for the
// appointment's current slot. Jobs already stored on the appointment are
// withdrawn first, except those listed in withdrawn. The job list is
// replaced, never appended to, and only while the slot is still current.
func (h *Handler) rebuild(ctx context.Context, appt *appointments.Appointment, withdrawn []string) error {
	plan, err := reminders.BuildPlan(appt, h.now())
	if err != nil {
		h.logger.Error("reminder plan rejected", "appointment_id", appt.ID, "error", err)
		return nil
	}
	if err := h.createPlan(ctx, appt.ID, reminders.Records(plan)); err != nil {
		return err
	}

	h.withdraw(ctx, appt.ID, without(appt.JobIDs(), withdrawn))
	jobs, err := h.whatsapp.ScheduleReminders(ctx, appt)
	if err != nil {
		h.logger.Error("whatsapp scheduling rejected", "appointment_id", appt.ID, "error", err)
		return nil
	}
	err = h.appointments.UpdateWhatsAppJobs(ctx, appt, jobs)
	if errors.Is(err, appointments.ErrStale) {
		h.logger.Info("appointment changed while scheduling; withdrawing new jobs", "appointment_id", appt.ID)
		h.withdraw(ctx, appt.ID, refIDs(jobs))
		return nil
	}
	if err != nil {
		h.logger.Error("storing whatsapp job ids failed",
			"appointment_id", appt.ID,
			"jobs", jobs,
			"error", err,
		)
		return nil
	}
	appt.WhatsAppJobs = jobs
	h.logger.Info("reminders rebuilt", "appointment_id", appt.ID, "email_reminders", len(plan), "whatsapp_jobs", len(jobs))
	return nil
}

func (h *Handler) createPlan(ctx context.Context, id uuid.UUID, records []reminders.Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := h.plans.CreatePlan(ctx, id, records)
	if errors.Is(err, reminders.ErrConflict) {
		h.logger.Warn("replacing existing reminder plan", "appointment_id", id)
		if err := h.plans.DeleteByAppointment(ctx, id); err != nil {
			return fmt.Errorf("lifecycle: clear conflicting plan: %w", err)
		}
		_, err = h.plans.CreatePlan(ctx, id, records)
	}
	if err != nil {
		return fmt.Errorf("lifecycle: create plan: %w", err)
	}
	return nil
}

func (h *Handler) withdraw(ctx context.Context, id uuid.UUID, jobIDs []string) {
	if len(jobIDs) == 0 {
		return
	}
	canceled := h.whatsapp.CancelJobs(ctx, jobIDs)
	if canceled < len(jobIDs) {
		h.logger.Warn("some whatsapp jobs were not withdrawn",
			"appointment_id", id,
			"requested", len(jobIDs),
			"canceled", canceled,
			"job_ids", jobIDs,
		)
	}
}

// load returns nil without error when the appointment no longer exists.
func (h *Handler) load(ctx context.Context, rawID string) (*appointments.Appointment, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		h.logger.Error("event has bad appointment id", "appointment_id", rawID, "error", err)
		return nil, nil
	}
	appt, err := h.appointments.FindByID(ctx, id)
	if errors.Is(err, appointments.ErrNotFound) {
		h.logger.Warn("appointment vanished before intent was handled", "appointment_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lifecycle: load appointment: %w", err)
	}
	return appt, nil
}

func (h *Handler) record(ctx context.Context, appt *appointments.Appointment, event notify.NotificationEvent, title, message string) {
	if h.notes == nil {
		return
	}
	h.notes.Record(ctx, notify.Notification{
		AppointmentID: appt.ID,
		Event:         event,
		Title:         title,
		Message:       message,
		Channels:      []string{"email", "whatsapp"},
	})
}

func refIDs(jobs []appointments.JobRef) []string {
	return (&appointments.Appointment{WhatsAppJobs: jobs}).JobIDs()
}

// without returns the ids not present in skip.
func without(ids, skip []string) []string {
	if len(skip) == 0 {
		return ids
	}
	seen := make(map[string]struct{}, len(skip))
	for _, id := range skip {
		seen[id] = struct{}{}
	}
	var out []string
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func sameSlot(appt *appointments.Appointment, slot events.Slot) bool {
	return appointments.FormatDate(appt.SlotDate) == slot.Date &&
		appt.SlotStartTime == slot.StartTime &&
		appt.SlotEndTime == slot.EndTime
}

var _ events.DeliveryHandler = (*Handler)(nil)
