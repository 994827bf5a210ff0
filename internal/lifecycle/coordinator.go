// Package lifecycle keeps reminders consistent with appointment state. State
// changes and their notification intents commit together; Handler carries the
// intents out afterwards.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/consultation-reminders/internal/appointments"
	"github.com/wolfman30/consultation-reminders/internal/events"
	"github.com/wolfman30/consultation-reminders/internal/observability/metrics"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

var lifecycleTracer = otel.Tracer("consultations.internal.lifecycle")

var (
	ErrCanceled         = errors.New("lifecycle: appointment is canceled")
	ErrNotReschedulable = errors.New("lifecycle: appointment is not booked and paid")
	ErrWindowClosed     = errors.New("lifecycle: reschedule window closed")
	ErrSlotTaken        = errors.New("lifecycle: slot already booked")
)

// RescheduleNotice is the minimum lead time, for both the current and the
// requested slot, that a reschedule needs.
const RescheduleNotice = 8 * time.Hour

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PlanPurger deletes an appointment's reminder document inside a transaction.
// Only stores that share the appointments database can offer it.
type PlanPurger interface {
	DeleteByAppointmentTx(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID) error
}

// RescheduleRequest is a request to move an appointment to a new slot.
type RescheduleRequest struct {
	AppointmentID uuid.UUID
	Date          time.Time
	StartTime     string
	EndTime       string
}

// Coordinator applies confirm, reschedule and cancel transitions.
type Coordinator struct {
	db      TxBeginner
	purger  PlanPurger
	metrics *metrics.ReminderMetrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewCoordinator(db TxBeginner, logger *logging.Logger) *Coordinator {
	if db == nil {
		panic("lifecycle: db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{db: db, logger: logger, now: appointments.Now}
}

// WithPlanPurger drops the old reminder plan in the same commit as the state change.
func (c *Coordinator) WithPlanPurger(p PlanPurger) *Coordinator {
	c.purger = p
	return c
}

func (c *Coordinator) WithMetrics(m *metrics.ReminderMetrics) *Coordinator {
	c.metrics = m
	return c
}

func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	if now != nil {
		c.now = now
	}
	return c
}

// Confirm books a paid appointment. Confirming an already booked appointment
// is a no-op, so a replayed payment callback does not rebuild reminders.
func (c *Coordinator) Confirm(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := lifecycleTracer.Start(ctx, "lifecycle.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("consultations.appointment_id", id.String()))
	defer func() { c.observe(span, "confirm", err) }()

	return c.inTx(ctx, func(tx pgx.Tx) error {
		repo := appointments.NewRepository(tx)
		appt, err := repo.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status == appointments.StatusCanceled {
			return ErrCanceled
		}
		if appt.Active() {
			c.logger.Info("appointment already confirmed", "appointment_id", id)
			return errSkipCommit
		}
		if err := repo.MarkConfirmed(ctx, id); err != nil {
			return err
		}
		_, err = events.Append(ctx, tx, aggregate(id), events.AppointmentConfirmedV1{
			AppointmentID: id.String(),
			Slot:          slotOf(appt.SlotDate, appt.SlotStartTime, appt.SlotEndTime),
			ConfirmedAt:   c.now().UTC(),
		})
		return err
	})
}

// Reschedule moves a paid appointment to a new slot. The old reminder plan and
// job ids are released in the same commit; the intent carries the old job ids
// so they can be withdrawn from the WhatsApp platform.
func (c *Coordinator) Reschedule(ctx context.Context, req RescheduleRequest) (err error) {
	ctx, span := lifecycleTracer.Start(ctx, "lifecycle.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("consultations.appointment_id", req.AppointmentID.String()),
		attribute.String("consultations.slot_date", appointments.FormatDate(req.Date)),
		attribute.String("consultations.slot_start", req.StartTime),
	)
	defer func() { c.observe(span, "reschedule", err) }()

	newStart, err := appointments.SlotStart(req.Date, req.StartTime)
	if err != nil {
		return err
	}
	if req.EndTime != "" && !appointments.ValidClock(req.EndTime) {
		return fmt.Errorf("%w: end time %q", appointments.ErrInvalidSlot, req.EndTime)
	}

	return c.inTx(ctx, func(tx pgx.Tx) error {
		repo := appointments.NewRepository(tx)
		appt, err := repo.LockByID(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if !appt.Active() {
			return ErrNotReschedulable
		}
		currentStart, err := appt.Start()
		if err != nil {
			return err
		}
		now := c.now()
		if currentStart.Sub(now) <= RescheduleNotice {
			return fmt.Errorf("%w: current slot starts within %s", ErrWindowClosed, RescheduleNotice)
		}
		if newStart.Sub(now) <= RescheduleNotice {
			return fmt.Errorf("%w: new slot starts within %s", ErrWindowClosed, RescheduleNotice)
		}
		if newStart.Equal(currentStart) && req.EndTime == appt.SlotEndTime {
			return errSkipCommit
		}
		taken, err := repo.SlotTaken(ctx, appt.ID, req.Date, req.StartTime, req.EndTime)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}

		if err := repo.UpdateSlot(ctx, appt.ID, req.Date, req.StartTime, req.EndTime); err != nil {
			return err
		}
		if c.purger != nil {
			if err := c.purger.DeleteByAppointmentTx(ctx, tx, appt.ID); err != nil {
				return err
			}
		}
		_, err = events.Append(ctx, tx, aggregate(appt.ID), events.AppointmentRescheduledV1{
			AppointmentID:  appt.ID.String(),
			PreviousSlot:   slotOf(appt.SlotDate, appt.SlotStartTime, appt.SlotEndTime),
			Slot:           slotOf(req.Date, req.StartTime, req.EndTime),
			PreviousJobIDs: appt.JobIDs(),
			RescheduledAt:  now.UTC(),
		})
		return err
	})
}

// Cancel cancels the appointment. Canceling twice is a no-op.
func (c *Coordinator) Cancel(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := lifecycleTracer.Start(ctx, "lifecycle.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("consultations.appointment_id", id.String()))
	defer func() { c.observe(span, "cancel", err) }()

	return c.inTx(ctx, func(tx pgx.Tx) error {
		repo := appointments.NewRepository(tx)
		appt, err := repo.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status == appointments.StatusCanceled {
			return errSkipCommit
		}
		if err := repo.MarkCanceled(ctx, id); err != nil {
			return err
		}
		if c.purger != nil {
			if err := c.purger.DeleteByAppointmentTx(ctx, tx, id); err != nil {
				return err
			}
		}
		_, err = events.Append(ctx, tx, aggregate(id), events.AppointmentCanceledV1{
			AppointmentID:  id.String(),
			PreviousJobIDs: appt.JobIDs(),
			CanceledAt:     c.now().UTC(),
		})
		return err
	})
}

// errSkipCommit ends a transition early without writing anything.
var errSkipCommit = errors.New("lifecycle: nothing to do")

func (c *Coordinator) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		if errors.Is(err, errSkipCommit) {
			return nil
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("lifecycle: commit: %w", err)
	}
	return nil
}

func (c *Coordinator) observe(span trace.Span, transition string, err error) {
	if err != nil {
		span.RecordError(err)
		c.metrics.ObserveTransition(transition, "rejected")
		c.logger.Warn("appointment transition failed", "transition", transition, "error", err)
		return
	}
	c.metrics.ObserveTransition(transition, "ok")
}

func aggregate(id uuid.UUID) string {
	return "appointment:" + id.String()
}

func slotOf(date time.Time, start, end string) events.Slot {
	return events.Slot{Date: appointments.FormatDate(date), StartTime: start, EndTime: end}
}
