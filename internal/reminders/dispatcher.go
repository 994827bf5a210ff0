package reminders

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/wolfman30/consultation-reminders/internal/appointments"
	"github.com/wolfman30/consultation-reminders/internal/observability/metrics"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

// Mailer delivers one reminder email for an appointment.
type Mailer interface {
	SendReminder(ctx context.Context, appt *appointments.Appointment, rec Record) error
}

// TickResult summarises one dispatcher pass.
type TickResult struct {
	Skipped   bool
	Documents int
	Sent      int
	Failed    int
	Deleted   int
	// LeaseLost is set when the drain stopped early because the lease
	// could not be extended.
	LeaseLost bool
}

// leaseMargin is kept between a send deadline and the lease expiry.
const leaseMargin = 2 * time.Second

// Dispatcher sweeps the store on a fixed interval and emails due reminders.
// Ticks never overlap: Run drives them from one goroutine and Tick refuses
// to start while another pass is in flight. Across processes the lease is
// extended before every send and the pass stops once it cannot be.
type Dispatcher struct {
	store       ReminderStore
	mailer      Mailer
	lease       Lease
	metrics     *metrics.ReminderMetrics
	logger      *logging.Logger
	interval    time.Duration
	sendTimeout time.Duration
	now         func() time.Time
	running     atomic.Bool
}

// NewDispatcher creates a dispatcher with a 60s interval.
func NewDispatcher(store ReminderStore, mailer Mailer, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		store:       store,
		mailer:      mailer,
		logger:      logger,
		interval:    time.Minute,
		sendTimeout: 20 * time.Second,
		now:         appointments.Now,
	}
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Dispatcher) WithSendTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.sendTimeout = timeout
	}
	return d
}

// WithLease guards every tick with a cross-process lease.
func (d *Dispatcher) WithLease(lease Lease) *Dispatcher {
	d.lease = lease
	return d
}

func (d *Dispatcher) WithMetrics(m *metrics.ReminderMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// WithClock overrides the time source.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

// Run ticks immediately and then on every interval until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.store == nil || d.mailer == nil {
		d.logger.Warn("reminder dispatcher disabled: missing store or mailer")
		return
	}
	d.logger.Info("reminder dispatcher started", "interval", d.interval.String())
	d.Tick(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("reminder dispatcher stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick performs one sweep. It never returns an error; every failure is logged
// and left for the next tick.
func (d *Dispatcher) Tick(ctx context.Context) TickResult {
	if !d.running.CompareAndSwap(false, true) {
		d.logger.Warn("reminder tick skipped: previous tick still running")
		return TickResult{Skipped: true}
	}
	defer d.running.Store(false)

	var claim Claim
	if d.lease != nil {
		c, ok, err := d.lease.Acquire(ctx)
		if err != nil {
			d.logger.Error("reminder tick skipped: lease unavailable", "error", err)
			return TickResult{Skipped: true}
		}
		if !ok {
			d.logger.Debug("reminder tick skipped: lease held by another instance")
			return TickResult{Skipped: true}
		}
		claim = c
		defer claim.Release()
	}

	started := time.Now()
	result := d.drain(ctx, claim)
	d.metrics.ObserveTick(time.Since(started).Seconds())
	if result.Documents > 0 {
		d.logger.Info("reminder tick complete",
			"documents", result.Documents,
			"sent", result.Sent,
			"failed", result.Failed,
			"deleted", result.Deleted,
			"lease_lost", result.LeaseLost,
		)
	}
	return result
}

func (d *Dispatcher) drain(ctx context.Context, claim Claim) TickResult {
	var result TickResult
	now := d.now().In(appointments.Zone)

	docs, err := d.store.FindDue(ctx, now)
	if err != nil {
		d.logger.Error("reminder find due failed", "error", err)
		return result
	}
	result.Documents = len(docs)
	for i := range docs {
		if ctx.Err() != nil || result.LeaseLost {
			return result
		}
		d.processDocument(ctx, claim, &docs[i], now, &result)
	}
	return result
}

func (d *Dispatcher) processDocument(ctx context.Context, claim Claim, doc *DueDocument, now time.Time, result *TickResult) {
	appt := &doc.Appointment
	if appt.Status == appointments.StatusCanceled {
		d.purgeCanceled(ctx, doc, result)
		return
	}

	for _, rec := range doc.DueRecords(now) {
		timeout, ok := d.renew(ctx, claim)
		if !ok {
			result.LeaseLost = true
			return
		}
		if err := d.send(ctx, appt, rec, timeout); err != nil {
			result.Failed++
			d.metrics.ObserveReminderSend(rec.Kind.Label(), "failed")
			d.logger.Error("reminder email failed",
				"error", err,
				"appointment_id", appt.ID,
				"document_id", doc.ID,
				"subject", rec.Subject,
			)
			continue
		}
		result.Sent++
		d.metrics.ObserveReminderSend(rec.Kind.Label(), "sent")
		if err := d.store.MarkSent(ctx, doc.ID, rec.Position, d.now()); err != nil {
			d.logger.Error("reminder mark sent failed",
				"error", err,
				"appointment_id", appt.ID,
				"document_id", doc.ID,
				"subject", rec.Subject,
			)
		}
	}

	deleted, err := d.store.DeleteIfComplete(ctx, doc.ID)
	if err != nil {
		d.logger.Error("reminder document cleanup failed", "error", err, "document_id", doc.ID, "appointment_id", appt.ID)
		return
	}
	if deleted {
		result.Deleted++
		d.logger.Debug("reminder document complete", "document_id", doc.ID, "appointment_id", appt.ID)
	}
}

// purgeCanceled drops a plan whose appointment was canceled but whose
// cancel intent has not removed it yet.
func (d *Dispatcher) purgeCanceled(ctx context.Context, doc *DueDocument, result *TickResult) {
	if err := d.store.DeleteByAppointment(ctx, doc.AppointmentID); err != nil {
		d.logger.Warn("reminder document for canceled appointment not removed",
			"error", err, "document_id", doc.ID, "appointment_id", doc.AppointmentID)
		return
	}
	result.Deleted++
	d.logger.Info("removed reminder document of canceled appointment",
		"document_id", doc.ID, "appointment_id", doc.AppointmentID)
}

// renew extends the lease before a send and returns the send timeout, capped
// so the send finishes before the lease can expire.
func (d *Dispatcher) renew(ctx context.Context, claim Claim) (time.Duration, bool) {
	if claim == nil {
		return d.sendTimeout, true
	}
	ttl, err := claim.Extend(ctx)
	if err != nil {
		d.logger.Warn("reminder tick stopped: lease not extended", "error", err)
		return 0, false
	}
	timeout := d.sendTimeout
	if budget := ttl - leaseMargin; budget < timeout {
		timeout = budget
	}
	if timeout <= 0 {
		d.logger.Warn("reminder tick stopped: lease ttl too short for a send", "lease_ttl", ttl.String())
		return 0, false
	}
	return timeout, true
}

func (d *Dispatcher) send(ctx context.Context, appt *appointments.Appointment, rec Record, timeout time.Duration) error {
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.mailer.SendReminder(sendCtx, appt, rec)
}
