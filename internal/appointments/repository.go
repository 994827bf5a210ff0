package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when an appointment id does not resolve.
var ErrNotFound = errors.New("appointments: not found")

// ErrStale is returned when a conditional write finds the appointment
// canceled or moved to another slot.
var ErrStale = errors.New("appointments: appointment changed")

// DB abstracts the pgx query interface so a pool or a transaction can back the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads and mutates appointment rows.
type Repository struct {
	db DB
}

// NewRepository creates an appointment repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const selectColumns = `id, name, email, phone, service, slot_date, slot_start_time, slot_end_time,
		meeting_link, consultant_name, status, payment_status, whatsapp_jobs, created_at, updated_at`

// FindByID loads an appointment.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

// LockByID loads an appointment and holds a row lock until the surrounding transaction ends.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

// UpdateSlot moves the appointment to a new slot and clears its WhatsApp job ids
// in the same statement, so stale ids never survive a slot change.
func (r *Repository) UpdateSlot(ctx context.Context, id uuid.UUID, date time.Time, start, end string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET slot_date = $2, slot_start_time = $3, slot_end_time = $4, whatsapp_jobs = '[]'::jsonb, updated_at = now()
		WHERE id = $1`, id, date, start, end)
	if err != nil {
		return fmt.Errorf("appointments: update slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateWhatsAppJobs replaces the stored WhatsApp job list, but only while the
// appointment is still active on the slot appt describes. Otherwise ErrStale.
func (r *Repository) UpdateWhatsAppJobs(ctx context.Context, appt *Appointment, jobs []JobRef) error {
	data, err := encodeJobs(jobs)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET whatsapp_jobs = $2, updated_at = now()
		WHERE id = $1 AND slot_date = $3 AND slot_start_time = $4 AND slot_end_time = $5
		  AND status IN ($6, $7) AND payment_status = $8`,
		appt.ID, data, appt.SlotDate, appt.SlotStartTime, appt.SlotEndTime,
		string(StatusBooked), string(StatusScheduled), string(PaymentCompleted))
	if err != nil {
		return fmt.Errorf("appointments: update whatsapp jobs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

// MarkConfirmed records a completed payment and books the appointment.
func (r *Repository) MarkConfirmed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET status = $2, payment_status = $3, updated_at = now()
		WHERE id = $1`, id, string(StatusBooked), string(PaymentCompleted))
	if err != nil {
		return fmt.Errorf("appointments: mark confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCanceled cancels the appointment and clears its WhatsApp job ids.
func (r *Repository) MarkCanceled(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET status = $2, whatsapp_jobs = '[]'::jsonb, updated_at = now()
		WHERE id = $1`, id, string(StatusCanceled))
	if err != nil {
		return fmt.Errorf("appointments: mark canceled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SlotTaken reports whether another live appointment already holds the slot.
// Pending and canceled appointments do not hold slots.
func (r *Repository) SlotTaken(ctx context.Context, excludeID uuid.UUID, date time.Time, start, end string) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE id <> $1 AND slot_date = $2 AND slot_start_time = $3 AND slot_end_time = $4
			  AND status NOT IN ('canceled', 'pending')
		)`, excludeID, date, start, end).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("appointments: slot taken: %w", err)
	}
	return taken, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status, payment string
	var jobs []byte
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.Phone, &a.Service,
		&a.SlotDate, &a.SlotStartTime, &a.SlotEndTime,
		&a.MeetingLink, &a.ConsultantName, &status, &payment, &jobs,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	a.Status = Status(status)
	a.PaymentStatus = PaymentStatus(payment)
	if a.WhatsAppJobs, err = DecodeJobs(jobs); err != nil {
		return nil, err
	}
	return &a, nil
}

// DecodeJobs parses a stored WhatsApp job list.
func DecodeJobs(data []byte) ([]JobRef, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var jobs []JobRef
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("appointments: decode whatsapp jobs: %w", err)
	}
	return jobs, nil
}

func encodeJobs(jobs []JobRef) ([]byte, error) {
	if jobs == nil {
		jobs = []JobRef{}
	}
	data, err := json.Marshal(jobs)
	if err != nil {
		return nil, fmt.Errorf("appointments: encode whatsapp jobs: %w", err)
	}
	return data, nil
}
