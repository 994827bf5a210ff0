package reminders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfman30/consultation-reminders/internal/appointments"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

const uniqueViolation = "23505"

// DB abstracts the pgx pool for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists reminder documents in Postgres.
type Store struct {
	db     DB
	logger *logging.Logger
}

// NewStore creates a Postgres-backed reminder store.
func NewStore(db DB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreatePlan stores a new document for the appointment. It returns nil and
// creates nothing when records is empty, and ErrConflict when the appointment
// already has a document.
func (s *Store) CreatePlan(ctx context.Context, appointmentID uuid.UUID, records []Record) (*Document, error) {
	if len(records) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	doc := &Document{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("reminders: begin create plan: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO reminder_documents (id, appointment_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)`, doc.ID, appointmentID, now, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("reminders: insert document: %w", err)
	}

	for i, r := range records {
		r.Position = i
		r.Sent = false
		r.SentAt = nil
		_, err := tx.Exec(ctx, `
			INSERT INTO reminder_records (document_id, position, kind, subject, heading, subheading, scheduled_at, sent)
			VALUES ($1, $2, $3, $4, $5, $6, $7, false)`,
			doc.ID, r.Position, int(r.Kind), r.Subject, r.Heading, r.Subheading, r.ScheduledAt.UTC(),
		)
		if err != nil {
			return nil, fmt.Errorf("reminders: insert record %d: %w", i, err)
		}
		doc.Records = append(doc.Records, r)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("reminders: commit create plan: %w", err)
	}
	return doc, nil
}

// FindDue returns every document holding at least one unsent record scheduled
// at or before asOf, joined with its appointment. Documents whose appointment
// no longer exists are logged and skipped.
func (s *Store) FindDue(ctx context.Context, asOf time.Time) ([]DueDocument, error) {
	rows, err := s.db.Query(ctx, `
		SELECT d.id, d.appointment_id, d.created_at, d.updated_at,
			r.position, r.kind, r.subject, r.heading, r.subheading, r.scheduled_at, r.sent, r.sent_at,
			a.id IS NOT NULL AS has_appointment,
			COALESCE(a.name, ''), COALESCE(a.email, ''), COALESCE(a.phone, ''), COALESCE(a.service, ''),
			a.slot_date, COALESCE(a.slot_start_time, ''), COALESCE(a.slot_end_time, ''),
			COALESCE(a.meeting_link, ''), COALESCE(a.consultant_name, ''),
			COALESCE(a.status, ''), COALESCE(a.payment_status, '')
		FROM reminder_documents d
		JOIN reminder_records r ON r.document_id = d.id
		LEFT JOIN appointments a ON a.id = d.appointment_id
		WHERE EXISTS (
			SELECT 1 FROM reminder_records due
			WHERE due.document_id = d.id AND due.sent = false AND due.scheduled_at <= $1
		)
		ORDER BY d.created_at, d.id, r.position`, asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("reminders: find due: %w", err)
	}
	defer rows.Close()

	var (
		result []DueDocument
		stale  = map[uuid.UUID]bool{}
	)
	for rows.Next() {
		var (
			doc            Document
			rec            Record
			kind           int
			sentAt         sql.NullTime
			hasAppointment bool
			appt           appointments.Appointment
			slotDate       sql.NullTime
			status         string
			payment        string
		)
		if err := rows.Scan(
			&doc.ID, &doc.AppointmentID, &doc.CreatedAt, &doc.UpdatedAt,
			&rec.Position, &kind, &rec.Subject, &rec.Heading, &rec.Subheading, &rec.ScheduledAt, &rec.Sent, &sentAt,
			&hasAppointment,
			&appt.Name, &appt.Email, &appt.Phone, &appt.Service,
			&slotDate, &appt.SlotStartTime, &appt.SlotEndTime,
			&appt.MeetingLink, &appt.ConsultantName,
			&status, &payment,
		); err != nil {
			return nil, fmt.Errorf("reminders: scan due: %w", err)
		}
		if !hasAppointment {
			if !stale[doc.ID] {
				stale[doc.ID] = true
				s.logger.Warn("reminder document references missing appointment; skipping",
					"document_id", doc.ID, "appointment_id", doc.AppointmentID)
			}
			continue
		}
		rec.Kind = Kind(kind)
		if sentAt.Valid {
			t := sentAt.Time
			rec.SentAt = &t
		}
		if n := len(result); n == 0 || result[n-1].ID != doc.ID {
			appt.ID = doc.AppointmentID
			if slotDate.Valid {
				appt.SlotDate = slotDate.Time
			}
			appt.Status = appointments.Status(status)
			appt.PaymentStatus = appointments.PaymentStatus(payment)
			result = append(result, DueDocument{Document: doc, Appointment: appt})
		}
		last := &result[len(result)-1]
		last.Records = append(last.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminders: iterate due: %w", err)
	}
	return result, nil
}

// MarkSent flags one record as delivered. Marking an already sent record is a no-op.
func (s *Store) MarkSent(ctx context.Context, documentID uuid.UUID, position int, sentAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reminder_records SET sent = true, sent_at = $3
		WHERE document_id = $1 AND position = $2 AND sent = false`,
		documentID, position, sentAt.UTC())
	if err != nil {
		return fmt.Errorf("reminders: mark sent: %w", err)
	}
	return nil
}

// DeleteIfComplete removes the document when none of its records remain unsent.
func (s *Store) DeleteIfComplete(ctx context.Context, documentID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM reminder_documents d
		WHERE d.id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM reminder_records r WHERE r.document_id = d.id AND r.sent = false
		  )`, documentID)
	if err != nil {
		return false, fmt.Errorf("reminders: delete if complete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteByAppointment removes the appointment's document unconditionally.
func (s *Store) DeleteByAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	return deleteByAppointment(ctx, s.db, appointmentID)
}

// DeleteByAppointmentTx removes the appointment's document as part of tx, so
// the old plan disappears in the same commit as the slot change.
func (s *Store) DeleteByAppointmentTx(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID) error {
	return deleteByAppointment(ctx, tx, appointmentID)
}

func deleteByAppointment(ctx context.Context, db execer, appointmentID uuid.UUID) error {
	if _, err := db.Exec(ctx, `DELETE FROM reminder_documents WHERE appointment_id = $1`, appointmentID); err != nil {
		return fmt.Errorf("reminders: delete by appointment: %w", err)
	}
	return nil
}

// FindByAppointment returns the appointment's document, or nil when none exists.
func (s *Store) FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT d.id, d.appointment_id, d.created_at, d.updated_at,
			r.position, r.kind, r.subject, r.heading, r.subheading, r.scheduled_at, r.sent, r.sent_at
		FROM reminder_documents d
		JOIN reminder_records r ON r.document_id = d.id
		WHERE d.appointment_id = $1
		ORDER BY r.position`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("reminders: find by appointment: %w", err)
	}
	defer rows.Close()

	var doc *Document
	for rows.Next() {
		var (
			d      Document
			rec    Record
			kind   int
			sentAt sql.NullTime
		)
		if err := rows.Scan(
			&d.ID, &d.AppointmentID, &d.CreatedAt, &d.UpdatedAt,
			&rec.Position, &kind, &rec.Subject, &rec.Heading, &rec.Subheading, &rec.ScheduledAt, &rec.Sent, &sentAt,
		); err != nil {
			return nil, fmt.Errorf("reminders: scan document: %w", err)
		}
		rec.Kind = Kind(kind)
		if sentAt.Valid {
			t := sentAt.Time
			rec.SentAt = &t
		}
		if doc == nil {
			doc = &d
		}
		doc.Records = append(doc.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminders: iterate document: %w", err)
	}
	return doc, nil
}

var _ ReminderStore = (*Store)(nil)
