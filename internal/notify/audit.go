package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

// NotificationEvent names what happened to the appointment.
type NotificationEvent string

const (
	EventBooked      NotificationEvent = "consultation.booked"
	EventRescheduled NotificationEvent = "consultation.rescheduled"
	EventCanceled    NotificationEvent = "consultation.canceled"
)

// Notification is one row in the admin-facing notification log.
type Notification struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Event         NotificationEvent
	Title         string
	Message       string
	Channels      []string
	CreatedAt     time.Time
}

// NotificationLog records what was announced for each appointment.
type NotificationLog struct {
	db     *sql.DB
	logger *logging.Logger
}

func NewNotificationLog(db *sql.DB, logger *logging.Logger) *NotificationLog {
	if logger == nil {
		logger = logging.Default()
	}
	return &NotificationLog{db: db, logger: logger}
}

// Insert writes n and returns any database error.
func (l *NotificationLog) Insert(ctx context.Context, n Notification) error {
	if l == nil || l.db == nil {
		return nil
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO notification_log (id, appointment_id, event, title, message, channels, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := l.db.ExecContext(ctx, query,
		n.ID.String(),
		n.AppointmentID.String(),
		string(n.Event),
		n.Title,
		n.Message,
		pq.Array(n.Channels),
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("notify: insert notification: %w", err)
	}
	return nil
}

// Record is fire-and-forget: a failed insert is logged and never returned.
func (l *NotificationLog) Record(ctx context.Context, n Notification) {
	if err := l.Insert(ctx, n); err != nil {
		l.logger.Warn("notification log write failed", "appointment_id", n.AppointmentID, "event", n.Event, "error", err)
	}
}

// ListByAppointment returns notifications for an appointment, newest first.
func (l *NotificationLog) ListByAppointment(ctx context.Context, appointmentID uuid.UUID, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, appointment_id, event, title, message, channels, created_at
		FROM notification_log
		WHERE appointment_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, appointmentID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var (
			n        Notification
			id, appt string
			event    string
		)
		if err := rows.Scan(&id, &appt, &event, &n.Title, &n.Message, pq.Array(&n.Channels), &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan notification: %w", err)
		}
		if n.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("notify: parse notification id: %w", err)
		}
		if n.AppointmentID, err = uuid.Parse(appt); err != nil {
			return nil, fmt.Errorf("notify: parse appointment id: %w", err)
		}
		n.Event = NotificationEvent(event)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: iterate notifications: %w", err)
	}
	return out, nil
}
