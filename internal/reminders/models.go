package reminders

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/consultation-reminders/internal/appointments"
)

// ErrConflict is returned by CreatePlan when the appointment already has a document.
var ErrConflict = errors.New("reminders: plan already exists for appointment")

// Record is a single scheduled reminder email.
type Record struct {
	Position    int        `json:"position" bson:"position"`
	Kind        Kind       `json:"kind" bson:"kind"`
	Subject     string     `json:"subject" bson:"subject"`
	Heading     string     `json:"heading" bson:"heading"`
	Subheading  string     `json:"subheading" bson:"subheading"`
	ScheduledAt time.Time  `json:"scheduled_at" bson:"scheduledTime"`
	Sent        bool       `json:"sent" bson:"sent"`
	SentAt      *time.Time `json:"sent_at,omitempty" bson:"sentAt,omitempty"`
}

// Due reports whether the record should be delivered at asOf.
func (r Record) Due(asOf time.Time) bool {
	return !r.Sent && !r.ScheduledAt.After(asOf)
}

// Document holds every reminder record for one appointment.
type Document struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Records       []Record
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DueDocument is a document with outstanding work joined to the appointment's current state.
type DueDocument struct {
	Document
	Appointment appointments.Appointment
}

// DueRecords returns the unsent records due at asOf, oldest first.
func (d *Document) DueRecords(asOf time.Time) []Record {
	var due []Record
	for _, r := range d.Records {
		if r.Due(asOf) {
			due = append(due, r)
		}
	}
	sortByScheduled(due)
	return due
}

// Complete reports whether every record has been sent.
func (d *Document) Complete() bool {
	for _, r := range d.Records {
		if !r.Sent {
			return false
		}
	}
	return true
}

// ReminderStore is the persistence contract shared by the Postgres and Mongo backends.
type ReminderStore interface {
	CreatePlan(ctx context.Context, appointmentID uuid.UUID, records []Record) (*Document, error)
	FindDue(ctx context.Context, asOf time.Time) ([]DueDocument, error)
	MarkSent(ctx context.Context, documentID uuid.UUID, position int, sentAt time.Time) error
	DeleteIfComplete(ctx context.Context, documentID uuid.UUID) (bool, error)
	DeleteByAppointment(ctx context.Context, appointmentID uuid.UUID) error
	FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Document, error)
}

func sortByScheduled(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ScheduledAt.Before(records[j].ScheduledAt)
	})
}
