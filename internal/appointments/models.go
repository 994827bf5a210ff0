package appointments

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the booking state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusBooked    Status = "booked"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// PaymentStatus tracks payment capture for an appointment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// JobRef pairs a reminder label with the job id issued by the WhatsApp platform.
type JobRef struct {
	Label string `json:"label"`
	JobID string `json:"job_id"`
}

// Appointment is a booked consultation. The booking subsystem owns it; the
// reminder subsystem reads it and writes back WhatsAppJobs.
type Appointment struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Phone          string
	Service        string
	SlotDate       time.Time
	SlotStartTime  string
	SlotEndTime    string
	MeetingLink    string
	ConsultantName string
	Status         Status
	PaymentStatus  PaymentStatus
	WhatsAppJobs   []JobRef
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Start returns the absolute instant the consultation begins.
func (a *Appointment) Start() (time.Time, error) {
	return SlotStart(a.SlotDate, a.SlotStartTime)
}

// JobIDs returns the external job ids currently attached to the appointment.
func (a *Appointment) JobIDs() []string {
	ids := make([]string, 0, len(a.WhatsAppJobs))
	for _, job := range a.WhatsAppJobs {
		if job.JobID != "" {
			ids = append(ids, job.JobID)
		}
	}
	return ids
}

// Active reports whether the appointment is a paid, upcoming booking.
func (a *Appointment) Active() bool {
	return (a.Status == StatusBooked || a.Status == StatusScheduled) && a.PaymentStatus == PaymentCompleted
}

// ServiceLabel names the service as a consultation, e.g. "Skin consultation".
func (a *Appointment) ServiceLabel() string {
	service := strings.TrimSpace(a.Service)
	if strings.Contains(strings.ToLower(service), "consultation") {
		return service
	}
	return service + " consultation"
}
