package events

import "time"

const (
	TypeAppointmentConfirmed   = "appointment.confirmed"
	TypeAppointmentRescheduled = "appointment.rescheduled"
	TypeAppointmentCanceled    = "appointment.canceled"
)

// Slot is a booked calendar date with local start and end times.
type Slot struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// AppointmentConfirmedV1 is written when payment is captured for a booking.
type AppointmentConfirmedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	Slot          Slot      `json:"slot"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

func (AppointmentConfirmedV1) EventType() string { return TypeAppointmentConfirmed }

// AppointmentRescheduledV1 carries the job ids that belonged to the old slot.
type AppointmentRescheduledV1 struct {
	AppointmentID  string    `json:"appointment_id"`
	PreviousSlot   Slot      `json:"previous_slot"`
	Slot           Slot      `json:"slot"`
	PreviousJobIDs []string  `json:"previous_job_ids,omitempty"`
	RescheduledAt  time.Time `json:"rescheduled_at"`
}

func (AppointmentRescheduledV1) EventType() string { return TypeAppointmentRescheduled }

// AppointmentCanceledV1 carries the job ids to withdraw.
type AppointmentCanceledV1 struct {
	AppointmentID  string    `json:"appointment_id"`
	PreviousJobIDs []string  `json:"previous_job_ids,omitempty"`
	CanceledAt     time.Time `json:"canceled_at"`
}

func (AppointmentCanceledV1) EventType() string { return TypeAppointmentCanceled }
