package whatsapp

import (
	"strings"

	"github.com/wolfman30/consultation-reminders/internal/appointments"
	"github.com/wolfman30/consultation-reminders/internal/reminders"
)

const (
	TemplateConfirmation = "consultation_confirmation_1"
	TemplateReschedule   = "reshedule_email"
)

var reminderTemplates = map[reminders.Kind]string{
	reminders.KindDayBefore:  "consultation_reminders_24_hour_before",
	reminders.KindHalfHour:   "consultation_reminders_30_min_before",
	reminders.KindTenMinutes: "consultation_reminders_10_min_before",
	reminders.KindLive:       "consultation_reminders_live",
	reminders.KindAfterStart: "consultation_reminder_after_5_min",
}

// ReminderTemplate returns the platform template registered for kind.
func ReminderTemplate(kind reminders.Kind) string {
	return reminderTemplates[kind]
}

// ReminderVariables returns the ordered template variables for kind.
func ReminderVariables(kind reminders.Kind, appt *appointments.Appointment) []string {
	switch kind {
	case reminders.KindDayBefore:
		return []string{
			appt.Name,
			appt.ServiceLabel(),
			appointments.FormatDate(appt.SlotDate),
			appt.SlotStartTime,
			appt.MeetingLink,
		}
	case reminders.KindHalfHour, reminders.KindTenMinutes:
		return []string{appt.Name, appt.ServiceLabel(), appt.MeetingLink}
	default:
		return []string{appt.Name, appt.MeetingLink}
	}
}

// ConfirmationMessage is the immediate booking confirmation.
func ConfirmationMessage(appt *appointments.Appointment) TemplateMessage {
	return TemplateMessage{
		Template:  TemplateConfirmation,
		Mobile:    Mobile(appt.Phone),
		Variables: []string{appt.Name, appt.ServiceLabel(), slotLabel(appt), appt.MeetingLink},
	}
}

// RescheduleMessage announces the new slot after a reschedule.
func RescheduleMessage(appt *appointments.Appointment) TemplateMessage {
	return TemplateMessage{
		Template:  TemplateReschedule,
		Mobile:    Mobile(appt.Phone),
		Variables: []string{appt.Name, appt.ServiceLabel(), slotLabel(appt), appt.MeetingLink},
	}
}

// Mobile strips formatting the platform rejects from a stored phone number.
func Mobile(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func slotLabel(appt *appointments.Appointment) string {
	return appointments.FormatDate(appt.SlotDate) + " " + appt.SlotStartTime
}
