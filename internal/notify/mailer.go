package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/consultation-reminders/internal/appointments"
	"github.com/wolfman30/consultation-reminders/internal/reminders"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

const (
	defaultRescheduleURL = "https://ineffa.tech/reshedule-consultaion"

	SubjectConfirmation = "Consultation Booking Confirmation - Ineffa"
	SubjectReschedule   = "Consultation Reschedule Confirmation - Ineffa"
	SubjectOTP          = "Your OTP for Ineffa Login"

	internalSubjectBooking    = "New Consultation Booking Alert"
	internalSubjectReschedule = "Consultation Reschedule Alert"
	internalSubjectReminder   = "Consultation Reminder Alert"
)

// ErrNoRecipient is returned when the appointment has no email address.
var ErrNoRecipient = errors.New("notify: appointment has no email address")

// MailerConfig controls links and internal copies.
type MailerConfig struct {
	RescheduleURL string
	// InternalRecipients receive a short alert for every client-facing email.
	InternalRecipients []string
}

// Mailer renders consultation emails and hands them to an EmailSender.
type Mailer struct {
	sender        EmailSender
	rescheduleURL string
	internal      []string
	logger        *logging.Logger
}

func NewMailer(sender EmailSender, cfg MailerConfig, logger *logging.Logger) *Mailer {
	if logger == nil {
		logger = logging.Default()
	}
	url := strings.TrimSpace(cfg.RescheduleURL)
	if url == "" {
		url = defaultRescheduleURL
	}
	var internal []string
	for _, addr := range cfg.InternalRecipients {
		if addr = strings.TrimSpace(addr); addr != "" {
			internal = append(internal, addr)
		}
	}
	return &Mailer{sender: sender, rescheduleURL: url, internal: internal, logger: logger}
}

// ParseRecipients splits a comma separated address list.
func ParseRecipients(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SendReminder delivers one reminder record. Only the client email decides
// the outcome; the internal copy is best-effort.
func (m *Mailer) SendReminder(ctx context.Context, appt *appointments.Appointment, rec reminders.Record) error {
	view := m.view(appt)
	view.Heading = rec.Heading
	view.Lead = rec.Subheading
	view.DetailsTitle = "Consultation Details:"
	view.LinkLabel = "Meeting Link:"
	view.ButtonLabel = "Reschedule Appointment"

	if err := m.sendConsultation(ctx, appt, rec.Subject, CategoryReminder, view); err != nil {
		return err
	}
	m.notifyInternal(ctx, internalSubjectReminder, appt, "")
	return nil
}

// SendConfirmation sends the booking confirmation.
func (m *Mailer) SendConfirmation(ctx context.Context, appt *appointments.Appointment) error {
	view := m.view(appt)
	view.Heading = "Consultation Booking Confirmation"
	view.Lead = "Thank you for booking a consultation with Ineffa. Your booking has been confirmed."
	view.DetailsTitle = "Booking Details:"
	view.LinkLabel = "Meeting Link:"
	view.Footnote = "Please make sure to join the consultation at the scheduled time using the link provided above."
	view.ButtonLabel = "Reschedule Appointment"

	if err := m.sendConsultation(ctx, appt, SubjectConfirmation, CategoryConfirmation, view); err != nil {
		return err
	}
	m.notifyInternal(ctx, internalSubjectBooking, appt, "")
	return nil
}

// SendRescheduleConfirmation announces the new slot.
func (m *Mailer) SendRescheduleConfirmation(ctx context.Context, appt *appointments.Appointment) error {
	view := m.view(appt)
	view.Heading = "Consultation Reschedule Confirmation"
	view.Lead = "Your consultation with Ineffa has been successfully rescheduled. Here are your updated booking details:"
	view.DetailsTitle = "New Booking Details:"
	view.LinkLabel = "Updated Meeting Link:"
	view.Footnote = "Please make sure to join the consultation at the newly scheduled time using the updated link provided above."
	view.ButtonLabel = "Reschedule Again"

	if err := m.sendConsultation(ctx, appt, SubjectReschedule, CategoryReschedule, view); err != nil {
		return err
	}
	m.notifyInternal(ctx, internalSubjectReschedule, appt, "New ")
	return nil
}

// SendOTP emails a one-time code.
func (m *Mailer) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	if strings.TrimSpace(email) == "" {
		return ErrNoRecipient
	}
	minutes := int(ttl / time.Minute)
	if minutes <= 0 {
		minutes = 10
	}
	html, err := render(otpTmpl, otpView{Code: code, Minutes: minutes})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, EmailMessage{
		To:       email,
		Subject:  SubjectOTP,
		Body:     fmt.Sprintf("Your One-Time Password (OTP) is %s. It is valid for %d minutes.", code, minutes),
		HTML:     html,
		Category: CategoryOTP,
	})
}

func (m *Mailer) view(appt *appointments.Appointment) consultationView {
	return consultationView{
		Name:          appt.Name,
		Date:          appointments.FormatDate(appt.SlotDate),
		Time:          slotTime(appt),
		Service:       appt.ServiceLabel(),
		MeetingLink:   appt.MeetingLink,
		RescheduleURL: m.rescheduleURL,
	}
}

func (m *Mailer) sendConsultation(ctx context.Context, appt *appointments.Appointment, subject, category string, view consultationView) error {
	if strings.TrimSpace(appt.Email) == "" {
		return ErrNoRecipient
	}
	html, err := render(consultationTmpl, view)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, EmailMessage{
		To:       appt.Email,
		ToName:   appt.Name,
		Subject:  subject,
		Body:     plainText(view),
		HTML:     html,
		Category: category,
	})
}

func (m *Mailer) notifyInternal(ctx context.Context, subject string, appt *appointments.Appointment, datePrefix string) {
	if len(m.internal) == 0 {
		return
	}
	html, err := render(internalTmpl, internalView{
		Title:      strings.TrimSuffix(subject, " Alert"),
		Name:       appt.Name,
		Email:      appt.Email,
		DatePrefix: datePrefix,
		Date:       appointments.FormatDate(appt.SlotDate),
		Time:       slotTime(appt),
		Service:    appt.ServiceLabel(),
	})
	if err != nil {
		m.logger.Error("internal notification render failed", "error", err)
		return
	}
	for _, to := range m.internal {
		if err := m.sender.Send(ctx, EmailMessage{
			To:       to,
			Subject:  subject,
			Body:     fmt.Sprintf("%s: %s <%s>, %s %s", subject, appt.Name, appt.Email, appointments.FormatDate(appt.SlotDate), slotTime(appt)),
			HTML:     html,
			Category: CategoryInternal,
		}); err != nil {
			m.logger.Warn("internal notification failed", "to", to, "subject", subject, "appointment_id", appt.ID, "error", err)
		}
	}
}

func slotTime(appt *appointments.Appointment) string {
	if appt.SlotEndTime == "" {
		return appt.SlotStartTime
	}
	return appt.SlotStartTime + " - " + appt.SlotEndTime
}

var _ reminders.Mailer = (*Mailer)(nil)
