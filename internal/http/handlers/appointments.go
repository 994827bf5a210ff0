package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/consultation-reminders/internal/appointments"
	"github.com/wolfman30/consultation-reminders/internal/lifecycle"
	"github.com/wolfman30/consultation-reminders/internal/otp"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

// Transitions applies appointment state changes. *lifecycle.Coordinator satisfies it.
type Transitions interface {
	Confirm(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, req lifecycle.RescheduleRequest) error
	Cancel(ctx context.Context, id uuid.UUID) error
}

type AppointmentFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

// OTPStore issues codes. Verify does not consume; Consume is called once the
// guarded transition has succeeded.
type OTPStore interface {
	Issue(ctx context.Context, phone string) (string, error)
	Verify(ctx context.Context, phone, code string) error
	Consume(ctx context.Context, phone, code string) error
	TTL() time.Duration
}

type OTPMailer interface {
	SendOTP(ctx context.Context, email, code string, ttl time.Duration) error
}

// AppointmentsConfig wires the appointment handler. OTP and Mailer are only
// needed when RequireOTP is set.
type AppointmentsConfig struct {
	Transitions  Transitions
	Appointments AppointmentFinder
	OTP          OTPStore
	Mailer       OTPMailer
	RequireOTP   bool
	Logger       *logging.Logger
}

// AppointmentsHandler exposes the lifecycle transitions the booking
// subsystem calls after payment, reschedule and cancellation.
type AppointmentsHandler struct {
	transitions  Transitions
	appointments AppointmentFinder
	otp          OTPStore
	mailer       OTPMailer
	requireOTP   bool
	logger       *logging.Logger
}

func NewAppointmentsHandler(cfg AppointmentsConfig) *AppointmentsHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AppointmentsHandler{
		transitions:  cfg.Transitions,
		appointments: cfg.Appointments,
		otp:          cfg.OTP,
		mailer:       cfg.Mailer,
		requireOTP:   cfg.RequireOTP,
		logger:       cfg.Logger,
	}
}

// RegisterRoutes mounts the transition endpoints.
// Expected to be mounted under /internal/appointments/{appointmentID}
func (h *AppointmentsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/confirm", h.Confirm)
	r.Post("/reschedule", h.Reschedule)
	r.Post("/cancel", h.Cancel)
	r.Post("/otp", h.IssueOTP)
}

type rescheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	OTP       string `json:"otp,omitempty"`
}

func (h *AppointmentsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	if err := h.transitions.Confirm(r.Context(), id); err != nil {
		h.writeTransitionError(w, "confirm", id, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"appointment_id": id, "status": "confirmed"})
}

func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	date, err := appointments.ParseDate(req.Date)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var phone string
	if h.requireOTP {
		if phone, ok = h.verifyOTP(w, r.Context(), id, req.OTP); !ok {
			return
		}
	}

	err = h.transitions.Reschedule(r.Context(), lifecycle.RescheduleRequest{
		AppointmentID: id,
		Date:          date,
		StartTime:     strings.TrimSpace(req.StartTime),
		EndTime:       strings.TrimSpace(req.EndTime),
	})
	if err != nil {
		h.writeTransitionError(w, "reschedule", id, err)
		return
	}
	if h.requireOTP {
		if err := h.otp.Consume(r.Context(), phone, req.OTP); err != nil {
			h.logger.Warn("otp: consume after reschedule", "appointment_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"appointment_id": id,
		"status":         "rescheduled",
		"date":           appointments.FormatDate(date),
		"start_time":     req.StartTime,
	})
}

func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	if err := h.transitions.Cancel(r.Context(), id); err != nil {
		h.writeTransitionError(w, "cancel", id, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"appointment_id": id, "status": "canceled"})
}

// IssueOTP emails a one-time code to the appointment's client. The code is
// keyed by the client's phone so it survives a retried request.
func (h *AppointmentsHandler) IssueOTP(w http.ResponseWriter, r *http.Request) {
	if h.otp == nil || h.mailer == nil || h.appointments == nil {
		http.Error(w, "otp not enabled", http.StatusNotFound)
		return
	}
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.appointments.FindByID(r.Context(), id)
	if errors.Is(err, appointments.ErrNotFound) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("otp: load appointment", "appointment_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	code, err := h.otp.Issue(r.Context(), appt.Phone)
	if err != nil {
		h.logger.Error("otp: issue", "appointment_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := h.mailer.SendOTP(r.Context(), appt.Email, code, h.otp.TTL()); err != nil {
		h.logger.Error("otp: send email", "appointment_id", id, "error", err)
		http.Error(w, "could not deliver code", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"appointment_id": id,
		"expires_in":     int(h.otp.TTL().Seconds()),
	})
}

// verifyOTP checks the code and returns the phone it is keyed by.
func (h *AppointmentsHandler) verifyOTP(w http.ResponseWriter, ctx context.Context, id uuid.UUID, code string) (string, bool) {
	if h.otp == nil || h.appointments == nil {
		h.logger.Error("reschedule requires otp but no otp store is configured")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return "", false
	}
	if strings.TrimSpace(code) == "" {
		http.Error(w, "otp required", http.StatusUnauthorized)
		return "", false
	}
	appt, err := h.appointments.FindByID(ctx, id)
	if errors.Is(err, appointments.ErrNotFound) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return "", false
	}
	if err != nil {
		h.logger.Error("otp: load appointment", "appointment_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return "", false
	}
	err = h.otp.Verify(ctx, appt.Phone, code)
	switch {
	case err == nil:
		return appt.Phone, true
	case errors.Is(err, otp.ErrNotFound), errors.Is(err, otp.ErrMismatch):
		http.Error(w, "invalid or expired otp", http.StatusUnauthorized)
	case errors.Is(err, otp.ErrTooManyAttempts):
		h.logger.Warn("otp: attempts exhausted", "appointment_id", id)
		http.Error(w, "too many otp attempts", http.StatusTooManyRequests)
	default:
		h.logger.Error("otp: verify", "appointment_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	return "", false
}

func (h *AppointmentsHandler) writeTransitionError(w http.ResponseWriter, transition string, id uuid.UUID, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, appointments.ErrInvalidSlot):
		status = http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrCanceled),
		errors.Is(err, lifecycle.ErrNotReschedulable),
		errors.Is(err, lifecycle.ErrSlotTaken):
		status = http.StatusConflict
	case errors.Is(err, lifecycle.ErrWindowClosed):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("appointment transition failed", "transition", transition, "appointment_id", id, "error", err)
		http.Error(w, "internal error", status)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
