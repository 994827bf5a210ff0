package reminders

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

// Handler exposes a read-only view of an appointment's reminder plan.
type Handler struct {
	store  ReminderStore
	logger *logging.Logger
}

// NewHandler creates a reminders HTTP handler.
func NewHandler(store ReminderStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts reminder endpoints.
// Expected to be mounted under /internal/appointments/{appointmentID}
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/reminders", h.listReminders)
}

type recordView struct {
	Position    int        `json:"position"`
	Label       string     `json:"label"`
	Subject     string     `json:"subject"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Sent        bool       `json:"sent"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	doc, err := h.store.FindByAppointment(r.Context(), appointmentID)
	if err != nil {
		h.logger.Error("reminders handler: find by appointment", "error", err, "appointment_id", appointmentID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	views := []recordView{}
	if doc != nil {
		for _, rec := range doc.Records {
			views = append(views, recordView{
				Position:    rec.Position,
				Label:       rec.Kind.Label(),
				Subject:     rec.Subject,
				ScheduledAt: rec.ScheduledAt,
				Sent:        rec.Sent,
				SentAt:      rec.SentAt,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"appointment_id": appointmentID,
		"reminders":      views,
		"count":          len(views),
	})
}
