package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/consultation-reminders/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/consultation-reminders/internal/http/middleware"
	"github.com/wolfman30/consultation-reminders/internal/reminders"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger       *logging.Logger
	Appointments *handlers.AppointmentsHandler
	Reminders    *reminders.Handler

	// HealthCheck reports whether backing stores are reachable. Optional.
	HealthCheck    func(ctx context.Context) error
	MetricsHandler http.Handler

	InternalAuthSecret string
	CORSAllowedOrigins []string
	OTPRatePerMinute   int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthCheck))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/internal/appointments/{appointmentID}", func(appt chi.Router) {
		appt.Use(httpmiddleware.ServiceJWT(cfg.InternalAuthSecret))
		if cfg.Appointments != nil {
			perMinute := float64(cfg.OTPRatePerMinute)
			if perMinute <= 0 {
				perMinute = 3
			}
			limiter := httpmiddleware.NewRateLimiter(perMinute, int(perMinute))
			byAppointment := func(r *http.Request) string { return chi.URLParam(r, "appointmentID") }

			appt.Post("/confirm", cfg.Appointments.Confirm)
			appt.Post("/reschedule", cfg.Appointments.Reschedule)
			appt.Post("/cancel", cfg.Appointments.Cancel)
			appt.With(httpmiddleware.RateLimit(limiter, byAppointment)).Post("/otp", cfg.Appointments.IssueOTP)
		}
		if cfg.Reminders != nil {
			cfg.Reminders.RegisterRoutes(appt)
		}
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
