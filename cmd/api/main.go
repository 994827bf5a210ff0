package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/consultation-reminders/cmd/mainconfig"
	"github.com/wolfman30/consultation-reminders/internal/api/router"
	"github.com/wolfman30/consultation-reminders/internal/app/bootstrap"
	"github.com/wolfman30/consultation-reminders/internal/appointments"
	appconfig "github.com/wolfman30/consultation-reminders/internal/config"
	"github.com/wolfman30/consultation-reminders/internal/http/handlers"
	"github.com/wolfman30/consultation-reminders/internal/lifecycle"
	"github.com/wolfman30/consultation-reminders/internal/observability/metrics"
	"github.com/wolfman30/consultation-reminders/internal/otp"
	"github.com/wolfman30/consultation-reminders/internal/reminders"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

func main() {
	mainconfig.LoadDotEnv()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting consultation API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	metricsHandler, reminderMetrics := setupMetrics()

	backend, err := bootstrap.BuildReminderStore(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error("failed to build reminder store", "error", err)
		os.Exit(1)
	}
	defer func() { _ = backend.Close(context.Background()) }()

	coordinator := lifecycle.NewCoordinator(pool, logger).WithMetrics(reminderMetrics)
	if backend.Purger != nil {
		coordinator = coordinator.WithPlanPurger(backend.Purger)
	}

	sesClient, err := mainconfig.SESClient(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	sender, provider := bootstrap.BuildEmailSender(cfg, sesClient, logger)
	mailer := bootstrap.BuildMailer(cfg, sender, logger)
	logger.Info("email provider selected", "provider", provider)

	otpStore, requireOTP := setupOTP(cfg, redisClient, logger)
	appointmentsHandler := handlers.NewAppointmentsHandler(handlers.AppointmentsConfig{
		Transitions:  coordinator,
		Appointments: appointments.NewRepository(pool),
		OTP:          otpStore,
		Mailer:       mailer,
		RequireOTP:   requireOTP,
		Logger:       logger,
	})

	r := router.New(&router.Config{
		Logger:             logger,
		Appointments:       appointmentsHandler,
		Reminders:          reminders.NewHandler(backend.Store, logger),
		HealthCheck:        pool.Ping,
		MetricsHandler:     metricsHandler,
		InternalAuthSecret: cfg.InternalAuthSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		OTPRatePerMinute:   cfg.OTPRatePerMinute,
	})

	srv := newServer(cfg.Port, r)

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func newServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func setupMetrics() (http.Handler, *metrics.ReminderMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewReminderMetrics(reg)
}

// setupOTP returns the OTP store and whether reschedules must present a code.
// Without Redis the requirement is dropped rather than failing every request.
func setupOTP(cfg *appconfig.Config, client *redis.Client, logger *logging.Logger) (handlers.OTPStore, bool) {
	if client == nil {
		if cfg.RescheduleRequireOTP {
			logger.Warn("RESCHEDULE_REQUIRE_OTP set but redis is unavailable; otp disabled")
		}
		return nil, false
	}
	return otp.NewStore(client, cfg.OTPTTL), cfg.RescheduleRequireOTP
}
