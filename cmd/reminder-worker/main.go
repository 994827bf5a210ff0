package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/consultation-reminders/cmd/mainconfig"
	"github.com/wolfman30/consultation-reminders/internal/app/bootstrap"
	"github.com/wolfman30/consultation-reminders/internal/appointments"
	appconfig "github.com/wolfman30/consultation-reminders/internal/config"
	"github.com/wolfman30/consultation-reminders/internal/events"
	"github.com/wolfman30/consultation-reminders/internal/lifecycle"
	"github.com/wolfman30/consultation-reminders/internal/notify"
	"github.com/wolfman30/consultation-reminders/internal/observability/metrics"
	"github.com/wolfman30/consultation-reminders/internal/reminders"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

func main() {
	mainconfig.LoadDotEnv()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting reminder worker", "env", cfg.Env, "reminder_store", cfg.ReminderStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	reg := prometheus.NewRegistry()
	reminderMetrics := metrics.NewReminderMetrics(reg)

	backend, err := bootstrap.BuildReminderStore(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error("failed to build reminder store", "error", err)
		os.Exit(1)
	}
	defer func() { _ = backend.Close(context.Background()) }()

	sesClient, err := mainconfig.SESClient(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	sender, provider := bootstrap.BuildEmailSender(cfg, sesClient, logger)
	mailer := bootstrap.BuildMailer(cfg, sender, logger)
	logger.Info("email provider selected", "provider", provider)

	delegate, err := bootstrap.BuildWhatsAppDelegate(cfg, reminderMetrics, logger)
	if err != nil {
		logger.Error("failed to build whatsapp delegate", "error", err)
		os.Exit(1)
	}

	dispatcher := buildDispatcher(cfg, backend.Store, mailer, redisClient, reminderMetrics, logger)

	handler := lifecycle.NewHandler(lifecycle.HandlerDeps{
		Appointments: appointments.NewRepository(pool),
		Plans:        backend.Store,
		WhatsApp:     delegate,
		Mailer:       mailer,
		Notes:        notify.NewNotificationLog(bootstrap.SQLDB(pool), logger),
		Logger:       logger,
	})
	deliverer := events.NewDeliverer(events.NewOutboxStore(pool), handler, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval).
		WithProcessedStore(events.NewProcessedStore(pool)).
		WithMetrics(reminderMetrics)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           opsRouter(reg, pool.Ping),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		deliverer.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		logger.Info("worker ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down reminder worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server forced to shutdown", "error", err)
	}
	wg.Wait()
	logger.Info("reminder worker stopped")
}

func buildDispatcher(cfg *appconfig.Config, store reminders.ReminderStore, mailer reminders.Mailer, client *redis.Client, m *metrics.ReminderMetrics, logger *logging.Logger) *reminders.Dispatcher {
	d := reminders.NewDispatcher(store, mailer, logger).
		WithInterval(cfg.DispatchInterval).
		WithSendTimeout(cfg.EmailSendTimeout).
		WithMetrics(m)
	if client != nil {
		d = d.WithLease(reminders.NewRedisLease(client, cfg.DispatchLeaseTTL))
	} else {
		logger.Warn("redis unavailable; dispatcher runs without a lease, run a single worker")
	}
	return d
}

// opsRouter serves health and metrics for the worker process.
func opsRouter(gatherer prometheus.Gatherer, ping func(context.Context) error) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if ping != nil {
			if err := ping(req.Context()); err != nil {
				http.Error(w, "degraded", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
