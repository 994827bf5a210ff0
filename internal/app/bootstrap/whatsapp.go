package bootstrap

import (
	appconfig "github.com/wolfman30/consultation-reminders/internal/config"
	"github.com/wolfman30/consultation-reminders/internal/observability/metrics"
	"github.com/wolfman30/consultation-reminders/internal/whatsapp"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

// BuildWhatsAppDelegate wires the campaign platform client.
func BuildWhatsAppDelegate(cfg *appconfig.Config, m *metrics.ReminderMetrics, logger *logging.Logger) (*whatsapp.Delegate, error) {
	client, err := whatsapp.New(whatsapp.Config{
		ScheduleBaseURL:  cfg.WhatsAppScheduleBaseURL,
		ImmediateBaseURL: cfg.WhatsAppImmediateBaseURL,
		APIKey:           cfg.WhatsAppAPIKey,
		Timeout:          cfg.WhatsAppTimeout,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	return whatsapp.NewDelegate(client, logger).WithMetrics(m), nil
}
