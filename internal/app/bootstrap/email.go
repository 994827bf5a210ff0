package bootstrap

import (
	appconfig "github.com/wolfman30/consultation-reminders/internal/config"
	"github.com/wolfman30/consultation-reminders/internal/notify"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

// BuildEmailSender picks the email transport named by EMAIL_PROVIDER. A
// provider that is missing its credentials falls back to the stub sender so
// the process still starts; the returned name reports what was chosen.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender, "sendgrid"
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY is empty; using stub sender")
	case "ses":
		if sender := notify.NewSESSender(ses, notify.SESConfig{
			FromEmail:        cfg.EmailFrom,
			FromName:         cfg.EmailFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger); sender != nil {
			return sender, "ses"
		}
		logger.Warn("ses selected but no SES client was built; using stub sender")
	case "", "stub":
	default:
		logger.Warn("unknown email provider; using stub sender", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildMailer renders consultation emails over sender.
func BuildMailer(cfg *appconfig.Config, sender notify.EmailSender, logger *logging.Logger) *notify.Mailer {
	return notify.NewMailer(sender, notify.MailerConfig{
		RescheduleURL:      cfg.RescheduleURL,
		InternalRecipients: notify.ParseRecipients(cfg.InternalNotifyEmail),
	}, logger)
}
