package mailer

import (
	"fmt"

	"github.com/Notifuse/outreach/config"
	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/logger"
)

// Transport kinds
const (
	KindSMTP    = "smtp"
	KindSES     = "ses"
	KindConsole = "console"
)

// New builds the mail transport selected by MAIL_TRANSPORT
func New(cfg config.MailConfig, log logger.Logger) (domain.MailTransport, error) {
	switch cfg.Transport {
	case KindSMTP:
		return NewSMTPTransport(cfg.SMTP, log), nil
	case KindSES:
		return NewSESTransport(cfg.SES, log)
	case KindConsole, "":
		return NewConsoleTransport(log), nil
	default:
		return nil, fmt.Errorf("unsupported mail transport: %s", cfg.Transport)
	}
}

// failAll marks every recipient from index start on as failed with the same reason
func failAll(report *domain.SendReport, recipients []domain.Recipient, start int, reason string) {
	for _, r := range recipients[start:] {
		report.Outcomes = append(report.Outcomes, domain.RecipientOutcome{Recipient: r, Error: reason})
	}
}
