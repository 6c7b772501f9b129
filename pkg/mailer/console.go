package mailer

import (
	"context"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/logger"
)

// ConsoleTransport is a development transport that logs every message and reports it sent
type ConsoleTransport struct {
	logger logger.Logger
}

func NewConsoleTransport(log logger.Logger) *ConsoleTransport {
	return &ConsoleTransport{logger: log}
}

func (t *ConsoleTransport) Kind() string {
	return KindConsole
}

func (t *ConsoleTransport) Send(ctx context.Context, req domain.SendRequest) (*domain.SendReport, error) {
	report := &domain.SendReport{Outcomes: make([]domain.RecipientOutcome, 0, len(req.Recipients))}
	for _, r := range req.Recipients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t.logger.WithFields(map[string]interface{}{
			"to":       r.Email,
			"from":     req.FromEmail,
			"reply_to": req.ReplyTo,
			"subject":  req.Subject,
			"html_len": len(req.HTML),
			"text_len": len(req.Text),
		}).Info("Console transport: email")
		report.Outcomes = append(report.Outcomes, domain.RecipientOutcome{Recipient: r, Sent: true})
	}
	return report, nil
}
