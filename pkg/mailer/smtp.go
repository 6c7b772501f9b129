package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/Notifuse/outreach/config"
	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/logger"
)

// SMTPTransport sends one message per recipient over a single SMTP connection
type SMTPTransport struct {
	config config.SMTPConfig
	logger logger.Logger
}

func NewSMTPTransport(cfg config.SMTPConfig, log logger.Logger) *SMTPTransport {
	return &SMTPTransport{config: cfg, logger: log}
}

func (t *SMTPTransport) Kind() string {
	return KindSMTP
}

// Send fails as a whole when no connection can be made. Once connected, rejections
// are reported per recipient.
func (t *SMTPTransport) Send(ctx context.Context, req domain.SendRequest) (*domain.SendReport, error) {
	if err := mail.NewMsg().From(req.FromEmail); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}

	messages := make([]*mail.Msg, len(req.Recipients))
	buildErrors := make([]error, len(req.Recipients))
	for i, r := range req.Recipients {
		messages[i], buildErrors[i] = buildMessage(req, r.Email)
	}
	report := &domain.SendReport{Outcomes: make([]domain.RecipientOutcome, 0, len(req.Recipients))}

	client, err := t.createClient()
	if err != nil {
		return nil, err
	}
	if err := client.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = client.Close() }()

	for i, r := range req.Recipients {
		if err := ctx.Err(); err != nil {
			failAll(report, req.Recipients, i, err.Error())
			break
		}
		outcome := domain.RecipientOutcome{Recipient: r, Sent: true}
		if buildErrors[i] != nil {
			outcome.Sent = false
			outcome.Error = buildErrors[i].Error()
		} else if err := client.Send(messages[i]); err != nil {
			outcome.Sent = false
			outcome.Error = err.Error()
			t.logger.WithFields(map[string]interface{}{
				"recipient": r.Email,
				"error":     err.Error(),
			}).Warn("SMTP recipient rejected")
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, nil
}

func (t *SMTPTransport) createClient() (*mail.Client, error) {
	clientOptions := []mail.Option{
		mail.WithPort(t.config.Port),
		mail.WithTimeout(10 * time.Second),
	}
	if t.config.UseTLS {
		clientOptions = append(clientOptions, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		clientOptions = append(clientOptions, mail.WithTLSPolicy(mail.NoTLS))
	}

	// unauthenticated relays are allowed
	if t.config.Username != "" && t.config.Password != "" {
		clientOptions = append(clientOptions,
			mail.WithUsername(t.config.Username),
			mail.WithPassword(t.config.Password),
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
		)
	}

	client, err := mail.NewClient(t.config.Host, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return client, nil
}

func buildMessage(req domain.SendRequest, to string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(req.FromEmail); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient email %s: %w", to, err)
	}
	if req.ReplyTo != "" {
		if err := msg.ReplyTo(req.ReplyTo); err != nil {
			return nil, fmt.Errorf("invalid reply-to: %w", err)
		}
	}
	msg.Subject(req.Subject)

	if text := textBody(req.Text, req.HTML); text != "" {
		msg.SetBodyString(mail.TypeTextPlain, text)
		msg.AddAlternativeString(mail.TypeTextHTML, req.HTML)
	} else {
		msg.SetBodyString(mail.TypeTextHTML, req.HTML)
	}
	return msg, nil
}
