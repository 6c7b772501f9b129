package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"

	"github.com/Notifuse/outreach/config"
	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/logger"
)

// SESClient is the part of the SES API used to send mail
type SESClient interface {
	SendEmailWithContext(ctx aws.Context, input *ses.SendEmailInput, opts ...request.Option) (*ses.SendEmailOutput, error)
}

// SESTransport sends one SES message per recipient
type SESTransport struct {
	client SESClient
	logger logger.Logger
}

// NewSESTransport uses static credentials when configured, the default AWS chain otherwise
func NewSESTransport(cfg config.SESConfig, log logger.Logger) (*SESTransport, error) {
	awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewSESTransportWithClient(ses.New(sess), log), nil
}

func NewSESTransportWithClient(client SESClient, log logger.Logger) *SESTransport {
	return &SESTransport{client: client, logger: log}
}

func (t *SESTransport) Kind() string {
	return KindSES
}

// Send stops at the first account level error. If nothing was sent yet the whole call
// fails, otherwise the rest of the batch is reported failed.
func (t *SESTransport) Send(ctx context.Context, req domain.SendRequest) (*domain.SendReport, error) {
	report := &domain.SendReport{Outcomes: make([]domain.RecipientOutcome, 0, len(req.Recipients))}

	for i, r := range req.Recipients {
		output, err := t.client.SendEmailWithContext(ctx, buildSESInput(req, r.Email))
		if err == nil {
			messageID := ""
			if output != nil && output.MessageId != nil {
				messageID = *output.MessageId
			}
			t.logger.WithFields(map[string]interface{}{
				"recipient":  r.Email,
				"message_id": messageID,
			}).Debug("SES message accepted")
			report.Outcomes = append(report.Outcomes, domain.RecipientOutcome{Recipient: r, Sent: true})
			continue
		}

		if isRecipientRejection(err) {
			report.Outcomes = append(report.Outcomes, domain.RecipientOutcome{Recipient: r, Error: err.Error()})
			continue
		}
		if report.Sent() == 0 {
			return nil, fmt.Errorf("failed to send email: %w", err)
		}
		failAll(report, req.Recipients, i, err.Error())
		break
	}
	return report, nil
}

func buildSESInput(req domain.SendRequest, to string) *ses.SendEmailInput {
	body := &ses.Body{
		Html: &ses.Content{
			Charset: aws.String("UTF-8"),
			Data:    aws.String(req.HTML),
		},
	}
	if text := textBody(req.Text, req.HTML); text != "" {
		body.Text = &ses.Content{
			Charset: aws.String("UTF-8"),
			Data:    aws.String(text),
		}
	}

	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(to)},
		},
		Message: &ses.Message{
			Body: body,
			Subject: &ses.Content{
				Charset: aws.String("UTF-8"),
				Data:    aws.String(req.Subject),
			},
		},
		Source: aws.String(req.FromEmail),
	}
	if req.ReplyTo != "" {
		input.ReplyToAddresses = []*string{aws.String(req.ReplyTo)}
	}
	return input
}

// isRecipientRejection reports errors scoped to one message rather than the account
func isRecipientRejection(err error) bool {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return false
	}
	switch aerr.Code() {
	case ses.ErrCodeMessageRejected, "InvalidParameterValue":
		return true
	}
	return false
}
