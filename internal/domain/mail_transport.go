package domain

import "context"

//go:generate mockgen -destination mocks/mock_mail_transport.go -package mocks github.com/Notifuse/outreach/internal/domain MailTransport

// Recipient is one addressee of a batch
type Recipient struct {
	ContactID string `json:"contact_id"`
	Email     string `json:"email"`
}

// SendRequest is one batch handed to the mail transport
type SendRequest struct {
	Recipients []Recipient
	Subject    string
	HTML       string
	Text       string
	FromEmail  string
	ReplyTo    string
}

// RecipientOutcome is the per-recipient result of a send
type RecipientOutcome struct {
	Recipient Recipient
	Sent      bool
	Error     string
}

// SendReport collects the outcomes of a batch
type SendReport struct {
	Outcomes []RecipientOutcome
}

func (r *SendReport) Sent() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Sent {
			n++
		}
	}
	return n
}

func (r *SendReport) Failed() int {
	return len(r.Outcomes) - r.Sent()
}

// SentContactIDs lists contacts whose send was confirmed
func (r *SendReport) SentContactIDs() []string {
	ids := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Sent && o.Recipient.ContactID != "" {
			ids = append(ids, o.Recipient.ContactID)
		}
	}
	return ids
}

// MailTransport delivers a batch. An error means the whole call failed and nothing
// can be assumed delivered; per-recipient rejections are reported in the SendReport.
type MailTransport interface {
	Send(ctx context.Context, req SendRequest) (*SendReport, error)
	Kind() string
}
