package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Notifuse/outreach/config"
	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/logger"
)

func TestNew(t *testing.T) {
	log := logger.NewMockLogger(t)

	tests := []struct {
		transport string
		wantKind  string
		wantErr   bool
	}{
		{transport: "console", wantKind: KindConsole},
		{transport: "", wantKind: KindConsole},
		{transport: "smtp", wantKind: KindSMTP},
		{transport: "ses", wantKind: KindSES},
		{transport: "pigeon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			cfg := config.MailConfig{
				Transport: tt.transport,
				SMTP:      config.SMTPConfig{Host: "localhost", Port: 25},
				SES:       config.SESConfig{Region: "eu-west-1", AccessKey: "key", SecretKey: "secret"},
			}
			transport, err := New(cfg, log)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, transport.Kind())
		})
	}
}

func TestConsoleTransport_Send(t *testing.T) {
	log := logger.NewTestLogger(t)
	transport := NewConsoleTransport(log)

	report, err := transport.Send(context.Background(), domain.SendRequest{
		Recipients: []domain.Recipient{
			{ContactID: "c1", Email: "ana@a.com"},
			{ContactID: "c2", Email: "bo@b.com"},
		},
		Subject:   "Hello",
		HTML:      "<p>Hi</p>",
		FromEmail: "news@studio.dev",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent())
	assert.Equal(t, []string{"c1", "c2"}, report.SentContactIDs())
	assert.Len(t, log.Entries(), 2)
}

func TestConsoleTransport_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewConsoleTransport(logger.NewMockLogger(t)).Send(ctx, domain.SendRequest{
		Recipients: []domain.Recipient{{ContactID: "c1", Email: "ana@a.com"}},
	})
	assert.ErrorIs(t, err, context.Canceled)
}
