package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/logger"
)

// fakeSESClient answers with the error configured for each recipient
type fakeSESClient struct {
	errs   map[string]error
	inputs []*ses.SendEmailInput
}

func (f *fakeSESClient) SendEmailWithContext(_ aws.Context, input *ses.SendEmailInput, _ ...request.Option) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, input)
	to := aws.StringValue(input.Destination.ToAddresses[0])
	if err := f.errs[to]; err != nil {
		return nil, err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-" + to)}, nil
}

func sesRequest(emails ...string) domain.SendRequest {
	req := domain.SendRequest{
		Subject:   "Hello",
		HTML:      "<p>Hi</p>",
		Text:      "Hi",
		FromEmail: "news@studio.dev",
		ReplyTo:   "team@studio.dev",
	}
	for i, e := range emails {
		req.Recipients = append(req.Recipients, domain.Recipient{ContactID: string(rune('a' + i)), Email: e})
	}
	return req
}

func TestSESTransport_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("builds one message per recipient", func(t *testing.T) {
		client := &fakeSESClient{}
		report, err := NewSESTransportWithClient(client, logger.NewMockLogger(t)).Send(ctx, sesRequest("ana@a.com", "bo@b.com"))
		require.NoError(t, err)
		assert.Equal(t, 2, report.Sent())

		require.Len(t, client.inputs, 2)
		input := client.inputs[0]
		assert.Equal(t, "news@studio.dev", aws.StringValue(input.Source))
		assert.Equal(t, "team@studio.dev", aws.StringValue(input.ReplyToAddresses[0]))
		assert.Equal(t, "Hello", aws.StringValue(input.Message.Subject.Data))
		assert.Equal(t, "<p>Hi</p>", aws.StringValue(input.Message.Body.Html.Data))
		assert.Equal(t, "Hi", aws.StringValue(input.Message.Body.Text.Data))
	})

	t.Run("rejected recipient does not stop the batch", func(t *testing.T) {
		client := &fakeSESClient{errs: map[string]error{
			"ana@a.com": awserr.New(ses.ErrCodeMessageRejected, "Email address is not verified", nil),
		}}
		report, err := NewSESTransportWithClient(client, logger.NewMockLogger(t)).Send(ctx, sesRequest("ana@a.com", "bo@b.com"))
		require.NoError(t, err)
		assert.Equal(t, 1, report.Sent())
		assert.Equal(t, 1, report.Failed())
		assert.Contains(t, report.Outcomes[0].Error, "MessageRejected")
	})

	t.Run("account error before any send fails the call", func(t *testing.T) {
		client := &fakeSESClient{errs: map[string]error{
			"ana@a.com": awserr.New("Throttling", "Maximum sending rate exceeded", nil),
		}}
		_, err := NewSESTransportWithClient(client, logger.NewMockLogger(t)).Send(ctx, sesRequest("ana@a.com", "bo@b.com"))
		require.Error(t, err)
		assert.Len(t, client.inputs, 1)
	})

	t.Run("account error mid batch fails the rest", func(t *testing.T) {
		client := &fakeSESClient{errs: map[string]error{
			"bo@b.com": errors.New("connection reset by peer"),
		}}
		report, err := NewSESTransportWithClient(client, logger.NewMockLogger(t)).Send(ctx, sesRequest("ana@a.com", "bo@b.com", "cy@c.com"))
		require.NoError(t, err)
		assert.Equal(t, 1, report.Sent())
		assert.Equal(t, 2, report.Failed())
		assert.Len(t, client.inputs, 2)
	})
}

func TestBuildSESInput_HTMLOnly(t *testing.T) {
	req := sesRequest("ana@a.com")
	req.Text = ""
	req.ReplyTo = ""

	input := buildSESInput(req, "ana@a.com")
	require.NotNil(t, input.Message.Body.Text)
	assert.Equal(t, "Hi", aws.StringValue(input.Message.Body.Text.Data))
	assert.Nil(t, input.ReplyToAddresses)
}
