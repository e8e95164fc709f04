package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/models"
)

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

func TestSESMailer_Send(t *testing.T) {
	tests := []struct {
		name     string
		msg      *models.EmailMessage
		wantHTML bool
	}{
		{
			name:     "text and html",
			msg:      &models.EmailMessage{From: "shop@example.com", To: []string{"a@example.com"}, Subject: "Hi", Body: "text", HTML: "<p>html</p>"},
			wantHTML: true,
		},
		{
			name: "text only",
			msg:  &models.EmailMessage{From: "shop@example.com", To: []string{"a@example.com"}, Subject: "Hi", Body: "text"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured *ses.SendEmailInput
			client := &MockSESService{
				SendEmailFunc: func(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
					captured = params
					return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
				},
			}

			id, err := NewSESMailer(client, "transactional", logger.NewTestLogger(t)).Send(context.Background(), tt.msg)
			require.NoError(t, err)
			assert.Equal(t, "ses-1", id)

			require.NotNil(t, captured)
			assert.Equal(t, "shop@example.com", aws.ToString(captured.Source))
			assert.Equal(t, []string{"a@example.com"}, captured.Destination.ToAddresses)
			assert.Equal(t, "Hi", aws.ToString(captured.Message.Subject.Data))
			assert.Equal(t, "text", aws.ToString(captured.Message.Body.Text.Data))
			assert.Equal(t, "transactional", aws.ToString(captured.ConfigurationSetName))
			assert.Equal(t, tt.wantHTML, captured.Message.Body.Html != nil)
		})
	}
}

func TestSESMailer_Errors(t *testing.T) {
	client := &MockSESService{
		SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("MessageRejected")
		},
	}
	mailer := NewSESMailer(client, "", logger.NewNoOpLogger())

	_, err := mailer.Send(context.Background(), &models.EmailMessage{Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = mailer.Send(context.Background(), &models.EmailMessage{To: []string{"a@example.com"}, Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRejected")
}

func TestSNSPublisher_PublishCommunicationEvent(t *testing.T) {
	var captured *sns.PublishInput
	client := &MockSNSService{
		PublishFunc: func(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
			captured = params
			return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
		},
	}

	event := &models.CommunicationEvent{
		ID: 1, OrderID: 5, OrderNumber: "100005", EventTypeID: 3,
		EventCode: models.EventOrderPlaced, DateCreated: time.Now().UTC(),
	}
	require.NoError(t, NewSNSPublisher(client, "arn:aws:sns:eu-west-1:123:audit").PublishCommunicationEvent(context.Background(), event))

	require.NotNil(t, captured)
	assert.Equal(t, "arn:aws:sns:eu-west-1:123:audit", aws.ToString(captured.TopicArn))
	assert.Equal(t, "ORDER_PLACED", aws.ToString(captured.MessageAttributes["event_code"].StringValue))

	var decoded models.CommunicationEvent
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(captured.Message)), &decoded))
	assert.Equal(t, "100005", decoded.OrderNumber)
}

func TestSNSPublisher_Error(t *testing.T) {
	client := &MockSNSService{
		PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("AuthorizationError")
		},
	}
	err := NewSNSPublisher(client, "arn").PublishCommunicationEvent(context.Background(), &models.CommunicationEvent{})
	require.Error(t, err)
}

func TestLogMailer_Send(t *testing.T) {
	mailer := NewLogMailer(logger.NewTestLogger(t))

	id, err := mailer.Send(context.Background(), &models.EmailMessage{To: []string{"jane@example.com"}, Subject: "Hi"})
	require.NoError(t, err)
	assert.Contains(t, id, "local-")

	_, err = mailer.Send(context.Background(), &models.EmailMessage{})
	assert.ErrorIs(t, err, ErrNoRecipients)
}
