// Package transport delivers dispatcher output to AWS.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/models"
)

// ErrNoRecipients is returned for an email without a To address.
var ErrNoRecipients = errors.New("email has no recipients")

// SESService is the part of the SES client the mailer uses.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESMailer struct {
	client           SESService
	configurationSet string
	logger           logger.Logger
}

func NewSESMailer(client SESService, configurationSet string, log logger.Logger) *SESMailer {
	return &SESMailer{
		client:           client,
		configurationSet: configurationSet,
		logger:           log.WithFields(map[string]interface{}{"component": "ses-mailer"}),
	}
}

// Send delivers msg and returns the SES message id.
func (m *SESMailer) Send(ctx context.Context, msg *models.EmailMessage) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}

	body := &types.Body{}
	if msg.Body != "" {
		body.Text = &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")}
	}
	if msg.HasAlternative() {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(msg.From),
		Destination: &types.Destination{ToAddresses: msg.To},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	}
	if m.configurationSet != "" {
		input.ConfigurationSetName = aws.String(m.configurationSet)
	}

	out, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send email: %w", err)
	}

	id := aws.ToString(out.MessageId)
	m.logger.Debug("email accepted by SES", map[string]interface{}{"messageId": id})
	return id, nil
}
