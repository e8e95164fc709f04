package transport

import (
	"context"

	"github.com/google/uuid"

	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/models"
)

// LogMailer writes emails to the log instead of sending them. Used when SES is
// disabled, e.g. in local development.
type LogMailer struct {
	logger logger.Logger
}

func NewLogMailer(log logger.Logger) *LogMailer {
	return &LogMailer{logger: log.WithFields(map[string]interface{}{"component": "log-mailer"})}
}

func (m *LogMailer) Send(_ context.Context, msg *models.EmailMessage) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}
	id := "local-" + uuid.NewString()
	m.logger.Info("Email not sent, mail transport disabled", map[string]interface{}{
		"messageId": id,
		"to":        msg.To,
		"subject":   msg.Subject,
		"body":      msg.Body,
	})
	return id, nil
}
