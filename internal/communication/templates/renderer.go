package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/models"
)

// EventTypeStore looks up communication event types by code.
type EventTypeStore interface {
	GetByCode(ctx context.Context, code models.EventCode) (*models.CommunicationEventType, error)
}

// Default template file names for an event code.
func SubjectTemplateName(code models.EventCode) string {
	return fmt.Sprintf("communication/emails/commtype_%s_subject.txt", code.TemplateKey())
}

func BodyTemplateName(code models.EventCode) string {
	return fmt.Sprintf("communication/emails/commtype_%s_body.txt", code.TemplateKey())
}

func HTMLTemplateName(code models.EventCode) string {
	return fmt.Sprintf("communication/emails/commtype_%s_body.html", code.TemplateKey())
}

func SMSTemplateName(code models.EventCode) string {
	return fmt.Sprintf("communication/sms/commtype_%s_body.txt", code.TemplateKey())
}

// Renderer produces the message bundle for an event code. Templates stored on the
// event type row win; empty ones fall back to the default files, and a missing
// default file yields an empty part.
type Renderer struct {
	store  EventTypeStore
	loader *Loader
	logger logger.Logger
}

func NewRenderer(store EventTypeStore, loader *Loader, log logger.Logger) *Renderer {
	return &Renderer{
		store:  store,
		loader: loader,
		logger: log.WithFields(map[string]interface{}{"component": "template-renderer"}),
	}
}

func (r *Renderer) Render(ctx context.Context, code models.EventCode, data map[string]interface{}) (*models.Messages, error) {
	eventType, err := r.store.GetByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("load event type %s: %w", code, err)
		}
		r.logger.Debug("event type not stored, using default templates", map[string]interface{}{
			"eventCode": code,
		})
		eventType = &models.CommunicationEventType{Code: code}
	}

	parts := []struct {
		inline string
		file   string
		inName string
		out    *string
	}{
		{eventType.EmailSubjectTemplate, SubjectTemplateName(code), "subject.txt", nil},
		{eventType.EmailBodyTemplate, BodyTemplateName(code), "body.txt", nil},
		{eventType.EmailBodyHTMLTemplate, HTMLTemplateName(code), "body.html", nil},
		{eventType.SMSTemplate, SMSTemplateName(code), "sms.txt", nil},
	}

	messages := &models.Messages{}
	parts[0].out = &messages.Subject
	parts[1].out = &messages.Body
	parts[2].out = &messages.HTML
	parts[3].out = &messages.SMS

	for _, p := range parts {
		text, err := r.renderPart(code, p.inline, p.file, p.inName, data)
		if err != nil {
			return nil, err
		}
		*p.out = text
	}

	messages.Subject = singleLine(messages.Subject)
	return messages, nil
}

func (r *Renderer) renderPart(code models.EventCode, inline, file, inlineName string, data map[string]interface{}) (string, error) {
	if inline != "" {
		return RenderString(fmt.Sprintf("%s:%s", code, inlineName), inline, data)
	}
	text, err := r.loader.Render(file, data)
	if errors.Is(err, ErrTemplateNotFound) {
		return "", nil
	}
	return text, err
}

// singleLine strips line breaks so a subject can never inject headers.
func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.TrimSpace(s)
}
