// Package communication decides how customers hear about shop events. It renders
// the messages for an event, picks the recipient path (guest email or registered
// user), sends through the configured transports and records audit rows.
package communication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"comm-dispatch/internal/common/config"
	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/common/metrics"
	"comm-dispatch/internal/models"
	"comm-dispatch/internal/partner"
)

var (
	// ErrSMSNotImplemented is returned whenever an SMS would be sent.
	ErrSMSNotImplemented = errors.New("sms sending is not implemented")
	// ErrEmailDelivery wraps failures reported by the mail transport.
	ErrEmailDelivery = errors.New("email delivery failed")
	// ErrRecordWrite wraps failures storing audit events, email copies,
	// notifications and alert state.
	ErrRecordWrite = errors.New("record write failed")
)

// Renderer renders the message bundle for an event code.
type Renderer interface {
	Render(ctx context.Context, code models.EventCode, data map[string]interface{}) (*models.Messages, error)
}

// TemplateLoader renders named templates outside the event type machinery.
type TemplateLoader interface {
	Exists(name string) bool
	Render(name string, data map[string]interface{}) (string, error)
}

// Mailer hands an email to the mail transport and returns the transport's message id.
type Mailer interface {
	Send(ctx context.Context, msg *models.EmailMessage) (string, error)
}

type EventTypeStore interface {
	GetByCode(ctx context.Context, code models.EventCode) (*models.CommunicationEventType, error)
}

type AuditStore interface {
	CreateCommunicationEvent(ctx context.Context, event *models.CommunicationEvent) error
	CreateEmail(ctx context.Context, email *models.Email) error
}

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

type AlertStore interface {
	ActiveForProducts(ctx context.Context, productIDs []int64) ([]*models.ProductAlert, error)
	Close(ctx context.Context, alert *models.ProductAlert) error
}

type StockStore interface {
	ForProduct(ctx context.Context, productID int64) ([]models.StockRecord, error)
}

// EventPublisher fans recorded audit events out to other systems.
type EventPublisher interface {
	PublishCommunicationEvent(ctx context.Context, event *models.CommunicationEvent) error
}

// EmailArchive indexes stored emails for search.
type EmailArchive interface {
	IndexEmail(ctx context.Context, email *models.Email) error
}

// Dependencies are the collaborators a Dispatcher works with. Publisher and
// Archive are optional.
type Dependencies struct {
	Logger        logger.Logger
	Renderer      Renderer
	Templates     TemplateLoader
	Mailer        Mailer
	EventTypes    EventTypeStore
	Audit         AuditStore
	Notifications NotificationStore
	Alerts        AlertStore
	Stock         StockStore
	Selector      partner.Selector
	Publisher     EventPublisher
	Archive       EmailArchive
}

type Site struct {
	Name   string
	Domain string
}

type Config struct {
	FromEmail      string
	SaveSentEmails bool
	Site           Site
}

// NewConfig builds dispatcher settings from the application config.
func NewConfig(c config.CommunicationConfig) *Config {
	return &Config{
		FromEmail:      c.FromEmail,
		SaveSentEmails: c.ShouldSaveSentEmails(),
		Site:           Site{Name: c.SiteName, Domain: c.SiteDomain},
	}
}

// DispatchResult records what actually went out for one recipient.
type DispatchResult struct {
	Email *models.EmailMessage
	SMS   bool
}

// Dispatched reports whether any channel delivered a message.
func (r *DispatchResult) Dispatched() bool {
	return r != nil && (r.Email != nil || r.SMS)
}

type Dispatcher struct {
	deps   Dependencies
	cfg    *Config
	logger logger.Logger
	now    func() time.Time
}

func New(deps Dependencies, cfg *Config) *Dispatcher {
	if cfg == nil {
		cfg = &Config{SaveSentEmails: true}
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Dispatcher{
		deps:   deps,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "dispatcher"}),
		now:    time.Now,
	}
}

type orderOptions struct {
	emailAddress *string
}

// OrderOption tunes DispatchOrderMessages.
type OrderOption func(*orderOptions)

// WithEmailAddress sends guest order mail to addr instead of the order's guest email.
func WithEmailAddress(addr string) OrderOption {
	return func(o *orderOptions) { o.emailAddress = &addr }
}

// DispatchOrderMessages sends order messages to the guest or the order's user and
// records a CommunicationEvent when something went out and the event type exists.
func (d *Dispatcher) DispatchOrderMessages(ctx context.Context, order *models.Order, messages *models.Messages, code models.EventCode, opts ...OrderOption) (*DispatchResult, error) {
	var o orderOptions
	for _, opt := range opts {
		opt(&o)
	}

	d.logger.Info("Dispatching order messages", map[string]interface{}{
		"orderNumber": order.Number,
		"eventCode":   code,
	})

	var (
		result *DispatchResult
		err    error
	)
	if order.IsAnonymous() {
		email := order.GuestEmail
		if o.emailAddress != nil {
			email = *o.emailAddress
		}
		result, err = d.DispatchAnonymousMessages(ctx, email, messages)
	} else {
		result, err = d.DispatchUserMessages(ctx, order.User, messages)
	}
	if err != nil {
		return result, err
	}

	eventType, err := d.deps.EventTypes.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			d.logger.Debug("No event type stored, skipping audit", map[string]interface{}{"eventCode": code})
			return result, nil
		}
		return result, fmt.Errorf("load event type %s: %w", code, err)
	}

	if err := d.createCommunicationEvent(ctx, order, eventType, result); err != nil {
		return result, err
	}
	return result, nil
}

func (d *Dispatcher) createCommunicationEvent(ctx context.Context, order *models.Order, eventType *models.CommunicationEventType, result *DispatchResult) error {
	if eventType == nil || !result.Dispatched() {
		return nil
	}

	event := &models.CommunicationEvent{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		EventTypeID: eventType.ID,
		EventCode:   eventType.Code,
		DateCreated: d.now().UTC(),
	}
	if err := d.deps.Audit.CreateCommunicationEvent(ctx, event); err != nil {
		return fmt.Errorf("%w: communication event for order %s: %w", ErrRecordWrite, order.Number, err)
	}
	metrics.AuditEventsCreated.WithLabelValues(string(eventType.Code)).Inc()

	if d.deps.Publisher != nil {
		if err := d.deps.Publisher.PublishCommunicationEvent(ctx, event); err != nil {
			d.logger.Warn("Failed to publish communication event", map[string]interface{}{
				"eventId": event.ID,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

// DispatchAnonymousMessages emails a guest when an address is known.
func (d *Dispatcher) DispatchAnonymousMessages(ctx context.Context, email string, messages *models.Messages) (*DispatchResult, error) {
	result := &DispatchResult{}
	if email == "" {
		d.logger.Warn("Unable to send guest messages without an email address", nil)
		metrics.MessagesSkipped.WithLabelValues(metrics.SkipNoRecipient).Inc()
		return result, nil
	}
	sent, err := d.DispatchDirectMessages(ctx, email, messages)
	if err != nil {
		return result, err
	}
	result.Email = sent
	return result, nil
}

// DispatchDirectMessages emails recipient when the bundle carries an email. It
// returns nil when nothing was sent.
func (d *Dispatcher) DispatchDirectMessages(ctx context.Context, recipient string, messages *models.Messages) (*models.EmailMessage, error) {
	if !messages.HasEmail() {
		metrics.MessagesSkipped.WithLabelValues(metrics.SkipNoContent).Inc()
		return nil, nil
	}
	return d.SendEmailMessages(ctx, recipient, messages)
}

// DispatchUserMessages emails and texts a registered user depending on which
// parts the bundle carries. The email goes out before an SMS is attempted.
func (d *Dispatcher) DispatchUserMessages(ctx context.Context, user *models.User, messages *models.Messages) (*DispatchResult, error) {
	result := &DispatchResult{}
	if !messages.HasEmail() && !messages.HasSMS() {
		metrics.MessagesSkipped.WithLabelValues(metrics.SkipNoContent).Inc()
		return result, nil
	}

	if messages.HasEmail() {
		sent, err := d.SendUserEmailMessages(ctx, user, messages)
		if err != nil {
			return result, err
		}
		result.Email = sent
	}

	if messages.HasSMS() {
		if err := d.SendTextMessage(ctx, user, messages.SMS); err != nil {
			return result, err
		}
		result.SMS = true
	}
	return result, nil
}

// SendUserEmailMessages emails a user and keeps a copy when configured. Users
// without an address are logged and skipped.
func (d *Dispatcher) SendUserEmailMessages(ctx context.Context, user *models.User, messages *models.Messages) (*models.EmailMessage, error) {
	if user == nil || user.Email == "" {
		fields := map[string]interface{}{}
		if user != nil {
			fields["userId"] = user.ID
		}
		d.logger.Warn("Unable to send email messages as user has no email address", fields)
		metrics.MessagesSkipped.WithLabelValues(metrics.SkipNoRecipient).Inc()
		return nil, nil
	}

	sent, err := d.SendEmailMessages(ctx, user.Email, messages)
	if err != nil {
		return nil, err
	}

	if d.cfg.SaveSentEmails {
		if err := d.createCustomerEmail(ctx, user, messages, sent); err != nil {
			return sent, err
		}
	}
	return sent, nil
}

func (d *Dispatcher) createCustomerEmail(ctx context.Context, user *models.User, messages *models.Messages, sent *models.EmailMessage) error {
	if !user.IsAuthenticated() {
		return nil
	}

	email := &models.Email{
		UserID:   user.ID,
		Email:    user.Email,
		Subject:  sent.Subject,
		BodyText: sent.Body,
		BodyHTML: messages.HTML,
		DateSent: d.now().UTC(),
	}
	if err := d.deps.Audit.CreateEmail(ctx, email); err != nil {
		return fmt.Errorf("%w: sent email for user %d: %w", ErrRecordWrite, user.ID, err)
	}

	if d.deps.Archive != nil {
		if err := d.deps.Archive.IndexEmail(ctx, email); err != nil {
			d.logger.Warn("Failed to archive sent email", map[string]interface{}{
				"emailId": email.ID,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

// SendEmailMessages builds the outbound email and hands it to the mailer.
func (d *Dispatcher) SendEmailMessages(ctx context.Context, recipient string, messages *models.Messages) (*models.EmailMessage, error) {
	msg := &models.EmailMessage{
		From:    d.cfg.FromEmail,
		To:      []string{recipient},
		Subject: messages.Subject,
		Body:    messages.Body,
		HTML:    messages.HTML,
	}

	d.logger.Info("Sending email", map[string]interface{}{
		"recipient":   recipient,
		"alternative": msg.HasAlternative(),
	})

	id, err := d.deps.Mailer.Send(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrEmailDelivery, recipient, err)
	}
	msg.MessageID = id
	metrics.MessagesSent.WithLabelValues(metrics.ChannelEmail).Inc()
	return msg, nil
}

// SendTextMessage always fails: there is no SMS transport.
func (d *Dispatcher) SendTextMessage(_ context.Context, user *models.User, _ string) error {
	fields := map[string]interface{}{}
	if user != nil {
		fields["userId"] = user.ID
	}
	d.logger.Error("SMS requested but no SMS transport exists", fields)
	return ErrSMSNotImplemented
}

type notificationOptions struct {
	body     string
	senderID *int64
}

// NotificationOption tunes NotifyUser.
type NotificationOption func(*notificationOptions)

func WithBody(body string) NotificationOption {
	return func(o *notificationOptions) { o.body = body }
}

func WithSender(userID int64) NotificationOption {
	return func(o *notificationOptions) { o.senderID = &userID }
}

// NotifyUser puts a message in the user's site inbox.
func (d *Dispatcher) NotifyUser(ctx context.Context, user *models.User, subject string, opts ...NotificationOption) (*models.Notification, error) {
	var o notificationOptions
	for _, opt := range opts {
		opt(&o)
	}

	n := &models.Notification{
		RecipientID: user.ID,
		SenderID:    o.senderID,
		Subject:     subject,
		Body:        o.body,
		Location:    models.NotificationInbox,
		DateSent:    d.now().UTC(),
	}
	if err := d.deps.Notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("%w: notification for user %d: %w", ErrRecordWrite, user.ID, err)
	}
	metrics.MessagesSent.WithLabelValues(metrics.ChannelNotification).Inc()
	return n, nil
}

func (d *Dispatcher) NotifyUsers(ctx context.Context, users []*models.User, subject string, opts ...NotificationOption) error {
	for _, u := range users {
		if _, err := d.NotifyUser(ctx, u, subject, opts...); err != nil {
			return err
		}
	}
	return nil
}

// BaseContext is the template context every message starts from.
func (d *Dispatcher) BaseContext() map[string]interface{} {
	return map[string]interface{}{
		"site": d.cfg.Site,
	}
}

// GetMessages renders the bundle for code with extra merged over the base context.
func (d *Dispatcher) GetMessages(ctx context.Context, code models.EventCode, extra map[string]interface{}) (*models.Messages, error) {
	data := d.BaseContext()
	for k, v := range extra {
		data[k] = v
	}
	messages, err := d.deps.Renderer.Render(ctx, code, data)
	if err != nil {
		return nil, fmt.Errorf("render %s messages: %w", code, err)
	}
	return messages, nil
}
