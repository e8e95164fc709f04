package communication

import (
	"context"
	"fmt"
	"strings"

	"comm-dispatch/internal/common/metrics"
	"comm-dispatch/internal/models"
)

// Legacy template names. When both parts of a pair exist they win over the event
// type templates, with a deprecation warning.
const (
	LegacyAlertSubjectTemplate        = "customer/alerts/emails/alert_subject.txt"
	LegacyAlertBodyTemplate           = "customer/alerts/emails/alert_body.txt"
	LegacyConfirmationSubjectTemplate = "customer/alerts/emails/confirmation_subject.txt"
	LegacyConfirmationBodyTemplate    = "customer/alerts/emails/confirmation_body.txt"

	AlertNotificationSubjectTemplate = "communication/alerts/message_subject.html"
	AlertNotificationBodyTemplate    = "communication/alerts/message.html"
)

// AlertRunResult summarises one back-in-stock run for a product.
type AlertRunResult struct {
	Alerts        int  `json:"alerts"`
	Skipped       int  `json:"skipped"`
	Notifications int  `json:"notifications"`
	Messages      int  `json:"messages"` // recipients actually sent to
	Closed        int  `json:"closed"`
	HurryMode     bool `json:"hurryMode"`
}

type directMessage struct {
	recipient string
	messages  *models.Messages
}

type userMessage struct {
	user     *models.User
	messages *models.Messages
}

// SendProductAlertEmailForUser tells everyone with an active alert on product (or
// its parent) that it can be bought again. Alerts whose customer still cannot buy
// the product are left active; all others are closed whether or not a message
// was queued. Emails go out after every alert has been handled: guest addresses
// first, then registered users.
func (d *Dispatcher) SendProductAlertEmailForUser(ctx context.Context, product *models.Product) (*AlertRunResult, error) {
	result := &AlertRunResult{}

	records, err := d.deps.Stock.ForProduct(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("load stock records for product %d: %w", product.ID, err)
	}
	if len(records) == 0 {
		metrics.MessagesSkipped.WithLabelValues(metrics.SkipNoStockFound).Inc()
		return result, nil
	}

	log := d.logger.WithFields(map[string]interface{}{"productId": product.ID})
	log.Info("Sending product alerts", map[string]interface{}{"title": product.Title})

	alerts, err := d.deps.Alerts.ActiveForProducts(ctx, product.AlertProductIDs())
	if err != nil {
		return nil, fmt.Errorf("load active alerts for product %d: %w", product.ID, err)
	}
	result.Alerts = len(alerts)
	result.HurryMode = hurryMode(len(alerts), records)

	var (
		direct []directMessage
		users  []userMessage
	)

	for _, alert := range alerts {
		info, err := d.deps.Selector.Strategy(alert.User).FetchForProduct(ctx, product)
		if err != nil {
			return result, fmt.Errorf("fetch purchase info for alert %d: %w", alert.ID, err)
		}
		if !info.Availability.IsAvailableToBuy {
			result.Skipped++
			metrics.MessagesSkipped.WithLabelValues(metrics.SkipUnavailable).Inc()
			continue
		}

		extra := map[string]interface{}{
			"alert":   alert,
			"product": product,
			"hurry":   result.HurryMode,
		}

		if alert.User != nil {
			notified, err := d.NotifyUserAboutProductAlert(ctx, alert.User, extra)
			if err != nil {
				return result, err
			}
			if notified != nil {
				result.Notifications++
			}
		}

		messages, err := d.alertMessages(ctx, extra)
		if err != nil {
			return result, err
		}

		if messages != nil && messages.Body != "" {
			if alert.User != nil {
				users = append(users, userMessage{user: alert.User, messages: messages})
			} else {
				direct = append(direct, directMessage{recipient: alert.EmailAddress(), messages: messages})
			}
		}

		alert.Close(d.now().UTC())
		if err := d.deps.Alerts.Close(ctx, alert); err != nil {
			return result, fmt.Errorf("%w: close alert %d: %w", ErrRecordWrite, alert.ID, err)
		}
		result.Closed++
		metrics.AlertsClosed.Inc()
	}

	for _, m := range direct {
		sent, err := d.DispatchDirectMessages(ctx, m.recipient, m.messages)
		if err != nil {
			return result, err
		}
		if sent != nil {
			result.Messages++
		}
	}
	for _, m := range users {
		dispatched, err := d.DispatchUserMessages(ctx, m.user, m.messages)
		if dispatched.Dispatched() {
			result.Messages++
		}
		if err != nil {
			return result, err
		}
	}

	log.Info("Product alerts sent", map[string]interface{}{
		"notifications": result.Notifications,
		"messages":      result.Messages,
		"hurryMode":     result.HurryMode,
	})
	return result, nil
}

// hurryMode is true when more customers wait than there is stock. Unknown stock
// never triggers it.
func hurryMode(alerts int, records []models.StockRecord) bool {
	var inStock *int
	if len(records) == 1 {
		inStock = records[0].NumInStock
	} else {
		inStock = models.MaxNumInStock(records)
	}
	return inStock != nil && alerts > *inStock
}

func (d *Dispatcher) alertMessages(ctx context.Context, extra map[string]interface{}) (*models.Messages, error) {
	messages, ok, err := d.legacyMessages(LegacyAlertSubjectTemplate, LegacyAlertBodyTemplate, extra)
	if err != nil || ok {
		return messages, err
	}
	return d.GetMessages(ctx, models.EventProductAlert, extra)
}

// legacyMessages renders a legacy subject/body pair when both files exist.
func (d *Dispatcher) legacyMessages(subjectName, bodyName string, extra map[string]interface{}) (*models.Messages, bool, error) {
	if d.deps.Templates == nil || !d.deps.Templates.Exists(subjectName) || !d.deps.Templates.Exists(bodyName) {
		return nil, false, nil
	}

	d.logger.Warn("Deprecated template location in use; move the templates to the communication event type", map[string]interface{}{
		"deprecated": true,
		"subject":    subjectName,
		"body":       bodyName,
	})
	metrics.DeprecatedTemplatesUsed.WithLabelValues(subjectName).Inc()

	data := d.BaseContext()
	for k, v := range extra {
		data[k] = v
	}
	subject, err := d.deps.Templates.Render(subjectName, data)
	if err != nil {
		return nil, false, err
	}
	body, err := d.deps.Templates.Render(bodyName, data)
	if err != nil {
		return nil, false, err
	}
	return &models.Messages{Subject: strings.TrimSpace(subject), Body: body}, true, nil
}

// NotifyUserAboutProductAlert drops a short site notification for a registered
// user. A missing notification template is logged and nothing is created.
func (d *Dispatcher) NotifyUserAboutProductAlert(ctx context.Context, user *models.User, extra map[string]interface{}) (*models.Notification, error) {
	if d.deps.Templates == nil ||
		!d.deps.Templates.Exists(AlertNotificationSubjectTemplate) ||
		!d.deps.Templates.Exists(AlertNotificationBodyTemplate) {
		d.logger.Warn("Alert notification templates missing, skipping site notification", map[string]interface{}{
			"userId": user.ID,
		})
		metrics.MessagesSkipped.WithLabelValues(metrics.SkipNoTemplate).Inc()
		return nil, nil
	}

	data := d.BaseContext()
	for k, v := range extra {
		data[k] = v
	}
	subject, err := d.deps.Templates.Render(AlertNotificationSubjectTemplate, data)
	if err != nil {
		return nil, err
	}
	body, err := d.deps.Templates.Render(AlertNotificationBodyTemplate, data)
	if err != nil {
		return nil, err
	}
	return d.NotifyUser(ctx, user, strings.TrimSpace(subject), WithBody(strings.TrimSpace(body)))
}

// SendProductAlertConfirmationEmailForUser asks a guest to confirm their alert.
// Mail goes straight to the address on the alert.
func (d *Dispatcher) SendProductAlertConfirmationEmailForUser(ctx context.Context, alert *models.ProductAlert, extra map[string]interface{}) (*models.EmailMessage, error) {
	if extra == nil {
		extra = map[string]interface{}{"alert": alert}
	}

	messages, ok, err := d.legacyMessages(LegacyConfirmationSubjectTemplate, LegacyConfirmationBodyTemplate, extra)
	if err != nil {
		return nil, err
	}
	if !ok {
		messages, err = d.GetMessages(ctx, models.EventProductAlertConfirmation, extra)
		if err != nil {
			return nil, err
		}
	}

	if alert.Email == "" {
		d.logger.Warn("Alert has no email address, skipping confirmation", map[string]interface{}{"alertId": alert.ID})
		metrics.MessagesSkipped.WithLabelValues(metrics.SkipNoRecipient).Inc()
		return nil, nil
	}
	return d.DispatchDirectMessages(ctx, alert.Email, messages)
}
