package models

import (
	"strings"
	"time"
)

// EventCode identifies a communication event type and its templates.
type EventCode string

const (
	EventRegistration             EventCode = "REGISTRATION"
	EventPasswordReset            EventCode = "PASSWORD_RESET"
	EventPasswordChanged          EventCode = "PASSWORD_CHANGED"
	EventEmailChanged             EventCode = "EMAIL_CHANGED"
	EventProductAlert             EventCode = "PRODUCT_ALERT"
	EventProductAlertConfirmation EventCode = "PRODUCT_ALERT_CONFIRMATION"
	EventOrderPlaced              EventCode = "ORDER_PLACED"
)

// TemplateKey is the lower-case form used in default template file names.
func (c EventCode) TemplateKey() string {
	return strings.ToLower(string(c))
}

const (
	CategoryOrderRelated = "Order related"
	CategoryUserRelated  = "User related"
)

// Messages is a rendered bundle for one event. Any part may be empty.
type Messages struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    string `json:"html"`
	SMS     string `json:"sms"`
}

// HasEmail reports whether the bundle carries enough to send an email.
func (m *Messages) HasEmail() bool {
	return m != nil && m.Subject != "" && (m.Body != "" || m.HTML != "")
}

// HasSMS reports whether the bundle carries SMS text.
func (m *Messages) HasSMS() bool {
	return m != nil && m.SMS != ""
}

// CommunicationEventType stores per-code templates editable by shop staff.
// Empty template strings fall back to the default template files.
type CommunicationEventType struct {
	ID                    int64     `json:"id"`
	Code                  EventCode `json:"code"`
	Name                  string    `json:"name"`
	Category              string    `json:"category"`
	EmailSubjectTemplate  string    `json:"emailSubjectTemplate,omitempty"`
	EmailBodyTemplate     string    `json:"emailBodyTemplate,omitempty"`
	EmailBodyHTMLTemplate string    `json:"emailBodyHtmlTemplate,omitempty"`
	SMSTemplate           string    `json:"smsTemplate,omitempty"`
	DateCreated           time.Time `json:"dateCreated"`
	DateUpdated           time.Time `json:"dateUpdated"`
}

// CommunicationEvent is the audit row proving an order notification went out.
type CommunicationEvent struct {
	ID          int64     `json:"id"`
	OrderID     int64     `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	EventTypeID int64     `json:"eventTypeId"`
	EventCode   EventCode `json:"eventCode"`
	DateCreated time.Time `json:"dateCreated"`
}

// Email is the stored copy of an email sent to a registered user.
type Email struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"userId"`
	Email    string    `json:"email"`
	Subject  string    `json:"subject"`
	BodyText string    `json:"bodyText"`
	BodyHTML string    `json:"bodyHtml,omitempty"`
	DateSent time.Time `json:"dateSent"`
}

// EmailMessage is an outbound email handed to the mail transport.
type EmailMessage struct {
	From      string
	To        []string
	Subject   string
	Body      string
	HTML      string
	MessageID string
}

// HasAlternative reports whether an HTML alternative is attached.
func (m *EmailMessage) HasAlternative() bool {
	return m.HTML != ""
}
