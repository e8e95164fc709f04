package models

import "time"

const NotificationInbox = "Inbox"

// Notification is an in-site message shown in the customer's account.
type Notification struct {
	ID          int64      `json:"id"`
	RecipientID int64      `json:"recipientId"`
	SenderID    *int64     `json:"senderId,omitempty"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	Location    string     `json:"location"`
	DateSent    time.Time  `json:"dateSent"`
	DateRead    *time.Time `json:"dateRead,omitempty"`
}
