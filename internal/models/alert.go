package models

import "time"

type AlertStatus string

const (
	AlertUnconfirmed AlertStatus = "Unconfirmed"
	AlertActive      AlertStatus = "Active"
	AlertCancelled   AlertStatus = "Cancelled"
	AlertClosed      AlertStatus = "Closed"
)

// ProductAlert is a request to be told when a product is back in stock. Guests
// provide an email and confirm it; registered users are active immediately.
type ProductAlert struct {
	ID            int64       `json:"id"`
	ProductID     int64       `json:"productId"`
	User          *User       `json:"user,omitempty"`
	Email         string      `json:"email,omitempty"`
	Key           string      `json:"key,omitempty"`
	Status        AlertStatus `json:"status"`
	DateCreated   time.Time   `json:"dateCreated"`
	DateConfirmed *time.Time  `json:"dateConfirmed,omitempty"`
	DateCancelled *time.Time  `json:"dateCancelled,omitempty"`
	DateClosed    *time.Time  `json:"dateClosed,omitempty"`
}

func (a *ProductAlert) IsAnonymous() bool {
	return a.User == nil
}

func (a *ProductAlert) IsActive() bool {
	return a.Status == AlertActive
}

// EmailAddress returns where alert mail goes.
func (a *ProductAlert) EmailAddress() string {
	if a.User != nil {
		return a.User.Email
	}
	return a.Email
}

// Close marks the alert as handled.
func (a *ProductAlert) Close(now time.Time) {
	a.Status = AlertClosed
	a.DateClosed = &now
}
