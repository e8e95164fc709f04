package models

import "time"

type Order struct {
	ID         int64     `json:"id"`
	Number     string    `json:"number"`
	User       *User     `json:"user,omitempty"`
	GuestEmail string    `json:"guestEmail,omitempty"`
	Total      string    `json:"total,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	DatePlaced time.Time `json:"datePlaced"`
}

// IsAnonymous is true for guest checkouts.
func (o *Order) IsAnonymous() bool {
	return o.User == nil
}

// Email returns the address order mail goes to.
func (o *Order) Email() string {
	if o.User != nil {
		return o.User.Email
	}
	return o.GuestEmail
}
