package repository

import (
	"context"
	"database/sql"
	"fmt"

	"comm-dispatch/internal/models"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	var sender sql.NullInt64
	if n.SenderID != nil {
		sender = sql.NullInt64{Int64: *n.SenderID, Valid: true}
	}
	location := n.Location
	if location == "" {
		location = models.NotificationInbox
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO communication_notification (recipient_id, sender_id, subject, body, location, date_sent)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		n.RecipientID, sender, n.Subject, n.Body, location, n.DateSent,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.Location = location
	return nil
}
