package repository

import (
	"context"
	"database/sql"
	"fmt"

	"comm-dispatch/internal/models"
)

// AuditRepository writes communication events and stored email copies.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) CreateCommunicationEvent(ctx context.Context, e *models.CommunicationEvent) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO order_communicationevent (order_id, event_type_id, date_created)
		 VALUES ($1, $2, $3) RETURNING id`,
		e.OrderID, e.EventTypeID, e.DateCreated,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert communication event: %w", err)
	}
	return nil
}

func (r *AuditRepository) CreateEmail(ctx context.Context, e *models.Email) error {
	var userID sql.NullInt64
	if e.UserID > 0 {
		userID = sql.NullInt64{Int64: e.UserID, Valid: true}
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO communication_email (user_id, email, subject, body_text, body_html, date_sent)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		userID, e.Email, e.Subject, e.BodyText, e.BodyHTML, e.DateSent,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert email: %w", err)
	}
	return nil
}
