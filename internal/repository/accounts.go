package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"comm-dispatch/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, phone_number FROM auth_user WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("query user %d: %w", id, err)
	}
	return &u, nil
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetByNumber loads an order with its customer, if any.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	var (
		o                         models.Order
		userID                    sql.NullInt64
		email, first, last, phone sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT o.id, o.number, o.guest_email, o.total_incl_tax::text, o.currency, o.date_placed,
		        u.id, u.email, u.first_name, u.last_name, u.phone_number
		   FROM order_order o
		   LEFT JOIN auth_user u ON u.id = o.user_id
		  WHERE o.number = $1`, number,
	).Scan(&o.ID, &o.Number, &o.GuestEmail, &o.Total, &o.Currency, &o.DatePlaced,
		&userID, &email, &first, &last, &phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", number, models.ErrNotFound)
		}
		return nil, fmt.Errorf("query order %s: %w", number, err)
	}
	if userID.Valid {
		o.User = &models.User{
			ID:        userID.Int64,
			Email:     email.String,
			FirstName: first.String,
			LastName:  last.String,
			Phone:     phone.String,
		}
	}
	return &o, nil
}
