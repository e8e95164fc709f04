package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"comm-dispatch/internal/models"
)

const alertSelect = `SELECT a.id, a.product_id, a.email, a.key, a.status, a.date_created,
	a.date_confirmed, a.date_cancelled, a.date_closed,
	u.id, u.email, u.first_name, u.last_name
	FROM customer_productalert a
	LEFT JOIN auth_user u ON u.id = a.user_id`

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// ActiveForProducts returns active alerts on any of productIDs, oldest first.
func (r *AlertRepository) ActiveForProducts(ctx context.Context, productIDs []int64) ([]*models.ProductAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		alertSelect+` WHERE a.product_id = ANY($1) AND a.status = $2 ORDER BY a.id`,
		pq.Array(productIDs), string(models.AlertActive))
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.ProductAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*models.ProductAlert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, alertSelect+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("alert %d: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return a, nil
}

// Close persists an alert's closed status.
func (r *AlertRepository) Close(ctx context.Context, a *models.ProductAlert) error {
	closed := time.Now().UTC()
	if a.DateClosed != nil {
		closed = *a.DateClosed
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE customer_productalert SET status = $1, date_closed = $2 WHERE id = $3`,
		string(models.AlertClosed), closed, a.ID)
	if err != nil {
		return fmt.Errorf("close alert %d: %w", a.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.ProductAlert, error) {
	var (
		a                            models.ProductAlert
		status                       string
		confirmed, cancelled, closed sql.NullTime
		userID                       sql.NullInt64
		email, first, last           sql.NullString
	)
	err := row.Scan(&a.ID, &a.ProductID, &a.Email, &a.Key, &status, &a.DateCreated,
		&confirmed, &cancelled, &closed,
		&userID, &email, &first, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	a.Status = models.AlertStatus(status)
	a.DateConfirmed = timePtr(confirmed)
	a.DateCancelled = timePtr(cancelled)
	a.DateClosed = timePtr(closed)
	if userID.Valid {
		a.User = &models.User{ID: userID.Int64, Email: email.String, FirstName: first.String, LastName: last.String}
	}
	return &a, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
