package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"comm-dispatch/internal/models"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var (
		p      models.Product
		parent sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, parent_id, title, upc, tracks_stock FROM catalogue_product WHERE id = $1`, id,
	).Scan(&p.ID, &parent, &p.Title, &p.UPC, &p.TracksStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("query product %d: %w", id, err)
	}
	if parent.Valid {
		p.ParentID = &parent.Int64
	}
	return &p, nil
}

type StockRepository struct {
	db *sql.DB
}

func NewStockRepository(db *sql.DB) *StockRepository {
	return &StockRepository{db: db}
}

// ForProduct returns a product's stock records in id order.
func (r *StockRepository) ForProduct(ctx context.Context, productID int64) ([]models.StockRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, product_id, partner_sku, num_in_stock, num_allocated
		   FROM partner_stockrecord WHERE product_id = $1 ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("query stock records: %w", err)
	}
	defer rows.Close()

	var out []models.StockRecord
	for rows.Next() {
		var (
			s                  models.StockRecord
			inStock, allocated sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.ProductID, &s.PartnerSKU, &inStock, &allocated); err != nil {
			return nil, fmt.Errorf("scan stock record: %w", err)
		}
		s.NumInStock = intPtr(inStock)
		s.NumAllocated = intPtr(allocated)
		out = append(out, s)
	}
	return out, rows.Err()
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
