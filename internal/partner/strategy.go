// Package partner decides whether a product can be bought by a given customer.
package partner

import (
	"context"
	"fmt"

	"comm-dispatch/internal/models"
)

// Availability describes whether a product can be bought right now.
type Availability struct {
	IsAvailableToBuy bool   `json:"isAvailableToBuy"`
	Message          string `json:"message,omitempty"`
}

// PurchaseInfo is the outcome of a strategy for one product.
type PurchaseInfo struct {
	StockRecord  *models.StockRecord `json:"stockRecord,omitempty"`
	Availability Availability        `json:"availability"`
}

// Strategy resolves purchase info for a product.
type Strategy interface {
	FetchForProduct(ctx context.Context, product *models.Product) (*PurchaseInfo, error)
}

// StockLoader returns the stock records held for a product.
type StockLoader interface {
	ForProduct(ctx context.Context, productID int64) ([]models.StockRecord, error)
}

// Selector picks the strategy for a customer. A nil user is a guest.
type Selector interface {
	Strategy(user *models.User) Strategy
}

// DefaultSelector returns the same stock-required strategy for every customer.
type DefaultSelector struct {
	strategy Strategy
}

func NewDefaultSelector(stock StockLoader) *DefaultSelector {
	return &DefaultSelector{strategy: &StockRequired{stock: stock}}
}

func (s *DefaultSelector) Strategy(_ *models.User) Strategy {
	return s.strategy
}

// StockRequired uses the first stock record and only allows buying when stock
// is on hand, unless the product does not track stock at all.
type StockRequired struct {
	stock StockLoader
}

func NewStockRequired(stock StockLoader) *StockRequired {
	return &StockRequired{stock: stock}
}

func (s *StockRequired) FetchForProduct(ctx context.Context, product *models.Product) (*PurchaseInfo, error) {
	records, err := s.stock.ForProduct(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("load stock for product %d: %w", product.ID, err)
	}
	if len(records) == 0 {
		return &PurchaseInfo{Availability: Availability{Message: "Unavailable"}}, nil
	}

	record := records[0]
	return &PurchaseInfo{
		StockRecord:  &record,
		Availability: availability(product, &record),
	}, nil
}

func availability(product *models.Product, record *models.StockRecord) Availability {
	if !product.TracksStock {
		return Availability{IsAvailableToBuy: true, Message: "Available"}
	}
	net := record.NetStockLevel()
	if net != nil && *net > 0 {
		return Availability{IsAvailableToBuy: true, Message: fmt.Sprintf("In stock (%d available)", *net)}
	}
	return Availability{Message: "Unavailable"}
}
