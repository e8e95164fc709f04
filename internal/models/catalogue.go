package models

type Product struct {
	ID          int64  `json:"id"`
	ParentID    *int64 `json:"parentId,omitempty"`
	Title       string `json:"title"`
	UPC         string `json:"upc,omitempty"`
	TracksStock bool   `json:"tracksStock"`
}

// AlertProductIDs returns the ids whose alerts apply to this product: itself and
// its parent for variants.
func (p *Product) AlertProductIDs() []int64 {
	ids := []int64{p.ID}
	if p.ParentID != nil {
		ids = append(ids, *p.ParentID)
	}
	return ids
}

// StockRecord is one partner's stock for a product. NumInStock is nil when the
// partner does not report a level.
type StockRecord struct {
	ID           int64  `json:"id"`
	ProductID    int64  `json:"productId"`
	PartnerSKU   string `json:"partnerSku"`
	NumInStock   *int   `json:"numInStock,omitempty"`
	NumAllocated *int   `json:"numAllocated,omitempty"`
}

// NetStockLevel is stock minus allocations; nil when stock is unknown.
func (s *StockRecord) NetStockLevel() *int {
	if s.NumInStock == nil {
		return nil
	}
	net := *s.NumInStock
	if s.NumAllocated != nil {
		net -= *s.NumAllocated
	}
	return &net
}

// MaxNumInStock returns the largest non-nil stock level across records, nil when
// none is known.
func MaxNumInStock(records []StockRecord) *int {
	var max *int
	for i := range records {
		n := records[i].NumInStock
		if n == nil {
			continue
		}
		if max == nil || *n > *max {
			v := *n
			max = &v
		}
	}
	return max
}
