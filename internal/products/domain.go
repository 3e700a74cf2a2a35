package products

import "github.com/urcash/urcash/internal/platform/httpx"

// Product is the catalog view needed to sell on installments.
type Product struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	CurrentStock float64 `json:"current_stock"`
	SellingPrice float64 `json:"selling_price"`
}

// ErrNotFound is returned when a product id is unknown.
var ErrNotFound = httpx.NotFoundError("product not found")

// Index keys products by id.
func Index(list []Product) map[int64]Product {
	out := make(map[int64]Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out
}
