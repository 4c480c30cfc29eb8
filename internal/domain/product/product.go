package product

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Uncategorized is the category key for products without a category.
const Uncategorized = "uncategorized"

// Product represents a menu item available for purchase.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images,omitempty"`
	Inventory   int             `json:"inventory"`
	Category    string          `json:"category,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Listing pairs a category with the product featured for it.
type Listing struct {
	Category string
	Product  Product
}

// Listed returns the newest product of every category, ordered by category.
func Listed(products []Product) []Listing {
	newest := make(map[string]Product, len(products))
	for _, p := range products {
		key := p.Category
		if key == "" {
			key = Uncategorized
		}
		cur, ok := newest[key]
		if !ok || p.CreatedAt.After(cur.CreatedAt) {
			newest[key] = p
		}
	}

	out := make([]Listing, 0, len(newest))
	for category, p := range newest {
		out = append(out, Listing{Category: category, Product: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Writer upserts catalog entries. It is used by the catalog loaders only.
type Writer interface {
	Upsert(ctx context.Context, p Product) error
}
