package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xenking/golden-feast/db"
	"github.com/xenking/golden-feast/internal/domain/product"
)

// DuplicateError reports a unique key violation.
type DuplicateError struct {
	Key   string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s %q", e.Key, e.Value)
}

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ product.Writer     = (*ProductRepository)(nil)
)

// ProductRepository is an in-memory catalog.
type ProductRepository struct {
	mu   sync.RWMutex
	byID map[string]product.Product
}

// NewProductRepository returns a catalog holding products.
func NewProductRepository(products ...product.Product) *ProductRepository {
	r := &ProductRepository{byID: make(map[string]product.Product, len(products))}
	for _, p := range products {
		r.byID[p.ID] = p
	}
	return r
}

// NewSeededProductRepository returns a catalog loaded with the embedded menu.
func NewSeededProductRepository() (*ProductRepository, error) {
	products, err := product.ParseCatalog(db.SeedProducts)
	if err != nil {
		return nil, fmt.Errorf("loading seed catalog: %w", err)
	}
	return NewProductRepository(products...), nil
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]product.Product, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetByID returns a single product.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the products that exist among ids.
func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]product.Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Upsert stores p, keeping the creation time of an existing entry.
func (r *ProductRepository) Upsert(_ context.Context, p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byID[p.ID]; ok {
		p.CreatedAt = cur.CreatedAt
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.byID[p.ID] = p
	return nil
}
