package product

import (
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrInvalidProduct is returned for catalog entries that cannot be stored.
var ErrInvalidProduct = errors.New("invalid product")

// Validate checks the fields every stored product must have.
func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: id required", ErrInvalidProduct)
	case p.Name == "":
		return fmt.Errorf("%w: %s: name required", ErrInvalidProduct, p.ID)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: %s: negative price", ErrInvalidProduct, p.ID)
	case p.Inventory < 0:
		return fmt.Errorf("%w: %s: negative inventory", ErrInvalidProduct, p.ID)
	}
	return nil
}

// ParseCatalog decodes a JSON array of products and validates each entry.
func ParseCatalog(data []byte) ([]Product, error) {
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return products, nil
}
