package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/golden-feast/internal/domain/product"
)

// ListProducts returns the whole catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list products"))
		return
	}
	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = h.productResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, errors.Wrap(err, "get product"))
		return
	}
	writeJSON(w, http.StatusOK, h.productResponse(*p))
}

// ListedProducts returns the newest product of every category.
func (h *Handler) ListedProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list products"))
		return
	}
	listed := product.Listed(products)
	out := make([]listingResponse, len(listed))
	for i, l := range listed {
		out[i] = listingResponse{Category: l.Category, Product: h.productResponse(l.Product)}
	}
	writeJSON(w, http.StatusOK, out)
}
