// Package memory implements the order and product stores in process memory.
// It serves tests and single-node demos; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xenking/golden-feast/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository is a mutex-guarded order store. Returned orders are copies.
type OrderRepository struct {
	mu        sync.RWMutex
	byID      map[string]*order.Order
	bySession map[string]string
	now       func() time.Time
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		byID:      make(map[string]*order.Order),
		bySession: make(map[string]string),
		now:       time.Now,
	}
}

// Create stores o. Duplicate ids and session ids are rejected.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(o)
}

// r.mu must be held.
func (r *OrderRepository) insert(o *order.Order) error {
	if _, ok := r.byID[o.ID]; ok {
		return &DuplicateError{Key: "id", Value: o.ID}
	}
	if o.PaymentSessionID != "" {
		if _, ok := r.bySession[o.PaymentSessionID]; ok {
			return &DuplicateError{Key: "payment_session_id", Value: o.PaymentSessionID}
		}
		r.bySession[o.PaymentSessionID] = o.ID
	}
	r.byID[o.ID] = clone(o)
	return nil
}

// CreateForSession inserts o unless its session already has an order.
func (r *OrderRepository) CreateForSession(_ context.Context, o *order.Order) (*order.Order, bool, error) {
	if o.PaymentSessionID == "" {
		return nil, false, order.ErrValidation
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.bySession[o.PaymentSessionID]; ok {
		return clone(r.byID[id]), false, nil
	}
	if err := r.insert(o); err != nil {
		return nil, false, err
	}
	return clone(o), true, nil
}

// GetByID returns the order with the given id.
func (r *OrderRepository) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return clone(o), nil
}

// GetByPaymentSessionID returns the order created for a payment session.
func (r *OrderRepository) GetByPaymentSessionID(_ context.Context, sessionID string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return clone(r.byID[id]), nil
}

// Update applies u atomically.
func (r *OrderRepository) Update(_ context.Context, id string, u order.Update) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if u.Status != nil {
		o.Status = *u.Status
	}
	if u.AdminNotification != nil {
		o.AdminNotification = *u.AdminNotification
	}
	if u.CustomerNotification != nil {
		o.CustomerNotification = *u.CustomerNotification
	}
	if u.AdminComment != nil {
		o.Metadata.AdminComment = *u.AdminComment
	}
	o.UpdatedAt = r.now().UTC()
	return clone(o), nil
}

// List returns orders matching f, newest first.
func (r *OrderRepository) List(_ context.Context, f order.Filter) ([]order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]order.Order, 0, len(r.byID))
	for _, o := range r.byID {
		if !matches(o, f) {
			continue
		}
		out = append(out, *clone(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func matches(o *order.Order, f order.Filter) bool {
	switch {
	case f.Status != "" && o.Status != f.Status:
		return false
	case f.CustomerID != "" && o.CustomerID != f.CustomerID:
		return false
	case f.AdminNotificationPending && !o.AdminNotification:
		return false
	case f.CustomerNotificationPending && !o.CustomerNotification:
		return false
	}
	return true
}

func clone(o *order.Order) *order.Order {
	c := *o
	c.Items = append([]order.Item(nil), o.Items...)
	if o.Shipping != nil {
		sh := *o.Shipping
		c.Shipping = &sh
	}
	return &c
}
