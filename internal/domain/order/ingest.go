package order

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/golden-feast/internal/domain/payment"
)

// Ingest turns a completed payment session into an order. It is idempotent:
// a session that already produced an order returns that order with
// created=false. Unpaid sessions fail with payment.ErrNotPaid and store
// nothing.
func (s *Service) Ingest(ctx context.Context, sess payment.Session) (_ *Order, created bool, _ error) {
	ctx, span := s.tracer.Start(ctx, "order.Ingest",
		trace.WithAttributes(attribute.String("payment.session_id", sess.ID)),
	)
	defer span.End()

	if sess.ID == "" {
		return nil, false, errors.Wrap(ErrValidation, "session id required")
	}

	existing, err := s.orders.GetByPaymentSessionID(ctx, sess.ID)
	switch {
	case err == nil:
		s.duplicates.Add(ctx, 1)
		return existing, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, errors.Wrap(err, "find by session")
	}

	if !sess.Paid {
		return nil, false, payment.ErrNotPaid
	}

	o, err := s.fromSession(sess)
	if err != nil {
		return nil, false, err
	}

	stored, created, err := s.orders.CreateForSession(ctx, o)
	if err != nil {
		return nil, false, errors.Wrap(err, "create for session")
	}
	if !created {
		s.duplicates.Add(ctx, 1)
		return stored, false, nil
	}
	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("source", sourceSession)))

	zctx.From(ctx).Info("Order ingested",
		zap.String("order_id", stored.ID),
		zap.String("session_id", sess.ID),
	)
	s.announce(ctx, stored)
	return stored, true, nil
}

func (s *Service) fromSession(sess payment.Session) (*Order, error) {
	items, err := sessionItems(sess)
	if err != nil {
		return nil, err
	}
	if err := ValidateItems(items); err != nil {
		return nil, err
	}
	total, err := ResolveTotal(sess.AmountTotal, items)
	if err != nil {
		return nil, err
	}

	shipping := sessionShipping(sess)
	customer := CustomerDetails{
		Name:  sess.Customer.Name,
		Email: sess.Customer.Email,
	}
	// Billing details usually carry only postal code and country.
	if shipping != nil {
		customer.Phone = shipping.Phone
		customer.Address = payment.FlattenAddress(shipping.Address)
		if customer.Name == "" {
			customer.Name = shipping.Name
		}
	}
	if customer.Address == "" {
		customer.Address = payment.FlattenAddress(sess.Customer.Address)
	}
	if customer.Phone == "" {
		customer.Phone = sess.Customer.Phone
	}

	now := s.now().UTC()
	return &Order{
		ID:                s.newID(),
		CustomerID:        sess.Metadata[payment.MetadataCustomerID],
		Items:             items,
		Total:             total,
		Status:            StatusPending,
		PaymentStatus:     PaymentPaid,
		PaymentMethod:     MethodStripe,
		PaymentSessionID:  sess.ID,
		Customer:          customer,
		Shipping:          shipping,
		AdminNotification: true,
		Metadata:          Metadata{SessionID: sess.ID},
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// sessionItems prefers provider line items and falls back to the cart
// serialized into metadata at checkout.
func sessionItems(sess payment.Session) ([]Item, error) {
	if len(sess.LineItems) > 0 {
		items := make([]Item, len(sess.LineItems))
		for i, li := range sess.LineItems {
			items[i] = Item{
				Name:     li.Description,
				Quantity: int(li.Quantity),
				Price:    li.UnitAmount,
			}
		}
		// Carry product references from metadata when the carts line up.
		if meta, err := metadataItems(sess); err == nil && len(meta) == len(items) {
			for i := range items {
				items[i].ProductID = meta[i].Ref()
			}
		}
		return items, nil
	}

	meta, err := metadataItems(sess)
	if err != nil {
		return nil, errors.Wrap(ErrValidation, err.Error())
	}
	items := make([]Item, len(meta))
	for i, m := range meta {
		items[i] = Item{
			ProductID: m.Ref(),
			Name:      m.Name,
			Quantity:  m.Quantity,
			Price:     m.Price,
		}
	}
	return items, nil
}

func metadataItems(sess payment.Session) ([]payment.MetadataItem, error) {
	raw := sess.Metadata[payment.MetadataItems]
	if raw == "" {
		return nil, nil
	}
	var out []payment.MetadataItem
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errors.Wrap(err, "decode metadata items")
	}
	return out, nil
}

// sessionShipping prefers the shipping JSON written at checkout and falls
// back to what the provider collected.
func sessionShipping(sess payment.Session) *payment.Shipping {
	if raw := sess.Metadata[payment.MetadataShipping]; raw != "" {
		var sh payment.Shipping
		if err := json.Unmarshal([]byte(raw), &sh); err == nil && !sh.IsZero() {
			return &sh
		}
	}
	if sess.Shipping != nil && !sess.Shipping.IsZero() {
		sh := *sess.Shipping
		return &sh
	}
	return nil
}
