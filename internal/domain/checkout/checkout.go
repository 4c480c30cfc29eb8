// Package checkout drives the storefront purchase flow: starting hosted
// payment sessions (or test-mode orders), confirming them on return and
// ingesting provider webhooks.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/golden-feast/internal/domain/order"
	"github.com/xenking/golden-feast/internal/domain/payment"
)

// sessionPlaceholder is expanded by the provider into the session id.
const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// ErrMissingSessionID is returned by Confirm when no session id is given.
var ErrMissingSessionID = fmt.Errorf("%w: session id required", order.ErrValidation)

// CartItem is a line of the customer's cart.
type CartItem struct {
	ID        string
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

func (c CartItem) ref() string {
	if c.ID != "" {
		return c.ID
	}
	return c.ProductID
}

// Request starts a checkout.
type Request struct {
	CustomerID string
	Items      []CartItem
	Shipping   *payment.Shipping
	SuccessURL string
	CancelURL  string
	TestMode   bool
}

// Result tells the client where to go next. Test-mode checkouts carry the
// created order id, hosted checkouts carry the provider URL.
type Result struct {
	TestPayment bool
	OrderID     string
	RedirectURL string
	URL         string
}

// Orders is the subset of the order service used by checkout.
type Orders interface {
	CreateTestOrder(ctx context.Context, d order.Draft) (*order.Order, error)
	Ingest(ctx context.Context, sess payment.Session) (*order.Order, bool, error)
}

// Config controls checkout behavior.
type Config struct {
	// TestPayment forces every checkout through the test-mode bypass.
	TestPayment bool
}

// Service implements the checkout flow.
type Service struct {
	orders   Orders
	provider payment.Provider
	verifier payment.EventVerifier
	cfg      Config
}

// NewService creates a checkout Service. provider and verifier may be nil
// when only test-mode checkouts are served.
func NewService(orders Orders, provider payment.Provider, verifier payment.EventVerifier, cfg Config) *Service {
	return &Service{
		orders:   orders,
		provider: provider,
		verifier: verifier,
		cfg:      cfg,
	}
}

// Start creates a test-mode order or a hosted payment session for req.
func (s *Service) Start(ctx context.Context, req Request) (*Result, error) {
	items := make([]order.Item, len(req.Items))
	for i, c := range req.Items {
		items[i] = order.Item{
			ProductID: c.ref(),
			Name:      c.Name,
			Quantity:  c.Quantity,
			Price:     c.Price,
		}
	}
	if err := order.ValidateItems(items); err != nil {
		return nil, err
	}

	if s.cfg.TestPayment || req.TestMode {
		o, err := s.orders.CreateTestOrder(ctx, order.Draft{
			CustomerID: req.CustomerID,
			Items:      items,
			Shipping:   req.Shipping,
			Customer:   customerFromShipping(req.Shipping),
		})
		if err != nil {
			return nil, errors.Wrap(err, "test order")
		}
		return &Result{
			TestPayment: true,
			OrderID:     o.ID,
			RedirectURL: req.SuccessURL,
		}, nil
	}

	if s.provider == nil {
		return nil, errors.Wrap(payment.ErrUpstreamUnavailable, "no payment provider configured")
	}

	metadata, err := sessionMetadata(req)
	if err != nil {
		return nil, err
	}
	lines := make([]payment.SessionLine, len(req.Items))
	for i, c := range req.Items {
		name := c.Name
		if name == "" {
			name = order.DefaultItemName
		}
		lines[i] = payment.SessionLine{Name: name, UnitAmount: c.Price, Quantity: c.Quantity}
	}

	sess, err := s.provider.CreateSession(ctx, payment.CreateSessionParams{
		Lines:      lines,
		SuccessURL: successURL(req.SuccessURL),
		CancelURL:  req.CancelURL,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	return &Result{URL: sess.URL}, nil
}

// Confirm ingests the session the customer returned from.
func (s *Service) Confirm(ctx context.Context, sessionID string) (*order.Order, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	if s.provider == nil {
		return nil, errors.Wrap(payment.ErrUpstreamUnavailable, "no payment provider configured")
	}
	sess, err := s.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "retrieve session")
	}
	o, _, err := s.orders.Ingest(ctx, *sess)
	if err != nil {
		return nil, errors.Wrap(err, "ingest")
	}
	return o, nil
}

// HandleWebhook verifies and processes a provider event. Unpaid sessions
// are acknowledged since asynchronous payment methods complete later.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.verifier == nil {
		return errors.Wrap(payment.ErrSignatureInvalid, "no webhook secret configured")
	}
	ev, err := s.verifier.Verify(payload, signature)
	if err != nil {
		return err
	}

	lg := zctx.From(ctx).With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))
	if ev.Type != payment.EventCheckoutSessionCompleted {
		lg.Debug("Ignoring event")
		return nil
	}

	o, err := s.Confirm(ctx, ev.SessionID)
	switch {
	case errors.Is(err, payment.ErrNotPaid):
		lg.Info("Session not paid yet", zap.String("session_id", ev.SessionID))
		return nil
	case err != nil:
		return err
	}
	lg.Info("Webhook processed", zap.String("order_id", o.ID))
	return nil
}

func customerFromShipping(sh *payment.Shipping) order.CustomerDetails {
	if sh == nil {
		return order.CustomerDetails{}
	}
	return order.CustomerDetails{
		Name:    sh.Name,
		Phone:   sh.Phone,
		Address: payment.FlattenAddress(sh.Address),
	}
}

func sessionMetadata(req Request) (map[string]string, error) {
	meta := make([]payment.MetadataItem, len(req.Items))
	for i, c := range req.Items {
		meta[i] = payment.MetadataItem{
			ID:       c.ref(),
			Name:     c.Name,
			Price:    c.Price,
			Quantity: c.Quantity,
		}
	}
	items, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.Wrap(err, "encode items")
	}
	out := map[string]string{payment.MetadataItems: string(items)}
	if req.Shipping != nil && !req.Shipping.IsZero() {
		sh, err := json.Marshal(req.Shipping)
		if err != nil {
			return nil, errors.Wrap(err, "encode shipping")
		}
		out[payment.MetadataShipping] = string(sh)
	}
	if req.CustomerID != "" {
		out[payment.MetadataCustomerID] = req.CustomerID
	}
	return out, nil
}

// successURL appends the session id placeholder as a query parameter. The
// placeholder must stay unescaped for the provider to expand it.
func successURL(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.RawQuery == "" {
		return base + "?session_id=" + sessionPlaceholder
	}
	return base + "&session_id=" + sessionPlaceholder
}
