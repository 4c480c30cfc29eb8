// Package payment describes the payment provider boundary: checkout
// sessions, their completion events and the errors the provider can report.
package payment

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotPaid is returned when a session has not been paid yet.
	ErrNotPaid = errors.New("payment not confirmed")
	// ErrSignatureInvalid is returned when a provider event fails signature
	// verification.
	ErrSignatureInvalid = errors.New("invalid event signature")
	// ErrSessionNotFound is returned when the provider does not know the session.
	ErrSessionNotFound = errors.New("payment session not found")
	// ErrUpstreamUnavailable is returned when the provider cannot be reached
	// or fails to serve the request.
	ErrUpstreamUnavailable = errors.New("payment provider unavailable")
)

// Metadata keys written on session creation and read back on ingestion.
const (
	MetadataItems      = "items"
	MetadataShipping   = "shipping"
	MetadataCustomerID = "customerId"
)

// EventCheckoutSessionCompleted is the provider event emitted once the
// customer finishes the hosted checkout.
const EventCheckoutSessionCompleted = "checkout.session.completed"

// Address is a postal address. Every component may be empty.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// IsZero reports whether all address components are empty.
func (a Address) IsZero() bool {
	return a == Address{}
}

// FlattenAddress joins the non-empty address components with ", ".
func FlattenAddress(a Address) string {
	parts := make([]string, 0, 6)
	for _, v := range []string{a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// Shipping holds a shipping recipient and address.
type Shipping struct {
	Name    string  `json:"name,omitempty"`
	Phone   string  `json:"phone,omitempty"`
	Address Address `json:"address"`
}

// IsZero reports whether no shipping information is present.
func (s Shipping) IsZero() bool {
	return s.Name == "" && s.Phone == "" && s.Address.IsZero()
}

// CustomerDetails is what the provider collected about the purchaser.
type CustomerDetails struct {
	Name    string
	Email   string
	Phone   string
	Address Address
}

// LineItem is a provider-reported purchased line.
type LineItem struct {
	Description string
	Quantity    int64
	UnitAmount  decimal.Decimal
}

// MetadataItem is a cart line serialized into session metadata at checkout.
type MetadataItem struct {
	ID        string          `json:"id,omitempty"`
	ProductID string          `json:"productId,omitempty"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Ref returns the product reference carried by the item, if any.
func (i MetadataItem) Ref() string {
	if i.ID != "" {
		return i.ID
	}
	return i.ProductID
}

// Session is a provider checkout session as seen by the order pipeline.
type Session struct {
	ID          string
	Paid        bool
	LineItems   []LineItem
	AmountTotal *decimal.Decimal
	Customer    CustomerDetails
	Shipping    *Shipping
	Metadata    map[string]string
}

// SessionLine is a line item requested for a new checkout session.
type SessionLine struct {
	Name       string
	UnitAmount decimal.Decimal
	Quantity   int
}

// CreateSessionParams holds the input for starting a hosted checkout.
type CreateSessionParams struct {
	Lines      []SessionLine
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSession is a freshly created hosted checkout.
type CheckoutSession struct {
	ID  string
	URL string
}

// Event is a verified provider event.
type Event struct {
	ID        string
	Type      string
	SessionID string
}

// Provider creates and retrieves checkout sessions.
type Provider interface {
	CreateSession(ctx context.Context, params CreateSessionParams) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, id string) (*Session, error)
}

// EventVerifier authenticates and decodes provider event callbacks.
type EventVerifier interface {
	Verify(payload []byte, signature string) (*Event, error)
}
