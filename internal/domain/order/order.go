package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/golden-feast/internal/domain/payment"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusPaidTest   Status = "paid-test"
)

// Statuses lists every status in display order.
var Statuses = []Status{
	StatusPending,
	StatusAccepted,
	StatusRejected,
	StatusProcessing,
	StatusCompleted,
	StatusPaidTest,
}

// ParseStatus validates s against the status enumeration.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

// PaymentStatus is informational and independent of Status.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Payment methods recorded on orders created by this service.
const (
	MethodStripe = "stripe"
	MethodTest   = "test"
)

var (
	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")

	ErrEmptyItems        = fmt.Errorf("%w: items required", ErrValidation)
	ErrInvalidStatus     = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrNegativeTotal     = fmt.Errorf("%w: total must not be negative", ErrValidation)
	ErrMissingOrderID    = fmt.Errorf("%w: order id required", ErrValidation)
	ErrMissingCustomerID = fmt.Errorf("%w: customer id required", ErrValidation)
)

// InvalidItemError indicates a line item with a bad quantity or price.
type InvalidItemError struct {
	Index  int
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

// Is makes every InvalidItemError match ErrValidation.
func (e *InvalidItemError) Is(target error) bool {
	return target == ErrValidation
}

// Item is a single order line.
type Item struct {
	ProductID string          `json:"productId,omitempty"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
}

// CustomerDetails is a snapshot of the purchaser taken at order time.
type CustomerDetails struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Metadata holds auxiliary order data. All fields are optional.
type Metadata struct {
	AdminComment string `json:"adminComment,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	Note         string `json:"note,omitempty"`
}

// Order is a customer's placed purchase.
type Order struct {
	ID                   string
	CustomerID           string
	Items                []Item
	Total                decimal.Decimal
	Status               Status
	PaymentStatus        PaymentStatus
	PaymentMethod        string
	PaymentSessionID     string
	Customer             CustomerDetails
	Shipping             *payment.Shipping
	AdminNotification    bool
	CustomerNotification bool
	Metadata             Metadata
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Draft is the caller-supplied input for a new order.
type Draft struct {
	CustomerID    string
	Items         []Item
	Total         *decimal.Decimal
	Customer      CustomerDetails
	Shipping      *payment.Shipping
	Metadata      Metadata
	PaymentMethod string
}

// Subtotal returns the sum of quantity times price over items.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// ValidateItems checks that items is non-empty and every line has a positive
// quantity and a non-negative price.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}
	for i, it := range items {
		if it.Quantity <= 0 {
			return &InvalidItemError{Index: i, Reason: "quantity must be greater than 0"}
		}
		if it.Price.IsNegative() {
			return &InvalidItemError{Index: i, Reason: "price must not be negative"}
		}
	}
	return nil
}

// ResolveTotal returns the explicit total when given, otherwise the subtotal
// of items. The result is rounded to 2 decimal places.
func ResolveTotal(explicit *decimal.Decimal, items []Item) (decimal.Decimal, error) {
	total := Subtotal(items)
	if explicit != nil {
		total = *explicit
	}
	if total.IsNegative() {
		return decimal.Zero, ErrNegativeTotal
	}
	return total.Round(2), nil
}

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Status                      Status
	CustomerID                  string
	AdminNotificationPending    bool
	CustomerNotificationPending bool
}

// Update is a partial order mutation. Nil fields are left untouched.
type Update struct {
	Status               *Status
	AdminNotification    *bool
	CustomerNotification *bool
	AdminComment         *string
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// CreateForSession inserts o unless an order with the same
	// PaymentSessionID exists, in which case the stored order is returned
	// with created=false. The check and insert are atomic.
	CreateForSession(ctx context.Context, o *Order) (stored *Order, created bool, err error)
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByPaymentSessionID(ctx context.Context, sessionID string) (*Order, error)
	Update(ctx context.Context, id string, u Update) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
}
