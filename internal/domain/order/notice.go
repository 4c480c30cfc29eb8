package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultItemName is shown for lines whose product cannot be resolved.
const DefaultItemName = "Item"

// DefaultCustomerName is shown when an order carries no purchaser name.
const DefaultCustomerName = "Customer"

// NoticeItem is an order line as shown in notifications.
type NoticeItem struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
}

// NewOrderNotice announces a freshly created order to the admin dashboard.
type NewOrderNotice struct {
	OrderID      string
	CustomerName string
	Status       Status
	Items        []NoticeItem
}

// UpdateNotice tells a customer that their order changed status.
type UpdateNotice struct {
	OrderID    string
	CustomerID string
	Status     Status
	Items      []NoticeItem
	Message    string
}

// Notifier pushes order events to live subscribers. Implementations must
// not block and must not fail: undeliverable events are dropped.
type Notifier interface {
	NewOrder(ctx context.Context, n NewOrderNotice)
	OrderUpdated(ctx context.Context, n UpdateNotice)
}

type nopNotifier struct{}

func (nopNotifier) NewOrder(context.Context, NewOrderNotice)   {}
func (nopNotifier) OrderUpdated(context.Context, UpdateNotice) {}

// StatusMessage returns the customer-facing message for o: the stored admin
// comment when present, otherwise a sentence naming the status verbatim.
func StatusMessage(o *Order) string {
	if strings.TrimSpace(o.Metadata.AdminComment) != "" {
		return o.Metadata.AdminComment
	}
	return fmt.Sprintf("Your order is %s.", o.Status)
}

func noticeItems(items []Item) []NoticeItem {
	out := make([]NoticeItem, len(items))
	for i, it := range items {
		name := it.Name
		if name == "" {
			name = DefaultItemName
		}
		out[i] = NoticeItem{Name: name, Quantity: it.Quantity, Price: it.Price}
	}
	return out
}

func newOrderNotice(o *Order) NewOrderNotice {
	name := o.Customer.Name
	if name == "" {
		name = DefaultCustomerName
	}
	return NewOrderNotice{
		OrderID:      o.ID,
		CustomerName: name,
		Status:       o.Status,
		Items:        noticeItems(o.Items),
	}
}

func updateNotice(o *Order) UpdateNotice {
	return UpdateNotice{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Items:      noticeItems(o.Items),
		Message:    StatusMessage(o),
	}
}
