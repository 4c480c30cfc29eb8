package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/golden-feast/internal/domain/checkout"
	"github.com/xenking/golden-feast/internal/domain/order"
	"github.com/xenking/golden-feast/internal/domain/payment"
	"github.com/xenking/golden-feast/internal/domain/product"
)

// money renders as a JSON number with two decimals.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

func (m *money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*m = money(d)
	return nil
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       money     `json:"price"`
	Images      []string  `json:"images"`
	Inventory   int       `json:"inventory"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type listingResponse struct {
	Category string          `json:"category"`
	Product  productResponse `json:"product"`
}

func (h *Handler) productResponse(p product.Product) productResponse {
	images := make([]string, len(p.Images))
	for i, img := range p.Images {
		images[i] = h.imageURL(img)
	}
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money(p.Price),
		Images:      images,
		Inventory:   p.Inventory,
		Category:    p.Category,
		CreatedAt:   p.CreatedAt,
	}
}

// imageURL prefixes relative image paths with the configured base URL.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

type itemResponse struct {
	ProductID string `json:"productId,omitempty"`
	Name      string `json:"name"`
	Quantity  int    `json:"qty"`
	Price     money  `json:"price"`
}

type orderResponse struct {
	ID                   string                `json:"id"`
	CustomerID           string                `json:"customerId,omitempty"`
	Items                []itemResponse        `json:"items"`
	Total                money                 `json:"total"`
	Status               order.Status          `json:"status"`
	PaymentStatus        order.PaymentStatus   `json:"paymentStatus"`
	PaymentMethod        string                `json:"paymentMethod"`
	PaymentSessionID     string                `json:"paymentSessionId,omitempty"`
	CustomerDetails      order.CustomerDetails `json:"customerDetails"`
	Shipping             *payment.Shipping     `json:"shipping,omitempty"`
	AdminNotification    bool                  `json:"adminNotification"`
	CustomerNotification bool                  `json:"customerNotification"`
	Metadata             order.Metadata        `json:"metadata"`
	CreatedAt            time.Time             `json:"createdAt"`
	UpdatedAt            time.Time             `json:"updatedAt"`
}

func newOrderResponse(o *order.Order) orderResponse {
	items := make([]itemResponse, len(o.Items))
	for i, it := range o.Items {
		name := it.Name
		if name == "" {
			name = order.DefaultItemName
		}
		items[i] = itemResponse{
			ProductID: it.ProductID,
			Name:      name,
			Quantity:  it.Quantity,
			Price:     money(it.Price),
		}
	}
	return orderResponse{
		ID:                   o.ID,
		CustomerID:           o.CustomerID,
		Items:                items,
		Total:                money(o.Total),
		Status:               o.Status,
		PaymentStatus:        o.PaymentStatus,
		PaymentMethod:        o.PaymentMethod,
		PaymentSessionID:     o.PaymentSessionID,
		CustomerDetails:      o.Customer,
		Shipping:             o.Shipping,
		AdminNotification:    o.AdminNotification,
		CustomerNotification: o.CustomerNotification,
		Metadata:             o.Metadata,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

func newOrderResponses(orders []order.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = newOrderResponse(&orders[i])
	}
	return out
}

type noticeItemResponse struct {
	Name     string `json:"name"`
	Quantity int    `json:"qty"`
	Price    money  `json:"price"`
}

type noticeResponse struct {
	OrderID string               `json:"orderId"`
	Status  order.Status         `json:"status"`
	Items   []noticeItemResponse `json:"items"`
	Message string               `json:"message"`
}

func newNoticeResponse(n order.UpdateNotice) noticeResponse {
	items := make([]noticeItemResponse, len(n.Items))
	for i, it := range n.Items {
		items[i] = noticeItemResponse{Name: it.Name, Quantity: it.Quantity, Price: money(it.Price)}
	}
	return noticeResponse{OrderID: n.OrderID, Status: n.Status, Items: items, Message: n.Message}
}

type itemRequest struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"qty"`
	Amount    int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// quantity accepts both the order ("qty") and cart ("quantity") spellings.
func (i itemRequest) quantity() int {
	if i.Quantity != 0 {
		return i.Quantity
	}
	return i.Amount
}

func (i itemRequest) ref() string {
	if i.ProductID != "" {
		return i.ProductID
	}
	return i.ID
}

type createOrderRequest struct {
	CustomerID      string                `json:"customerId"`
	Items           []itemRequest         `json:"items"`
	Total           *decimal.Decimal      `json:"total"`
	CustomerDetails order.CustomerDetails `json:"customerDetails"`
	Shipping        *payment.Shipping     `json:"shipping"`
	Metadata        order.Metadata        `json:"metadata"`
	PaymentMethod   string                `json:"paymentMethod"`
}

func (req createOrderRequest) draft() order.Draft {
	items := make([]order.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.Item{ProductID: it.ref(), Name: it.Name, Quantity: it.quantity(), Price: it.Price}
	}
	return order.Draft{
		CustomerID:    req.CustomerID,
		Items:         items,
		Total:         req.Total,
		Customer:      req.CustomerDetails,
		Shipping:      req.Shipping,
		Metadata:      req.Metadata,
		PaymentMethod: req.PaymentMethod,
	}
}

type updateOrderRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

type checkoutRequest struct {
	CustomerID string            `json:"customerId"`
	Items      []itemRequest     `json:"items"`
	Shipping   *payment.Shipping `json:"shipping"`
	SuccessURL string            `json:"successUrl"`
	CancelURL  string            `json:"cancelUrl"`
	TestMode   bool              `json:"testMode"`
}

func (req checkoutRequest) request() checkout.Request {
	items := make([]checkout.CartItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = checkout.CartItem{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.quantity(),
		}
	}
	return checkout.Request{
		CustomerID: req.CustomerID,
		Items:      items,
		Shipping:   req.Shipping,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		TestMode:   req.TestMode,
	}
}

type checkoutResponse struct {
	TestPayment bool   `json:"testPayment,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	URL         string `json:"url,omitempty"`
}

type confirmRequest struct {
	SessionID string `json:"sessionId"`
}

type confirmResponse struct {
	OrderID string       `json:"orderId"`
	Status  order.Status `json:"status"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}
