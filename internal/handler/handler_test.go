package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/golden-feast/internal/domain/auth"
	"github.com/xenking/golden-feast/internal/domain/checkout"
	"github.com/xenking/golden-feast/internal/domain/order"
	"github.com/xenking/golden-feast/internal/domain/payment"
	"github.com/xenking/golden-feast/internal/domain/user"
	"github.com/xenking/golden-feast/internal/jwtauth"
	"github.com/xenking/golden-feast/internal/notify"
	"github.com/xenking/golden-feast/internal/storage/memory"
	"github.com/xenking/golden-feast/pkg/httpmiddleware"
)

// --- Mock implementations ---

type mockProvider struct {
	sessions map[string]*payment.Session
	err      error
}

func (m *mockProvider) CreateSession(_ context.Context, _ payment.CreateSessionParams) (*payment.CheckoutSession, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &payment.CheckoutSession{ID: "cs_new", URL: "https://pay.example.com/cs_new"}, nil
}

func (m *mockProvider) RetrieveSession(_ context.Context, id string) (*payment.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	return s, nil
}

type mockVerifier struct {
	event *payment.Event
}

func (m *mockVerifier) Verify(_ []byte, signature string) (*payment.Event, error) {
	if signature != "valid" {
		return nil, errors.Wrap(payment.ErrSignatureInvalid, "bad signature")
	}
	return m.event, nil
}

// --- Helpers ---

type testServer struct {
	t        *testing.T
	srv      *httptest.Server
	orders   *order.Service
	hub      *notify.Hub
	provider *mockProvider
	verifier *mockVerifier
	tokens   *jwtauth.Tokens
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	products, err := memory.NewSeededProductRepository()
	require.NoError(t, err)

	hub := notify.NewHub(8)
	orders, err := order.NewService(memory.NewOrderRepository(), products, notify.NewPublisher(hub))
	require.NoError(t, err)

	provider := &mockProvider{sessions: map[string]*payment.Session{}}
	verifier := &mockVerifier{}
	checkoutSvc := checkout.NewService(orders, provider, verifier, checkout.Config{})

	tokens, err := jwtauth.New("test-secret-test-secret-test-secret")
	require.NoError(t, err)

	users := user.NewService(memory.NewUserRepository(), tokens, user.WithHashCost(bcrypt.MinCost))

	h := NewHandler(HandlerConfig{ImageBaseURL: "https://cdn.example.com"}, products, orders, checkoutSvc, users, nil)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(httpmiddleware.Authenticate(tokens))
		h.Routes(r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{
		t:        t,
		srv:      srv,
		orders:   orders,
		hub:      hub,
		provider: provider,
		verifier: verifier,
		tokens:   tokens,
	}
}

func (s *testServer) token(userID string, role auth.Role) string {
	tok, err := s.tokens.Issue(auth.Identity{UserID: userID, Role: role})
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(s.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sig, ok := body.(signed); ok {
		req.Header.Set("Stripe-Signature", sig.signature)
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type signed struct {
	Payload   string `json:"payload"`
	signature string
}

type orderBody struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customerId"`
	Status     string      `json:"status"`
	Total      json.Number `json:"total"`
	Items      []struct {
		Name     string      `json:"name"`
		Quantity int         `json:"qty"`
		Price    json.Number `json:"price"`
	} `json:"items"`
	AdminNotification    bool `json:"adminNotification"`
	CustomerNotification bool `json:"customerNotification"`
	Metadata             struct {
		AdminComment string `json:"adminComment"`
	} `json:"metadata"`
}

func burgerCart() map[string]any {
	return map[string]any{
		"customerId": "cust-1",
		"items":      []map[string]any{{"id": "p1", "name": "Burger", "price": 8.0, "quantity": 2}},
		"shipping":   map[string]any{"name": "Homer", "address": map[string]any{"line1": "742 Evergreen Terrace", "city": "Springfield"}},
		"successUrl": "https://shop.example.com/checkout/success",
		"cancelUrl":  "https://shop.example.com/cart",
		"testMode":   true,
	}
}

func nextEvent(t *testing.T, sub *notify.Subscriber) notify.Event {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return notify.Event{}
	}
}

// --- Tests ---

func TestTestModeCheckout_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	admin := s.hub.Subscribe()
	s.hub.Join(admin, notify.AdminRoom())

	var started checkoutResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/checkout/session", "", burgerCart(), &started))
	assert.True(t, started.TestPayment)
	assert.Equal(t, "https://shop.example.com/checkout/success", started.RedirectURL)
	require.NotEmpty(t, started.OrderID)

	ev := nextEvent(t, admin)
	assert.Equal(t, notify.EventNewOrder, ev.Name)

	var got orderBody
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/orders/"+started.OrderID, "", nil, &got))
	assert.Equal(t, "paid-test", got.Status)
	assert.Equal(t, "16.00", got.Total.String())
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Burger", got.Items[0].Name)
	assert.Equal(t, 2, got.Items[0].Quantity)

	var grouped map[string][]orderBody
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/orders?grouped=1", s.token("a1", auth.RoleAdmin), nil, &grouped))
	assert.Len(t, grouped, len(order.Statuses))
	for _, st := range order.Statuses {
		assert.Contains(t, grouped, string(st))
	}
	require.Len(t, grouped["paid-test"], 1)
	assert.Equal(t, started.OrderID, grouped["paid-test"][0].ID)
	assert.Empty(t, grouped["pending"])
}

func TestProducts(t *testing.T) {
	s := newTestServer(t)

	var products []productResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/products", "", nil, &products))
	require.NotEmpty(t, products)
	for _, p := range products {
		assert.True(t, decimal.Decimal(p.Price).IsPositive(), "product %s price", p.ID)
	}

	var burger struct {
		Name   string      `json:"name"`
		Price  json.Number `json:"price"`
		Images []string    `json:"images"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/products/p1", "", nil, &burger))
	assert.Equal(t, "Burger", burger.Name)
	assert.Equal(t, "8.00", burger.Price.String())
	for _, img := range burger.Images {
		assert.Contains(t, img, "https://cdn.example.com/")
	}

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/products/nope", "", nil, nil))

	var listed []struct {
		Category string `json:"category"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/listed-products", "", nil, &listed))
	seen := make(map[string]bool)
	for _, l := range listed {
		assert.False(t, seen[l.Category], "category %s listed twice", l.Category)
		seen[l.Category] = true
	}
}

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t)

	var created orderBody
	status := s.do(http.MethodPost, "/api/orders", "", map[string]any{
		"customerId": "cust-1",
		"items":      []map[string]any{{"productId": "p5", "qty": 3, "price": "3.50"}},
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "10.50", created.Total.String())
	assert.True(t, created.AdminNotification)
	assert.Equal(t, "Fries", created.Items[0].Name)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/orders", "", map[string]any{"items": []any{}}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/orders", "", "{not json", nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/orders", "", map[string]any{
		"items": []map[string]any{{"productId": "p1", "qty": 0, "price": 8}},
	}, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/orders/missing", "", nil, nil))
}

func TestAdminRoutes_Authorization(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("cust-1", auth.RoleCustomer)

	for _, path := range []string{"/api/orders", "/api/orders/admin-notifications"} {
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, path, "", nil, nil), path)
		assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, path, customer, nil, nil), path)
	}
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, "/api/orders/x", customer, map[string]any{"status": "accepted"}, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/orders", "garbage", nil, nil))
}

func TestUpdateOrder(t *testing.T) {
	s := newTestServer(t)
	admin := s.token("a1", auth.RoleAdmin)

	var created orderBody
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/orders", "", map[string]any{
		"customerId": "cust-1",
		"items":      []map[string]any{{"productId": "p1", "qty": 1, "price": 8}},
	}, &created))

	sub := s.hub.Subscribe()
	s.hub.Join(sub, notify.CustomerRoom("cust-1"))

	path := "/api/orders/" + created.ID
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, path, admin, map[string]any{"status": "shipped"}, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, "/api/orders/missing", admin, map[string]any{"status": "accepted"}, nil))

	var updated orderBody
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, path, admin, map[string]any{"status": "accepted", "comment": "On the grill"}, &updated))
	assert.Equal(t, "accepted", updated.Status)
	assert.False(t, updated.AdminNotification)
	assert.True(t, updated.CustomerNotification)
	assert.Equal(t, "On the grill", updated.Metadata.AdminComment)

	ev := nextEvent(t, sub)
	assert.Equal(t, notify.OrderUpdateEvent("cust-1"), ev.Name)
	var payload struct {
		OrderID string `json:"orderId"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, created.ID, payload.OrderID)
	assert.Equal(t, "On the grill", payload.Message)

	var admins []orderBody
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/orders/admin-notifications", admin, nil, &admins))
	assert.Empty(t, admins)
}

func TestCustomerNotifications(t *testing.T) {
	s := newTestServer(t)
	admin := s.token("a1", auth.RoleAdmin)
	owner := s.token("cust-1", auth.RoleCustomer)
	stranger := s.token("cust-2", auth.RoleCustomer)

	var created orderBody
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/orders", "", map[string]any{
		"customerId": "cust-1",
		"items":      []map[string]any{{"productId": "p1", "qty": 2, "price": 8}},
	}, &created))
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, "/api/orders/"+created.ID, admin, map[string]any{"status": "completed"}, nil))

	var notices []noticeBody
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/orders/customer-notifications", owner, nil, &notices))
	require.Len(t, notices, 1)
	assert.Equal(t, "Your order is completed.", notices[0].Message)
	assert.Equal(t, "Burger", notices[0].Items[0].Name)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/orders/customer-notifications?customerId=cust-1", "", nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/orders/customer-notifications?customerId=cust-1", stranger, nil, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/orders/customer-notifications?customerId=cust-1", admin, nil, &notices))
	assert.Len(t, notices, 1)

	var history []orderBody
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/orders/customer/cust-1", owner, nil, &history))
	assert.Len(t, history, 1)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/orders/customer/cust-1", stranger, nil, nil))

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/orders/"+created.ID+"/acknowledge", stranger, nil, nil))
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/api/orders/"+created.ID+"/acknowledge", owner, nil, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/orders/customer-notifications", owner, nil, &notices))
	assert.Empty(t, notices)
}

type noticeBody struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
	Items   []struct {
		Name string `json:"name"`
	} `json:"items"`
}

func paidSession(id string) *payment.Session {
	total := decimal.RequireFromString("16.00")
	return &payment.Session{
		ID:          id,
		Paid:        true,
		AmountTotal: &total,
		LineItems:   []payment.LineItem{{Description: "Burger", Quantity: 2, UnitAmount: decimal.RequireFromString("8.00")}},
		Customer:    payment.CustomerDetails{Name: "Homer", Email: "homer@example.com"},
		Metadata:    map[string]string{payment.MetadataCustomerID: "cust-1"},
	}
}

func TestConfirmCheckout(t *testing.T) {
	s := newTestServer(t)
	s.provider.sessions["cs_paid"] = paidSession("cs_paid")
	s.provider.sessions["cs_open"] = &payment.Session{ID: "cs_open"}

	var first, second confirmResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/checkout/confirm", "", confirmRequest{SessionID: "cs_paid"}, &first))
	assert.Equal(t, order.StatusPending, first.Status)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/checkout/confirm", "", confirmRequest{SessionID: "cs_paid"}, &second))
	assert.Equal(t, first.OrderID, second.OrderID)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/checkout/confirm", "", confirmRequest{}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/checkout/confirm", "", confirmRequest{SessionID: "cs_open"}, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/checkout/confirm", "", confirmRequest{SessionID: "cs_gone"}, nil))

	s.provider.err = errors.Wrap(payment.ErrUpstreamUnavailable, "timeout")
	assert.Equal(t, http.StatusBadGateway, s.do(http.MethodPost, "/api/checkout/confirm", "", confirmRequest{SessionID: "cs_paid"}, nil))

	all, err := s.orders.List(context.Background(), order.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStartCheckout_Hosted(t *testing.T) {
	s := newTestServer(t)
	cart := burgerCart()
	cart["testMode"] = false

	var res checkoutResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/checkout/session", "", cart, &res))
	assert.False(t, res.TestPayment)
	assert.Equal(t, "https://pay.example.com/cs_new", res.URL)

	s.provider.err = payment.ErrUpstreamUnavailable
	assert.Equal(t, http.StatusBadGateway, s.do(http.MethodPost, "/api/checkout/session", "", cart, nil))
}

func TestStripeWebhook(t *testing.T) {
	s := newTestServer(t)
	s.provider.sessions["cs_hook"] = paidSession("cs_hook")
	s.verifier.event = &payment.Event{ID: "evt_1", Type: payment.EventCheckoutSessionCompleted, SessionID: "cs_hook"}

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/webhooks/stripe", "", signed{signature: "forged"}, nil))
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/webhooks/stripe", "", signed{signature: "valid"}, nil))
	// Redelivery is acknowledged without a second order.
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/webhooks/stripe", "", signed{signature: "valid"}, nil))

	orders, err := s.orders.ListByCustomer(context.Background(), "cust-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "cs_hook", orders[0].PaymentSessionID)

	s.provider.err = errors.New("connection reset")
	assert.Equal(t, http.StatusInternalServerError, s.do(http.MethodPost, "/api/webhooks/stripe", "", signed{signature: "valid"}, nil))
}

func TestAuth_RegisterLogin(t *testing.T) {
	s := newTestServer(t)

	var reg registerResponse
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Marge", "email": "Marge@Example.com", "password": "donuts!",
	}, &reg))
	require.NotEmpty(t, reg.ID)
	assert.Equal(t, "marge@example.com", reg.Email)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "marge@example.com", "password": "another1",
	}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "bart@example.com", "password": "123",
	}, nil))
	// Registration never grants admin.
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "bart@example.com", "password": "skateboard", "role": "admin",
	}, nil))

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "marge@example.com", "password": "wrong-password",
	}, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "nobody@example.com", "password": "donuts!",
	}, nil))

	var login loginResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "marge@example.com", "password": "donuts!",
	}, &login))
	assert.Equal(t, reg.ID, login.UserID)
	assert.Equal(t, "customer", login.Role)

	id, err := s.tokens.Parse(login.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: reg.ID, Role: auth.RoleCustomer}, id)

	var bart loginResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "bart@example.com", "password": "skateboard",
	}, &bart))
	assert.Equal(t, "customer", bart.Role)

	// The issued token opens the customer's own routes.
	var notices []noticeBody
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/orders/customer-notifications", login.Token, nil, &notices))
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/orders/customer/someone-else", login.Token, nil, nil))
}

func TestCheckout_CustomerFromToken(t *testing.T) {
	s := newTestServer(t)

	var started checkoutResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/checkout/session", s.token("cust-9", auth.RoleCustomer), burgerCart(), &started))
	o, err := s.orders.Get(context.Background(), started.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "cust-9", o.CustomerID)

	var created orderBody
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/orders", s.token("cust-9", auth.RoleCustomer), map[string]any{
		"customerId": "cust-1",
		"items":      []map[string]any{{"productId": "p1", "qty": 1, "price": 8}},
	}, &created))
	assert.Equal(t, "cust-9", created.CustomerID)

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/orders", s.token("a1", auth.RoleAdmin), map[string]any{
		"customerId": "cust-1",
		"items":      []map[string]any{{"productId": "p1", "qty": 1, "price": 8}},
	}, &created))
	assert.Equal(t, "cust-1", created.CustomerID)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/checkout/session", "", burgerCart(), &started))
	o, err = s.orders.Get(context.Background(), started.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", o.CustomerID)
}

func TestStatusFor(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want int
	}{
		{order.ErrEmptyItems, http.StatusBadRequest},
		{&order.InvalidItemError{Index: 0, Reason: "bad"}, http.StatusBadRequest},
		{errors.Wrap(payment.ErrNotPaid, "confirm"), http.StatusBadRequest},
		{payment.ErrSignatureInvalid, http.StatusBadRequest},
		{errors.Wrap(order.ErrNotFound, "get"), http.StatusNotFound},
		{payment.ErrSessionNotFound, http.StatusNotFound},
		{payment.ErrUpstreamUnavailable, http.StatusBadGateway},
		{auth.ErrUnauthorized, http.StatusUnauthorized},
		{auth.ErrForbidden, http.StatusForbidden},
		{user.ErrShortPassword, http.StatusBadRequest},
		{errors.Wrap(user.ErrEmailTaken, "create user"), http.StatusConflict},
		{user.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("disk full"), http.StatusInternalServerError},
	} {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
