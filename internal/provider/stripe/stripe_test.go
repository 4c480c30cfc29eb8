package stripe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/xenking/golden-feast/internal/domain/payment"
)

const sessionJSON = `{
  "id": "cs_test_1",
  "object": "checkout.session",
  "payment_status": "paid",
  "amount_total": 1600,
  "currency": "usd",
  "metadata": {"customerId": "c1"},
  "customer_details": {
    "name": "Marge",
    "email": "marge@example.com",
    "phone": null,
    "address": {"line1": "742 Evergreen Terrace", "line2": null, "city": "Springfield", "state": "", "postal_code": "97403", "country": "US"}
  },
  "shipping_details": {
    "name": "Marge",
    "phone": "555-0100",
    "address": {"line1": "742 Evergreen Terrace", "city": "Springfield", "country": "US"}
  },
  "line_items": {
    "object": "list",
    "has_more": false,
    "data": [
      {"id": "li_1", "object": "item", "description": "Burger", "quantity": 2, "amount_total": 1600, "price": {"id": "price_1", "object": "price", "unit_amount": 800}}
    ]
  }
}`

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := NewProvider(Config{SecretKey: "sk_test_123", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	return p
}

func TestProvider_RetrieveSession(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_test_1", r.URL.Path)
		assert.Equal(t, "line_items", r.URL.Query().Get("expand[0]"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, sessionJSON)
	})

	s, err := p.RetrieveSession(context.Background(), "cs_test_1")
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", s.ID)
	assert.True(t, s.Paid)
	require.NotNil(t, s.AmountTotal)
	assert.True(t, decimal.RequireFromString("16.00").Equal(*s.AmountTotal))
	assert.Equal(t, "c1", s.Metadata[payment.MetadataCustomerID])

	require.Len(t, s.LineItems, 1)
	assert.Equal(t, "Burger", s.LineItems[0].Description)
	assert.EqualValues(t, 2, s.LineItems[0].Quantity)
	assert.True(t, decimal.RequireFromString("8.00").Equal(s.LineItems[0].UnitAmount))

	assert.Equal(t, "Marge", s.Customer.Name)
	assert.Equal(t, "742 Evergreen Terrace, Springfield, 97403, US", payment.FlattenAddress(s.Customer.Address))
	require.NotNil(t, s.Shipping)
	assert.Equal(t, "555-0100", s.Shipping.Phone)
}

func TestProvider_RetrieveSession_ZeroTotal(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
  "id": "cs_free",
  "object": "checkout.session",
  "payment_status": "no_payment_required",
  "amount_total": 0,
  "line_items": {"object": "list", "data": [
    {"id": "li_1", "object": "item", "description": "Burger", "quantity": 1, "amount_total": 0, "price": {"id": "price_1", "object": "price", "unit_amount": 800}}
  ]}
}`)
	})

	s, err := p.RetrieveSession(context.Background(), "cs_free")
	require.NoError(t, err)
	require.NotNil(t, s.AmountTotal)
	assert.True(t, s.AmountTotal.IsZero())
}

func TestProvider_RetrieveSession_NotFound(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":"resource_missing","message":"No such checkout.session: 'cs_x'","type":"invalid_request_error"}}`)
	})

	_, err := p.RetrieveSession(context.Background(), "cs_x")
	require.ErrorIs(t, err, payment.ErrSessionNotFound)
}

func TestProvider_CreateSession(t *testing.T) {
	var form url.Values
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cs_new","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_new"}`)
	})

	s, err := p.CreateSession(context.Background(), payment.CreateSessionParams{
		Lines:      []payment.SessionLine{{Name: "Burger", UnitAmount: decimal.RequireFromString("8.5"), Quantity: 2}},
		SuccessURL: "https://shop.example.com/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://shop.example.com/cancel",
		Metadata:   map[string]string{payment.MetadataCustomerID: "c1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_new", s.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_new", s.URL)

	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "850", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "Burger", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "2", form.Get("line_items[0][quantity]"))
	assert.Equal(t, "c1", form.Get("metadata[customerId]"))
}

func TestMinorUnits(t *testing.T) {
	assert.EqualValues(t, 800, toMinorUnits(decimal.RequireFromString("8")))
	assert.EqualValues(t, 334, toMinorUnits(decimal.RequireFromString("3.335")))
	assert.True(t, decimal.RequireFromString("13.50").Equal(fromMinorUnits(1350)))
}

func TestVerifier(t *testing.T) {
	const secret = "whsec_test"
	v, err := NewVerifier(secret)
	require.NoError(t, err)

	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed",` +
		`"data":{"object":{"object":"checkout.session","id":"cs_test_1","payment_status":"paid"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})

	ev, err := v.Verify(payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, payment.EventCheckoutSessionCompleted, ev.Type)
	assert.Equal(t, "cs_test_1", ev.SessionID)

	_, err = v.Verify(payload, "")
	require.ErrorIs(t, err, payment.ErrSignatureInvalid)

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-3] = ' '
	_, err = v.Verify(tampered, signed.Header)
	require.ErrorIs(t, err, payment.ErrSignatureInvalid)

	_, err = NewVerifier("")
	require.Error(t, err)
}
