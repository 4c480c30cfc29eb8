// Package stripe adapts Stripe Checkout to the payment provider boundary.
package stripe

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/xenking/golden-feast/internal/domain/payment"
)

var (
	_ payment.Provider      = (*Provider)(nil)
	_ payment.EventVerifier = (*Verifier)(nil)
)

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = "usd"

// Config holds Stripe credentials.
type Config struct {
	SecretKey string
	Currency  string
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL string
}

// Provider creates and retrieves Checkout sessions.
type Provider struct {
	api      *client.API
	currency string
}

// NewProvider creates a Provider for cfg.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = DefaultCurrency
	}

	var backends *stripego.Backends
	if cfg.HTTPClient != nil || cfg.BaseURL != "" {
		bc := &stripego.BackendConfig{HTTPClient: cfg.HTTPClient}
		if cfg.BaseURL != "" {
			bc.URL = stripego.String(cfg.BaseURL)
		}
		backends = &stripego.Backends{
			API:     stripego.GetBackendWithConfig(stripego.APIBackend, bc),
			Connect: stripego.GetBackendWithConfig(stripego.ConnectBackend, bc),
			Uploads: stripego.GetBackendWithConfig(stripego.UploadsBackend, bc),
		}
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Provider{api: api, currency: currency}, nil
}

// CreateSession starts a hosted card checkout.
func (p *Provider) CreateSession(ctx context.Context, params payment.CreateSessionParams) (*payment.CheckoutSession, error) {
	sp := &stripego.CheckoutSessionParams{
		Mode:               stripego.String(string(stripego.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
		SuccessURL:         stripego.String(params.SuccessURL),
		CancelURL:          stripego.String(params.CancelURL),
	}
	sp.Context = ctx
	for _, l := range params.Lines {
		sp.LineItems = append(sp.LineItems, &stripego.CheckoutSessionLineItemParams{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency: stripego.String(p.currency),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripego.String(l.Name),
				},
				UnitAmount: stripego.Int64(toMinorUnits(l.UnitAmount)),
			},
			Quantity: stripego.Int64(int64(l.Quantity)),
		})
	}
	for k, v := range params.Metadata {
		sp.AddMetadata(k, v)
	}

	s, err := p.api.CheckoutSessions.New(sp)
	if err != nil {
		return nil, mapError(err)
	}
	return &payment.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// RetrieveSession fetches a session with its line items.
func (p *Provider) RetrieveSession(ctx context.Context, id string) (*payment.Session, error) {
	sp := &stripego.CheckoutSessionParams{}
	sp.Context = ctx
	sp.AddExpand("line_items")

	s, err := p.api.CheckoutSessions.Get(id, sp)
	if err != nil {
		return nil, mapError(err)
	}
	return convertSession(s), nil
}

func convertSession(s *stripego.CheckoutSession) *payment.Session {
	out := &payment.Session{
		ID:       s.ID,
		Paid:     s.PaymentStatus == stripego.CheckoutSessionPaymentStatusPaid,
		Metadata: s.Metadata,
	}
	// A fully discounted session legitimately totals zero.
	if s.LineItems != nil || s.PaymentStatus != "" {
		total := fromMinorUnits(s.AmountTotal)
		out.AmountTotal = &total
	}
	if s.LineItems != nil {
		for _, li := range s.LineItems.Data {
			if li == nil {
				continue
			}
			unit := decimal.Zero
			switch {
			case li.Price != nil:
				unit = fromMinorUnits(li.Price.UnitAmount)
			case li.Quantity > 0:
				unit = fromMinorUnits(li.AmountTotal / li.Quantity)
			}
			out.LineItems = append(out.LineItems, payment.LineItem{
				Description: li.Description,
				Quantity:    li.Quantity,
				UnitAmount:  unit,
			})
		}
	}
	if cd := s.CustomerDetails; cd != nil {
		out.Customer = payment.CustomerDetails{
			Name:    cd.Name,
			Email:   cd.Email,
			Phone:   cd.Phone,
			Address: convertAddress(cd.Address),
		}
	}
	if sd := s.ShippingDetails; sd != nil {
		out.Shipping = &payment.Shipping{
			Name:    sd.Name,
			Phone:   sd.Phone,
			Address: convertAddress(sd.Address),
		}
	}
	return out
}

func convertAddress(a *stripego.Address) payment.Address {
	if a == nil {
		return payment.Address{}
	}
	return payment.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

func mapError(err error) error {
	var se *stripego.Error
	if errors.As(err, &se) {
		if se.Code == stripego.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound {
			return errors.Wrap(payment.ErrSessionNotFound, se.Msg)
		}
		return errors.Wrapf(payment.ErrUpstreamUnavailable, "stripe: %s", se.Msg)
	}
	return errors.Wrap(payment.ErrUpstreamUnavailable, err.Error())
}

// Verifier authenticates webhook deliveries with the endpoint secret.
type Verifier struct {
	secret string
}

// NewVerifier creates a Verifier. The secret must not be empty.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	return &Verifier{secret: secret}, nil
}

// Verify checks the Stripe-Signature header and decodes the event.
func (v *Verifier) Verify(payload []byte, signature string) (*payment.Event, error) {
	if signature == "" {
		return nil, payment.ErrSignatureInvalid
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Wrap(payment.ErrSignatureInvalid, err.Error())
	}

	out := &payment.Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil && len(ev.Data.Raw) > 0 {
		id, err := objectID(ev.Data.Raw)
		if err != nil {
			return nil, errors.Wrap(err, "decode event object")
		}
		out.SessionID = id
	}
	return out, nil
}

// objectID extracts the top-level "id" of an event object.
func objectID(raw []byte) (string, error) {
	var id string
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "id" || d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		id = v
		return nil
	})
	return id, err
}
