// Package handler exposes the storefront HTTP API on a chi router.
package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/golden-feast/internal/domain/auth"
	"github.com/xenking/golden-feast/internal/domain/checkout"
	"github.com/xenking/golden-feast/internal/domain/order"
	"github.com/xenking/golden-feast/internal/domain/payment"
	"github.com/xenking/golden-feast/internal/domain/product"
	"github.com/xenking/golden-feast/internal/domain/user"
	"github.com/xenking/golden-feast/pkg/httpmiddleware"
)

const (
	maxBodyBytes    = 1 << 20
	maxWebhookBytes = 64 << 10
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler serves the /api routes.
type Handler struct {
	products     product.Repository
	orders       *order.Service
	checkout     *checkout.Service
	users        *user.Service
	socket       http.Handler
	imageBaseURL string
}

// NewHandler constructs a Handler. socket may be nil to disable the bus
// endpoint.
func NewHandler(
	cfg HandlerConfig,
	products product.Repository,
	orders *order.Service,
	checkoutSvc *checkout.Service,
	users *user.Service,
	socket http.Handler,
) *Handler {
	return &Handler{
		products:     products,
		orders:       orders,
		checkout:     checkoutSvc,
		users:        users,
		socket:       socket,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes registers the API on r. Callers are expected to have run
// httpmiddleware.Authenticate so identities are available.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)

	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)
	r.Get("/listed-products", h.ListedProducts)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/customer-notifications", h.CustomerNotifications)
		r.Get("/customer/{customerId}", h.CustomerOrders)
		r.Get("/{id}", h.GetOrder)
		r.With(httpmiddleware.RequireUser()).Post("/{id}/acknowledge", h.AcknowledgeOrder)

		r.Group(func(r chi.Router) {
			r.Use(httpmiddleware.RequireAdmin())
			r.Get("/", h.ListOrders)
			r.Get("/admin-notifications", h.AdminNotifications)
			r.Put("/{id}", h.UpdateOrder)
		})
	})

	r.Post("/checkout/session", h.StartCheckout)
	r.Post("/checkout/confirm", h.ConfirmCheckout)
	r.Post("/webhooks/stripe", h.StripeWebhook)

	if h.socket != nil {
		r.Handle("/socket", h.socket)
	}
}

// customerFor returns the customer an order is placed for. Signed-in
// customers always order for themselves; admins may name any customer.
func customerFor(r *http.Request, requested string) string {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return requested
	}
	if id.IsAdmin() && requested != "" {
		return requested
	}
	return id.UserID
}

// authorizeCustomer checks that the caller may act on customerID's data.
func authorizeCustomer(r *http.Request, customerID string) error {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.ErrUnauthorized
	}
	if !id.CanAccessCustomer(customerID) {
		return auth.ErrForbidden
	}
	return nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(order.ErrValidation, "malformed request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, user.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, order.ErrValidation),
		errors.Is(err, payment.ErrNotPaid),
		errors.Is(err, payment.ErrSignatureInvalid),
		errors.Is(err, user.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, user.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, payment.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the JSON error body. Internal errors are logged
// and their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status >= http.StatusInternalServerError:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	case errors.Is(err, order.ErrNotFound):
		msg = order.ErrNotFound.Error()
	}
	httpmiddleware.WriteError(w, status, msg)
}
