package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/golden-feast/internal/domain/payment"
	"github.com/xenking/golden-feast/pkg/httpmiddleware"
)

// StartCheckout begins a hosted checkout or, in test mode, places a paid
// test order right away.
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.CustomerID = customerFor(r, req.CustomerID)
	res, err := h.checkout.Start(r.Context(), req.request())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{
		TestPayment: res.TestPayment,
		OrderID:     res.OrderID,
		RedirectURL: res.RedirectURL,
		URL:         res.URL,
	})
}

// ConfirmCheckout records the order of a session the customer returned from.
func (h *Handler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.checkout.Confirm(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{OrderID: o.ID, Status: o.Status})
}

// StripeWebhook processes provider events. Signature failures answer 400 and
// anything else that fails answers 500 so the provider retries.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	err = h.checkout.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, payment.ErrSignatureInvalid):
		zctx.From(r.Context()).Warn("Rejected webhook", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid signature")
	default:
		zctx.From(r.Context()).Error("Webhook processing failed", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "webhook processing failed")
	}
}
