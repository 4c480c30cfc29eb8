package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/golden-feast/internal/domain/auth"
	"github.com/xenking/golden-feast/internal/domain/order"
)

// CreateOrder stores an order submitted directly by a client.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.CustomerID = customerFor(r, req.CustomerID)
	o, err := h.orders.Create(r.Context(), req.draft())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

// ListOrders returns every order, optionally filtered by status or grouped
// into the six status buckets with ?grouped=1.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("grouped") == "1" {
		grouped, err := h.orders.ListGrouped(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make(map[order.Status][]orderResponse, len(grouped))
		for st, orders := range grouped {
			out[st] = newOrderResponses(orders)
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	var f order.Filter
	if s := q.Get("status"); s != "" {
		st, err := order.ParseStatus(s)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.Status = st
	}
	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponses(orders))
}

// AdminNotifications returns orders the admin has not handled yet.
func (h *Handler) AdminNotifications(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.AdminNotifications(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponses(orders))
}

// CustomerNotifications returns pending update notices. Customers default
// to their own id.
func (h *Handler) CustomerNotifications(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customerId")
	if id, ok := auth.FromContext(r.Context()); ok && customerID == "" {
		customerID = id.UserID
	}
	if err := authorizeCustomer(r, customerID); err != nil {
		writeError(w, r, err)
		return
	}
	notices, err := h.orders.CustomerNotifications(r.Context(), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]noticeResponse, len(notices))
	for i, n := range notices {
		out[i] = newNoticeResponse(n)
	}
	writeJSON(w, http.StatusOK, out)
}

// CustomerOrders returns a customer's order history.
func (h *Handler) CustomerOrders(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")
	if err := authorizeCustomer(r, customerID); err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.orders.ListByCustomer(r.Context(), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponses(orders))
}

// GetOrder returns one order with item names resolved.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// UpdateOrder transitions an order to a new status.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.orders.Transition(r.Context(), chi.URLParam(r, "id"), req.Status, req.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(res.Order))
}

// AcknowledgeOrder clears the caller's pending notification for an order.
func (h *Handler) AcknowledgeOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if _, err := h.orders.AcknowledgeCustomerNotification(r.Context(), chi.URLParam(r, "id"), id.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
