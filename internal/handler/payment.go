package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/payment"
)

type PaymentHandler struct {
	payments *payment.Adapter
	// base outlives the request that starts a payment; the outcome arrives on
	// a later callback request.
	base   context.Context
	logger zerolog.Logger
}

func NewPaymentHandler(payments *payment.Adapter, base context.Context, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, base: base, logger: logger}
}

// Start creates the provider order and waits in the background for the
// checkout widget to report back through Callback.
func (h *PaymentHandler) Start(w http.ResponseWriter, r *http.Request) {
	order, err := h.payments.Begin(r.Context())
	if err != nil {
		writeError(w, err, "Failed to start payment. Please try again.")
		return
	}

	go func() {
		outcome, err := h.payments.Finish(h.base, order.OrderID)
		evt := h.logger.Info()
		if err != nil {
			evt = h.logger.Warn().Err(err)
		}
		evt.Str("order_id", order.OrderID).Str("outcome", string(outcome)).Msg("payment finished")
	}()

	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":     order.OrderID,
		"amount":       order.Amount,
		"currency":     order.Currency,
		"key":          order.Key,
		"callback_url": "/payment/callback?order_id=" + url.QueryEscape(order.OrderID),
	})
}

// Callback receives the checkout widget's result.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_id is required"})
		return
	}
	outcome := payment.ParseOutcome(r.URL.Query().Get("status"))
	if err := h.payments.Complete(orderID, outcome); err != nil {
		if errors.Is(err, payment.ErrUnknownOrder) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown payment order"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to record payment outcome"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}
