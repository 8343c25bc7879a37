package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dukerupert/clinicdesk/internal/model"
)

// InitiatePayment starts the one-time license payment and returns the
// provider order.
func (c *Client) InitiatePayment(ctx context.Context) (model.PaymentOrder, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/payment/pay", nil, &raw); err != nil {
		return model.PaymentOrder{}, err
	}
	return decodePaymentOrder(raw)
}

// decodePaymentOrder accepts the order id as order_id, orderId or id, either at
// the top level or under "order".
func decodePaymentOrder(raw json.RawMessage) (model.PaymentOrder, error) {
	type orderFields struct {
		OrderID  string      `json:"order_id"`
		OrderID2 string      `json:"orderId"`
		ID       string      `json:"id"`
		Amount   json.Number `json:"amount"`
		Currency string      `json:"currency"`
		Key      string      `json:"key"`
	}
	var payload struct {
		orderFields
		Order *orderFields `json:"order"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return model.PaymentOrder{}, fmt.Errorf("decode payment order: %w", err)
	}

	f := payload.orderFields
	key := f.Key
	if payload.Order != nil {
		f = *payload.Order
		if f.Key == "" {
			f.Key = key
		}
	}

	order := model.PaymentOrder{
		Amount:   f.Amount,
		Currency: f.Currency,
		Key:      f.Key,
		Raw:      raw,
	}
	switch {
	case f.OrderID != "":
		order.OrderID = f.OrderID
	case f.OrderID2 != "":
		order.OrderID = f.OrderID2
	default:
		order.OrderID = f.ID
	}
	if order.OrderID == "" {
		return model.PaymentOrder{}, fmt.Errorf("decode payment order: no order id in response")
	}
	return order, nil
}

// VerifyPayment confirms a completed order with the API.
func (c *Client) VerifyPayment(ctx context.Context, orderID string) error {
	return c.doJSON(ctx, http.MethodPost, "/payment/verify-manual", map[string]string{"order_id": orderID}, nil)
}
