package model

import "encoding/json"

// PaymentOrder is the payment-session payload returned when a payment is
// initiated. Only the fields the desk needs are decoded; Raw carries the rest
// for the checkout page. Amount is kept as the provider sent it, for display.
type PaymentOrder struct {
	OrderID  string          `json:"order_id"`
	Amount   json.Number     `json:"amount"`
	Currency string          `json:"currency"`
	Key      string          `json:"key,omitempty"`
	Raw      json.RawMessage `json:"-"`
}
