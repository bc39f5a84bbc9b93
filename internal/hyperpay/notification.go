package hyperpay

import (
	"encoding/json"
	"io"
	"strings"
)

// Notification is a raw vendor payload. It stays untyped at the boundary:
// HyperPay echoes camelCase keys on the status API and snake_case on webhook
// deliveries, and the full key space is not worth enumerating. Accessors
// normalise the variants.
type Notification map[string]any

// DecodeNotification parses a vendor JSON body. Numbers are kept as
// json.Number so monetary amounts survive without float rounding.
func DecodeNotification(r io.Reader) (Notification, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var n Notification
	if err := dec.Decode(&n); err != nil {
		return nil, err
	}
	return n, nil
}

// TransactionID returns the vendor-assigned transaction identifier.
func (n Notification) TransactionID() string {
	return n.stringKey("id")
}

// ResultCode returns result.code, or "" when absent or not a string.
func (n Notification) ResultCode() string {
	result, ok := n["result"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := result["code"].(string)
	return code
}

// ResultDescription returns result.description when present.
func (n Notification) ResultDescription() string {
	result, ok := n["result"].(map[string]any)
	if !ok {
		return ""
	}
	desc, _ := result["description"].(string)
	return desc
}

// MerchantReference returns the echoed merchant transaction id, accepting
// both key casings.
func (n Notification) MerchantReference() string {
	if v := n.stringKey("merchantTransactionId"); v != "" {
		return v
	}
	return n.stringKey("merchant_transaction_id")
}

// Amount returns the textual amount as sent by the vendor.
func (n Notification) Amount() string {
	return n.stringKey("amount")
}

// Currency returns the ISO currency code of the notification.
func (n Notification) Currency() string {
	return n.stringKey("currency")
}

// PaymentBrand returns the card brand, accepting both key casings.
func (n Notification) PaymentBrand() string {
	if v := n.stringKey("paymentBrand"); v != "" {
		return v
	}
	return n.stringKey("payment_brand")
}

// Card returns the card sub-object when present.
func (n Notification) Card() (map[string]any, bool) {
	card, ok := n["card"].(map[string]any)
	if !ok || len(card) == 0 {
		return nil, false
	}
	return card, true
}

// CartItemCount returns the number of line items echoed back by the vendor.
func (n Notification) CartItemCount() int {
	cart, ok := n["cart"].(map[string]any)
	if !ok {
		return 0
	}
	items, ok := cart["items"].([]any)
	if !ok {
		return 0
	}
	return len(items)
}

func (n Notification) stringKey(key string) string {
	switch v := n[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
