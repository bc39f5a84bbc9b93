package hyperpay

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var mandatoryFields = []string{
	"id",
	"paymentType",
	"paymentBrand",
	"amount",
	"currency",
	"merchantTransactionId",
	"result",
}

var mandatoryCardFields = []string{
	"bin",
	"last4Digits",
	"holder",
	"expiryMonth",
	"expiryYear",
}

// Validator cross-checks a successful processor response against the local
// cart before any money state changes. Every check failure wraps ErrGateway.
type Validator struct {
	Currency string
}

// VerifySuccessResponse asserts that a processed notification matches the
// cart it claims to settle: all mandatory fields present, amount exactly
// equal to the cart total, currency as configured, card details complete when
// a card object is echoed, and the line-item count matching. Amounts compare
// as decimals; a one-cent mismatch is a failure.
func (v Validator) VerifySuccessResponse(n Notification, total decimal.Decimal, itemCount int) error {
	for _, field := range mandatoryFields {
		if _, ok := n[field]; !ok {
			return fmt.Errorf("%w: missing mandatory field %q", ErrGateway, field)
		}
	}

	amount, err := decimal.NewFromString(n.Amount())
	if err != nil {
		return fmt.Errorf("%w: unparseable amount %q", ErrGateway, n.Amount())
	}
	if !amount.Equal(total) {
		return fmt.Errorf("%w: amount mismatch: gateway reported %s, cart total is %s",
			ErrGateway, amount.String(), total.String())
	}

	if n.Currency() != v.Currency {
		return fmt.Errorf("%w: currency mismatch: got %q, want %q", ErrGateway, n.Currency(), v.Currency)
	}

	if n.ResultCode() == "" {
		return fmt.Errorf("%w: result code is not a string", ErrGateway)
	}

	// Wallet payments carry no card object; only a partial one is rejected.
	if card, ok := n.Card(); ok {
		for _, field := range mandatoryCardFields {
			if _, present := card[field]; !present {
				return fmt.Errorf("%w: missing card field %q", ErrGateway, field)
			}
		}
	}

	if got := n.CartItemCount(); got != itemCount {
		return fmt.Errorf("%w: cart item count mismatch: gateway echoed %d, cart has %d",
			ErrGateway, got, itemCount)
	}
	return nil
}
