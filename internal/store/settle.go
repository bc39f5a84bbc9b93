package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
)

// SettleParams describes one settlement attempt.
type SettleParams struct {
	CartID               string
	Gateway              string
	GatewayTransactionID string
	Amount               decimal.Decimal
	Currency             string
	ResultCode           string
	ResultDescription    string
	PaymentBrand         string
}

// ErrCartNotSettleable is returned when the locked cart is not in a state
// that accepts payment.
type ErrCartNotSettleable struct {
	CartID string
	Status CartStatus
}

func (e ErrCartNotSettleable) Error() string {
	return fmt.Sprintf("store: cart %s in status %s cannot be settled", e.CartID, e.Status)
}

// Settle marks a cart paid in one transaction: lock the cart row, re-check
// its status under the lock, insert the processor transaction, issue the
// invoice and flip the cart to PAID. The unique index on
// (gateway, gateway_transaction_id) makes a concurrent replay lose with
// hyperpay.ErrDuplicateTransaction, rolling the whole unit back.
func (s *Store) Settle(ctx context.Context, p SettleParams) (Invoice, error) {
	var invoice Invoice
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		cart, err := s.GetCartForUpdate(ctx, tx, p.CartID)
		if err != nil {
			return err
		}
		switch cart.Status {
		case CartProcessing, CartPending:
		case CartPaid:
			// The same transaction id would have tripped the unique index;
			// a paid cart with a different id is still a duplicate attempt.
			return fmt.Errorf("%w: cart %s already paid", hyperpay.ErrDuplicateTransaction, cart.ID)
		default:
			return ErrCartNotSettleable{CartID: cart.ID, Status: cart.Status}
		}

		txID, err := s.InsertTransactionTx(ctx, tx, Transaction{
			CartID:               p.CartID,
			Gateway:              p.Gateway,
			GatewayTransactionID: p.GatewayTransactionID,
			Amount:               p.Amount,
			Currency:             p.Currency,
			ResultCode:           p.ResultCode,
			ResultDescription:    p.ResultDescription,
			PaymentBrand:         p.PaymentBrand,
		})
		if err != nil {
			return err
		}

		invID, err := s.InsertInvoiceTx(ctx, tx, Invoice{
			CartID:        p.CartID,
			TransactionID: txID,
			Amount:        p.Amount,
			Currency:      p.Currency,
		})
		if err != nil {
			return err
		}
		invoice = Invoice{ID: invID, CartID: p.CartID, TransactionID: txID, Amount: p.Amount, Currency: p.Currency}

		return s.UpdateCartStatusTx(ctx, tx, p.CartID, CartPaid)
	})
	if err != nil {
		return Invoice{}, err
	}
	return invoice, nil
}
