package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Transaction is one settled processor transaction. The pair
// (gateway, gateway_transaction_id) is unique, which is what makes
// settlement at most once.
type Transaction struct {
	ID                   int64
	CartID               string
	Gateway              string
	GatewayTransactionID string
	Amount               decimal.Decimal
	Currency             string
	ResultCode           string
	ResultDescription    string
	PaymentBrand         string
	CreatedAt            time.Time
}

// Invoice is the merchant-side record issued for a paid cart.
type Invoice struct {
	ID            int64
	CartID        string
	TransactionID int64
	Amount        decimal.Decimal
	Currency      string
	CreatedAt     time.Time
}

// InsertTransactionTx inserts a transaction inside tx. A replayed gateway
// transaction id surfaces as hyperpay.ErrDuplicateTransaction.
func (s *Store) InsertTransactionTx(ctx context.Context, tx pgx.Tx, t Transaction) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO transactions
		 (cart_id, gateway, gateway_transaction_id, amount, currency, result_code, result_description, payment_brand)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		t.CartID, t.Gateway, t.GatewayTransactionID, t.Amount, t.Currency,
		t.ResultCode, t.ResultDescription, t.PaymentBrand).Scan(&id)
	if err != nil {
		return 0, mapInsertErr(err)
	}
	return id, nil
}

// InsertInvoiceTx issues an invoice inside tx.
func (s *Store) InsertInvoiceTx(ctx context.Context, tx pgx.Tx, inv Invoice) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO invoices (cart_id, transaction_id, amount, currency)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		inv.CartID, inv.TransactionID, inv.Amount, inv.Currency).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetInvoiceForCart returns the invoice issued for a cart together with the
// gateway transaction id it settles.
func (s *Store) GetInvoiceForCart(ctx context.Context, cartID string) (Invoice, string, error) {
	var inv Invoice
	var gatewayTxID string
	err := s.Pool.QueryRow(ctx,
		`SELECT i.id, i.cart_id, i.transaction_id, i.amount, i.currency, i.created_at,
		        t.gateway_transaction_id
		 FROM invoices i
		 JOIN transactions t ON t.id = i.transaction_id
		 WHERE i.cart_id = $1
		 ORDER BY i.id DESC
		 LIMIT 1`, cartID).
		Scan(&inv.ID, &inv.CartID, &inv.TransactionID, &inv.Amount, &inv.Currency,
			&inv.CreatedAt, &gatewayTxID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, "", ErrNotFound
	}
	if err != nil {
		return Invoice{}, "", err
	}
	return inv, gatewayTxID, nil
}
