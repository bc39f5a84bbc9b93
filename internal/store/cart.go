package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CartStatus is the lifecycle state of a cart.
type CartStatus string

const (
	// CartNew means the cart exists but no checkout has been opened yet.
	CartNew CartStatus = "NEW"
	// CartProcessing means a checkout session is open and payment is awaited.
	CartProcessing CartStatus = "PROCESSING"
	// CartPending means the processor reported a still-changeable outcome.
	CartPending CartStatus = "PENDING"
	// CartPaid means a settled transaction and invoice exist for the cart.
	CartPaid CartStatus = "PAID"
	// CartCancelled means payment was rejected or the cart was abandoned.
	CartCancelled CartStatus = "CANCELLED"
)

// Cart is the purchasable unit a payment settles.
type Cart struct {
	ID            string
	Status        CartStatus
	Total         decimal.Decimal
	Currency      string
	ItemCount     int
	CheckoutID    string
	PaymentMethod string
	CustomerEmail string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const cartColumns = `id, status, total, currency, item_count,
	coalesce(checkout_id, ''), coalesce(payment_method, ''), coalesce(customer_email, ''),
	created_at, updated_at`

func scanCart(row pgx.Row) (Cart, error) {
	var c Cart
	err := row.Scan(&c.ID, &c.Status, &c.Total, &c.Currency, &c.ItemCount,
		&c.CheckoutID, &c.PaymentMethod, &c.CustomerEmail, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, ErrNotFound
	}
	return c, err
}

// GetCart fetches a cart by id.
func (s *Store) GetCart(ctx context.Context, id string) (Cart, error) {
	return s.getCart(ctx, s.Pool, id, false)
}

// GetCartForUpdate fetches a cart inside tx with a row lock, serialising
// concurrent settlement attempts on the same cart.
func (s *Store) GetCartForUpdate(ctx context.Context, tx pgx.Tx, id string) (Cart, error) {
	return s.getCart(ctx, tx, id, true)
}

func (s *Store) getCart(ctx context.Context, db DBTX, id string, forUpdate bool) (Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanCart(db.QueryRow(ctx, query, id))
}

// UpdateCartStatus moves a cart to status using the pool.
func (s *Store) UpdateCartStatus(ctx context.Context, id string, status CartStatus) error {
	return s.updateCartStatus(ctx, s.Pool, id, status)
}

// UpdateCartStatusTx moves a cart to status inside tx.
func (s *Store) UpdateCartStatusTx(ctx context.Context, tx pgx.Tx, id string, status CartStatus) error {
	return s.updateCartStatus(ctx, tx, id, status)
}

func (s *Store) updateCartStatus(ctx context.Context, db DBTX, id string, status CartStatus) error {
	tag, err := db.Exec(ctx,
		`UPDATE carts SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateCart inserts a cart with its line items in one transaction. An empty
// id gets a fresh UUID. The stored item count always reflects the inserted
// items.
func (s *Store) CreateCart(ctx context.Context, cart Cart, items []CartItem) (string, error) {
	if cart.ID == "" {
		cart.ID = uuid.NewString()
	}
	if cart.Status == "" {
		cart.Status = CartNew
	}
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO carts (id, status, total, currency, item_count, customer_email)
			 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`,
			cart.ID, cart.Status, cart.Total, cart.Currency, len(items), cart.CustomerEmail)
		if err != nil {
			return err
		}
		for _, it := range items {
			_, err := tx.Exec(ctx,
				`INSERT INTO cart_items (cart_id, name, quantity, price) VALUES ($1, $2, $3, $4)`,
				cart.ID, it.Name, it.Quantity, it.Price)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return cart.ID, nil
}

// MarkCartFulfilled stamps fulfilled_at once. The second and later calls for
// the same cart report false, keeping fulfillment idempotent.
func (s *Store) MarkCartFulfilled(ctx context.Context, id string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE carts SET fulfilled_at = now(), updated_at = now()
		 WHERE id = $1 AND fulfilled_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CartItem is one purchasable line of a cart.
type CartItem struct {
	ID       int64
	CartID   string
	Name     string
	Quantity int
	Price    decimal.Decimal
}

// ListCartItems returns the line items of a cart in insertion order.
func (s *Store) ListCartItems(ctx context.Context, cartID string) ([]CartItem, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, cart_id, name, quantity, price FROM cart_items WHERE cart_id = $1 ORDER BY id`,
		cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CartItem
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.Name, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// AttachCheckout stores the processor session handle on a cart and moves it
// to PROCESSING.
func (s *Store) AttachCheckout(ctx context.Context, id, checkoutID, paymentMethod string) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE carts
		 SET checkout_id = $2, payment_method = $3, status = $4, updated_at = now()
		 WHERE id = $1`,
		id, checkoutID, paymentMethod, CartProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
