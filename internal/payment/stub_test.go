package payment_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

// memStore mimics the persistence layer including the at-most-once
// settlement guarantee of the unique transaction index.
type memStore struct {
	mu         sync.Mutex
	carts      map[string]store.Cart
	items      map[string][]store.CartItem
	settledTx  map[string]string
	invoices   map[string]store.Invoice
	invoiceTx  map[string]string
	fulfilled  map[string]bool
	settleErr  error
	nextInvoID int64
}

func newMemStore(carts ...store.Cart) *memStore {
	m := &memStore{
		carts:     map[string]store.Cart{},
		items:     map[string][]store.CartItem{},
		settledTx: map[string]string{},
		invoices:  map[string]store.Invoice{},
		invoiceTx: map[string]string{},
		fulfilled: map[string]bool{},
	}
	for _, c := range carts {
		m.carts[c.ID] = c
	}
	return m
}

func (m *memStore) GetCart(_ context.Context, id string) (store.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[id]
	if !ok {
		return store.Cart{}, store.ErrNotFound
	}
	return cart, nil
}

func (m *memStore) UpdateCartStatus(_ context.Context, id string, status store.CartStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[id]
	if !ok {
		return store.ErrNotFound
	}
	cart.Status = status
	m.carts[id] = cart
	return nil
}

func (m *memStore) Settle(_ context.Context, p store.SettleParams) (store.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settleErr != nil {
		return store.Invoice{}, m.settleErr
	}
	cart, ok := m.carts[p.CartID]
	if !ok {
		return store.Invoice{}, store.ErrNotFound
	}
	if _, dup := m.settledTx[p.Gateway+"/"+p.GatewayTransactionID]; dup {
		return store.Invoice{}, fmt.Errorf("%w: transactions_gateway_gateway_transaction_id_key", hyperpay.ErrDuplicateTransaction)
	}
	switch cart.Status {
	case store.CartProcessing, store.CartPending:
	case store.CartPaid:
		return store.Invoice{}, fmt.Errorf("%w: cart %s already paid", hyperpay.ErrDuplicateTransaction, cart.ID)
	default:
		return store.Invoice{}, store.ErrCartNotSettleable{CartID: cart.ID, Status: cart.Status}
	}

	m.nextInvoID++
	inv := store.Invoice{
		ID:            m.nextInvoID,
		CartID:        p.CartID,
		TransactionID: m.nextInvoID,
		Amount:        p.Amount,
		Currency:      p.Currency,
	}
	m.settledTx[p.Gateway+"/"+p.GatewayTransactionID] = p.CartID
	m.invoices[p.CartID] = inv
	m.invoiceTx[p.CartID] = p.GatewayTransactionID
	cart.Status = store.CartPaid
	m.carts[p.CartID] = cart
	return inv, nil
}

func (m *memStore) GetInvoiceForCart(_ context.Context, cartID string) (store.Invoice, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[cartID]
	if !ok {
		return store.Invoice{}, "", store.ErrNotFound
	}
	return inv, m.invoiceTx[cartID], nil
}

func (m *memStore) ListCartItems(_ context.Context, cartID string) ([]store.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[cartID], nil
}

func (m *memStore) AttachCheckout(_ context.Context, id, checkoutID, paymentMethod string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[id]
	if !ok {
		return store.ErrNotFound
	}
	cart.CheckoutID = checkoutID
	cart.PaymentMethod = paymentMethod
	cart.Status = store.CartProcessing
	m.carts[id] = cart
	return nil
}

func (m *memStore) MarkCartFulfilled(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fulfilled[id] {
		return false, nil
	}
	m.fulfilled[id] = true
	return true, nil
}

func (m *memStore) cartStatus(id string) store.CartStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.carts[id].Status
}

type stubAuditor struct {
	mu      sync.Mutex
	actions []string
	cartIDs []string
}

func (a *stubAuditor) Record(_ context.Context, action, cartID string, _ map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	a.cartIDs = append(a.cartIDs, cartID)
}

func (a *stubAuditor) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.actions...)
}

type stubFulfiller struct {
	mu      sync.Mutex
	cartIDs []string
	err     error
}

func (f *stubFulfiller) EnqueueFulfillment(_ context.Context, cartID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cartIDs = append(f.cartIDs, cartID)
	return nil
}

func (f *stubFulfiller) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cartIDs...)
}

func processingCart(id, total string) store.Cart {
	return store.Cart{
		ID:        id,
		Status:    store.CartProcessing,
		Total:     decimal.RequireFromString(total),
		Currency:  "SAR",
		ItemCount: 2,
	}
}
