package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// Reconciliation-level audit actions. Gateway-level actions live next to the
// client that emits them.
const (
	ActionResponseInvalidCart   = "RESPONSE_INVALID_CART"
	ActionDuplicateTransaction  = "DUPLICATE_TRANSACTION"
	ActionTransactionRolledBack = "TRANSACTION_ROLLED_BACK"
	ActionCartFulfilled         = "CART_FULFILLED"
)

// Entry is one audit trail row.
type Entry struct {
	Action  string
	Gateway string
	CartID  string
	Details map[string]any
}

// Store persists audit entries.
type Store interface {
	InsertAuditLog(ctx context.Context, entry Entry) error
}

// Service writes the payment audit trail. Recording is best effort: a failed
// insert is logged and swallowed so the payment flow never fails on
// bookkeeping.
type Service struct {
	Store   Store
	Gateway string
	Logger  zerolog.Logger
}

// Record persists one audit entry. CartID may be empty when the notification
// could not be tied to a cart.
func (s *Service) Record(ctx context.Context, action, cartID string, details map[string]any) {
	entry := Entry{
		Action:  action,
		Gateway: s.Gateway,
		CartID:  cartID,
		Details: details,
	}
	if err := s.Store.InsertAuditLog(ctx, entry); err != nil {
		s.Logger.Error().Err(err).
			Str("action", action).
			Str("cart_id", cartID).
			Msg("audit insert failed")
	}
}
