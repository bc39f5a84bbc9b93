package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zeitlabs/payments-hyperpay/internal/audit"
)

// InsertAuditLog persists one audit trail row. A nil cart id column is used
// when the entry could not be tied to a cart.
func (s *Store) InsertAuditLog(ctx context.Context, entry audit.Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	var cartID *string
	if entry.CartID != "" {
		cartID = &entry.CartID
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO audit_logs (action, gateway, cart_id, details)
		 VALUES ($1, $2, $3, $4)`,
		entry.Action, entry.Gateway, cartID, details)
	return err
}
