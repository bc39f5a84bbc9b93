package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/zeitlabs/payments-hyperpay/internal/audit"
	"github.com/zeitlabs/payments-hyperpay/internal/obs"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

// TaskCartFulfill is the task type for fulfilling a paid cart.
const TaskCartFulfill = "cart:fulfill"

type fulfillPayload struct {
	CartID string `json:"cart_id"`
}

// QueueFulfiller enqueues fulfillment work onto the task queue. The task id
// is derived from the cart so a settled cart is enqueued at most once while
// the task is in flight.
type QueueFulfiller struct {
	Client *asynq.Client
	Queue  string
	Logger zerolog.Logger
}

// EnqueueFulfillment schedules fulfillment for a paid cart.
func (f *QueueFulfiller) EnqueueFulfillment(ctx context.Context, cartID string) error {
	payload, err := json.Marshal(fulfillPayload{CartID: cartID})
	if err != nil {
		return fmt.Errorf("marshal fulfillment payload: %w", err)
	}
	task := asynq.NewTask(TaskCartFulfill, payload)
	_, err = f.Client.EnqueueContext(ctx, task,
		asynq.Queue(f.Queue),
		asynq.TaskID(TaskCartFulfill+":"+cartID),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		f.Logger.Debug().Str("cart_id", cartID).Msg("fulfillment already enqueued")
		return nil
	}
	return err
}

// FulfillmentStore is the persistence surface for the fulfillment worker.
type FulfillmentStore interface {
	GetCart(ctx context.Context, id string) (store.Cart, error)
	MarkCartFulfilled(ctx context.Context, id string) (bool, error)
}

// FulfillmentWorker processes cart fulfillment tasks.
type FulfillmentWorker struct {
	Store  FulfillmentStore
	Audit  Auditor
	Logger zerolog.Logger
}

// HandleCartFulfill fulfils a paid cart. Missing or unpaid carts are not
// retried; transient store errors are.
func (w *FulfillmentWorker) HandleCartFulfill(ctx context.Context, t *asynq.Task) error {
	var p fulfillPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		countFulfillment("bad_payload")
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	cart, err := w.Store.GetCart(ctx, p.CartID)
	if errors.Is(err, store.ErrNotFound) {
		countFulfillment("cart_missing")
		return fmt.Errorf("cart %s not found: %w", p.CartID, asynq.SkipRetry)
	}
	if err != nil {
		countFulfillment("store_error")
		return fmt.Errorf("load cart %s: %w", p.CartID, err)
	}
	if cart.Status != store.CartPaid {
		countFulfillment("not_paid")
		return fmt.Errorf("cart %s is %s, not PAID: %w", cart.ID, cart.Status, asynq.SkipRetry)
	}

	fresh, err := w.Store.MarkCartFulfilled(ctx, cart.ID)
	if err != nil {
		countFulfillment("store_error")
		return fmt.Errorf("mark cart %s fulfilled: %w", cart.ID, err)
	}
	if !fresh {
		countFulfillment("already_fulfilled")
		w.Logger.Debug().Str("cart_id", cart.ID).Msg("cart already fulfilled")
		return nil
	}

	w.Audit.Record(ctx, audit.ActionCartFulfilled, cart.ID, map[string]any{
		"total":    cart.Total.String(),
		"currency": cart.Currency,
	})
	w.Logger.Info().Str("cart_id", cart.ID).Msg("cart fulfilled")
	countFulfillment("ok")
	return nil
}

func countFulfillment(result string) {
	if obs.FulfillmentsTotal == nil {
		return
	}
	obs.FulfillmentsTotal.WithLabelValues(result).Inc()
}
