package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zeitlabs/payments-hyperpay/internal/audit"
	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
	"github.com/zeitlabs/payments-hyperpay/internal/obs"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

// Outcome is the terminal result of reconciling one processor notification.
type Outcome int

const (
	// OutcomePaid means the cart was settled and fulfillment was enqueued.
	OutcomePaid Outcome = iota
	// OutcomePending means the processor outcome may still change; the cart
	// stays open.
	OutcomePending
	// OutcomeRejected means payment failed and the cart was cancelled.
	OutcomeRejected
	// OutcomeDuplicate means this transaction was already settled; no-op.
	OutcomeDuplicate
	// OutcomeInvalidReference means the merchant reference resolved to no cart.
	OutcomeInvalidReference
	// OutcomeInvalidCartState means the cart cannot accept this notification.
	OutcomeInvalidCartState
	// OutcomeValidationFailed means a success response contradicted the cart.
	OutcomeValidationFailed
	// OutcomeUnusable means the payload was structurally unusable.
	OutcomeUnusable
)

func (o Outcome) String() string {
	switch o {
	case OutcomePaid:
		return "PAID"
	case OutcomePending:
		return "PENDING"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeDuplicate:
		return "DUPLICATE"
	case OutcomeInvalidReference:
		return "INVALID_REFERENCE"
	case OutcomeInvalidCartState:
		return "INVALID_CART_STATE"
	case OutcomeValidationFailed:
		return "VALIDATION_FAILED"
	case OutcomeUnusable:
		return "UNUSABLE"
	default:
		return "UNKNOWN"
	}
}

// CartStore is the persistence surface the reconciler needs.
type CartStore interface {
	GetCart(ctx context.Context, id string) (store.Cart, error)
	UpdateCartStatus(ctx context.Context, id string, status store.CartStatus) error
	Settle(ctx context.Context, p store.SettleParams) (store.Invoice, error)
}

// Auditor records reconciliation events.
type Auditor interface {
	Record(ctx context.Context, action, cartID string, details map[string]any)
}

// Fulfiller hands a paid cart off for out-of-band fulfillment.
type Fulfiller interface {
	EnqueueFulfillment(ctx context.Context, cartID string) error
}

// Result summarises one reconciliation.
type Result struct {
	Outcome       Outcome
	CartID        string
	TransactionID string
}

// Reconciler drives a processor notification to a terminal cart state. It is
// safe to call concurrently and safe to call repeatedly with the same
// notification: the settlement unit in the store makes replays lose.
type Reconciler struct {
	Refs       hyperpay.ReferenceScheme
	Classifier hyperpay.Classifier
	Validator  hyperpay.Validator
	Store      CartStore
	Audit      Auditor
	Fulfiller  Fulfiller
	Gateway    string
	Logger     zerolog.Logger
}

// Reconcile applies one notification. The returned error is non-nil only for
// conditions the caller may want to retry or surface; every path still
// produces a Result with a terminal Outcome.
func (r *Reconciler) Reconcile(ctx context.Context, n hyperpay.Notification) (Result, error) {
	ctx, span := otel.Tracer("payment").Start(ctx, "payment.Reconcile")
	defer span.End()

	reference := n.MerchantReference()
	span.SetAttributes(attribute.String("merchant_reference", reference))

	cartID, err := r.Refs.Parse(reference)
	if err != nil {
		r.Audit.Record(ctx, audit.ActionResponseInvalidCart, "", map[string]any{
			"merchant_reference": reference,
			"reason":             "unparseable reference",
		})
		return r.finish(Result{Outcome: OutcomeInvalidReference}, err)
	}

	cart, err := r.Store.GetCart(ctx, cartID)
	if errors.Is(err, store.ErrNotFound) {
		r.Audit.Record(ctx, audit.ActionResponseInvalidCart, cartID, map[string]any{
			"merchant_reference": reference,
			"reason":             "no such cart",
		})
		return r.finish(Result{Outcome: OutcomeInvalidReference, CartID: cartID}, hyperpay.ErrInvalidReference)
	}
	if err != nil {
		return Result{Outcome: OutcomeUnusable, CartID: cartID}, fmt.Errorf("load cart: %w", err)
	}

	status, rule, err := r.Classifier.Classify(n.ResultCode(), n.TransactionID())
	if err != nil {
		return r.finish(Result{Outcome: OutcomeUnusable, CartID: cartID}, err)
	}
	result := Result{CartID: cartID, TransactionID: n.TransactionID()}

	switch cart.Status {
	case store.CartProcessing, store.CartPending:
	case store.CartPaid:
		r.Audit.Record(ctx, audit.ActionDuplicateTransaction, cartID, map[string]any{
			"transaction_id": n.TransactionID(),
			"result_code":    n.ResultCode(),
		})
		result.Outcome = OutcomeDuplicate
		return r.finish(result, nil)
	default:
		// Only open carts reconcile; anything else is audited and untouched.
		r.Audit.Record(ctx, audit.ActionResponseInvalidCart, cartID, map[string]any{
			"transaction_id": n.TransactionID(),
			"cart_status":    string(cart.Status),
		})
		result.Outcome = OutcomeInvalidCartState
		return r.finish(result, nil)
	}

	switch status {
	case hyperpay.StatusPending:
		if err := r.Store.UpdateCartStatus(ctx, cartID, store.CartPending); err != nil {
			return result, fmt.Errorf("mark cart pending: %w", err)
		}
		result.Outcome = OutcomePending
		return r.finish(result, nil)

	case hyperpay.StatusFailure:
		if err := r.Store.UpdateCartStatus(ctx, cartID, store.CartCancelled); err != nil {
			return result, fmt.Errorf("cancel cart: %w", err)
		}
		r.Logger.Info().
			Str("cart_id", cartID).
			Str("rule", rule).
			Str("result_code", n.ResultCode()).
			Msg("payment rejected, cart cancelled")
		result.Outcome = OutcomeRejected
		return r.finish(result, nil)
	}

	return r.settle(ctx, cart, n, result)
}

func (r *Reconciler) settle(ctx context.Context, cart store.Cart, n hyperpay.Notification, result Result) (Result, error) {
	if err := r.Validator.VerifySuccessResponse(n, cart.Total, cart.ItemCount); err != nil {
		r.Audit.Record(ctx, audit.ActionResponseInvalidCart, cart.ID, map[string]any{
			"transaction_id": n.TransactionID(),
			"reason":         err.Error(),
		})
		result.Outcome = OutcomeValidationFailed
		return r.finish(result, err)
	}

	_, err := r.Store.Settle(ctx, store.SettleParams{
		CartID:               cart.ID,
		Gateway:              r.Gateway,
		GatewayTransactionID: n.TransactionID(),
		Amount:               cart.Total,
		Currency:             cart.Currency,
		ResultCode:           n.ResultCode(),
		ResultDescription:    n.ResultDescription(),
		PaymentBrand:         n.PaymentBrand(),
	})
	switch {
	case errors.Is(err, hyperpay.ErrDuplicateTransaction):
		r.Audit.Record(ctx, audit.ActionDuplicateTransaction, cart.ID, map[string]any{
			"transaction_id": n.TransactionID(),
		})
		result.Outcome = OutcomeDuplicate
		return r.finish(result, nil)
	case err != nil:
		var notSettleable store.ErrCartNotSettleable
		if errors.As(err, &notSettleable) {
			result.Outcome = OutcomeInvalidCartState
			return r.finish(result, nil)
		}
		r.Audit.Record(ctx, audit.ActionTransactionRolledBack, cart.ID, map[string]any{
			"transaction_id": n.TransactionID(),
			"reason":         err.Error(),
		})
		return result, fmt.Errorf("settle cart %s: %w", cart.ID, err)
	}

	if err := r.Fulfiller.EnqueueFulfillment(ctx, cart.ID); err != nil {
		// Settlement already committed; fulfillment is retried by ops, not
		// by failing the notification.
		r.Logger.Error().Err(err).Str("cart_id", cart.ID).Msg("enqueue fulfillment failed")
	}
	r.Logger.Info().
		Str("cart_id", cart.ID).
		Str("transaction_id", n.TransactionID()).
		Msg("cart settled")
	result.Outcome = OutcomePaid
	return r.finish(result, nil)
}

func (r *Reconciler) finish(result Result, err error) (Result, error) {
	if obs.ReconciliationsTotal != nil {
		obs.ReconciliationsTotal.WithLabelValues(result.Outcome.String()).Inc()
	}
	return result, err
}
