package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zeitlabs/payments-hyperpay/internal/audit"
	"github.com/zeitlabs/payments-hyperpay/internal/common"
	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

// StatusStore is the persistence surface for the status endpoint.
type StatusStore interface {
	GetCart(ctx context.Context, id string) (store.Cart, error)
	GetInvoiceForCart(ctx context.Context, cartID string) (store.Invoice, string, error)
}

// StatusHandler answers the browser's post-payment polling. It pulls the
// authoritative outcome from the processor's status API, reconciles it, and
// reports where the cart landed: 200 paid, 202 still pending, 400 failed or
// inconsistent, 404 unknown cart.
type StatusHandler struct {
	Gateway GatewayClient
	Store   StatusStore
	Recon   *Reconciler
	Audit   Auditor
	Logger  zerolog.Logger
}

// Handle serves GET with merchant_reference, checkout_id and payment_method
// query parameters. An optional transaction_id is cross-checked against the
// settled transaction when the cart is already paid.
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reference := strings.TrimSpace(q.Get("merchant_reference"))
	checkoutID := strings.TrimSpace(q.Get("checkout_id"))
	paymentMethod := strings.TrimSpace(q.Get("payment_method"))
	transactionID := strings.TrimSpace(q.Get("transaction_id"))

	var missing []string
	if reference == "" {
		missing = append(missing, "merchant_reference")
	}
	if checkoutID == "" {
		missing = append(missing, "checkout_id")
	}
	if paymentMethod == "" {
		missing = append(missing, "payment_method")
	}
	if len(missing) > 0 {
		common.JSONError(w, http.StatusBadRequest, "missing_parameters",
			"required query parameters absent", map[string]any{"missing": missing})
		return
	}

	ctx := r.Context()
	cartID, err := h.Recon.Refs.Parse(reference)
	if err != nil {
		h.Audit.Record(ctx, audit.ActionResponseInvalidCart, "", map[string]any{
			"merchant_reference": reference,
			"reason":             "status poll with malformed reference",
		})
		common.JSONError(w, http.StatusNotFound, "not_found", "cart not found", nil)
		return
	}

	cart, err := h.Store.GetCart(ctx, cartID)
	if errors.Is(err, store.ErrNotFound) {
		h.Audit.Record(ctx, audit.ActionResponseInvalidCart, cartID, map[string]any{
			"checkout_id": checkoutID,
			"reason":      "status poll for unknown cart",
		})
		common.JSONError(w, http.StatusNotFound, "not_found", "cart not found", nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "internal", "cart lookup failed", nil)
		return
	}

	// Already settled: answer from local state without calling the processor.
	if cart.Status == store.CartPaid {
		h.respondPaid(w, r, cart.ID, transactionID)
		return
	}
	if cart.Status == store.CartCancelled {
		common.JSONError(w, http.StatusBadRequest, "payment_failed", "payment was rejected", nil)
		return
	}

	n, err := h.Gateway.VerifyCheckoutStatus(ctx, cartID, checkoutID, paymentMethod)
	if err != nil {
		h.Logger.Error().Err(err).
			Str("cart_id", cartID).
			Str("checkout_id", checkoutID).
			Msg("status verification failed")
		common.JSONError(w, http.StatusBadGateway, "gateway_error", "payment processor unavailable", nil)
		return
	}

	if n.MerchantReference() != reference {
		h.Audit.Record(ctx, audit.ActionResponseInvalidCart, cartID, map[string]any{
			"merchant_reference": n.MerchantReference(),
			"reason":             "reference does not match polled cart",
		})
		common.JSONError(w, http.StatusBadRequest, "reference_mismatch",
			"processor response does not belong to this cart", nil)
		return
	}

	result, err := h.Recon.Reconcile(ctx, n)
	if err != nil && !errors.Is(err, hyperpay.ErrGateway) {
		common.JSONError(w, http.StatusInternalServerError, "internal", "reconciliation failed", nil)
		return
	}

	if transactionID == "" {
		transactionID = result.TransactionID
	}

	switch result.Outcome {
	case OutcomePaid, OutcomeDuplicate:
		h.respondPaid(w, r, cartID, transactionID)
	case OutcomePending:
		common.JSON(w, http.StatusAccepted, map[string]any{"status": "pending"})
	case OutcomeInvalidReference:
		common.JSONError(w, http.StatusNotFound, "not_found", "cart not found", nil)
	default:
		common.JSONError(w, http.StatusBadRequest, "payment_failed", "payment was not completed", nil)
	}
}

// respondPaid reports a settled cart. When the poll carried a transaction id
// it must match the settled one; a different id on a paid cart is reported as
// a conflict rather than success.
func (h *StatusHandler) respondPaid(w http.ResponseWriter, r *http.Request, cartID, transactionID string) {
	invoice, gatewayTxID, err := h.Store.GetInvoiceForCart(r.Context(), cartID)
	if errors.Is(err, store.ErrNotFound) {
		common.JSON(w, http.StatusAccepted, map[string]any{"status": "pending"})
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "internal", "invoice lookup failed", nil)
		return
	}
	if transactionID != "" && transactionID != gatewayTxID {
		common.JSONError(w, http.StatusBadRequest, "transaction_mismatch",
			"cart was settled by a different transaction", map[string]any{
				"settled_transaction_id": gatewayTxID,
			})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"status":         "paid",
		"cart_id":        cartID,
		"invoice_id":     invoice.ID,
		"transaction_id": gatewayTxID,
		"amount":         invoice.Amount.String(),
		"currency":       invoice.Currency,
	})
}
