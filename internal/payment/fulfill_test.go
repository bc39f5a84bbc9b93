package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zeitlabs/payments-hyperpay/internal/audit"
	"github.com/zeitlabs/payments-hyperpay/internal/payment"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

func fulfillTask(t *testing.T, cartID string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"cart_id": cartID})
	require.NoError(t, err)
	return asynq.NewTask(payment.TaskCartFulfill, payload)
}

func TestHandleCartFulfill(t *testing.T) {
	cart := processingCart("42", "100.00")
	cart.Status = store.CartPaid
	st := newMemStore(cart)
	aud := &stubAuditor{}
	w := &payment.FulfillmentWorker{Store: st, Audit: aud, Logger: zerolog.Nop()}

	require.NoError(t, w.HandleCartFulfill(context.Background(), fulfillTask(t, "42")))
	require.True(t, st.fulfilled["42"])
	require.Contains(t, aud.recorded(), audit.ActionCartFulfilled)
}

func TestHandleCartFulfillIdempotent(t *testing.T) {
	cart := processingCart("42", "100.00")
	cart.Status = store.CartPaid
	st := newMemStore(cart)
	aud := &stubAuditor{}
	w := &payment.FulfillmentWorker{Store: st, Audit: aud, Logger: zerolog.Nop()}

	require.NoError(t, w.HandleCartFulfill(context.Background(), fulfillTask(t, "42")))
	require.NoError(t, w.HandleCartFulfill(context.Background(), fulfillTask(t, "42")))
	require.Len(t, aud.recorded(), 1)
}

func TestHandleCartFulfillMissingCartSkipsRetry(t *testing.T) {
	w := &payment.FulfillmentWorker{Store: newMemStore(), Audit: &stubAuditor{}, Logger: zerolog.Nop()}

	err := w.HandleCartFulfill(context.Background(), fulfillTask(t, "missing"))
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleCartFulfillUnpaidCartSkipsRetry(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"))
	w := &payment.FulfillmentWorker{Store: st, Audit: &stubAuditor{}, Logger: zerolog.Nop()}

	err := w.HandleCartFulfill(context.Background(), fulfillTask(t, "42"))
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
	require.False(t, st.fulfilled["42"])
}

func TestHandleCartFulfillBadPayloadSkipsRetry(t *testing.T) {
	w := &payment.FulfillmentWorker{Store: newMemStore(), Audit: &stubAuditor{}, Logger: zerolog.Nop()}

	err := w.HandleCartFulfill(context.Background(), asynq.NewTask(payment.TaskCartFulfill, []byte("{")))
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}
