package payment_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
	"github.com/zeitlabs/payments-hyperpay/internal/payment"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

func newWebhookHandler(t *testing.T, st *memStore) (*payment.WebhookHandler, *stubAuditor, *stubFulfiller) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	aud := &stubAuditor{}
	ful := &stubFulfiller{}
	return &payment.WebhookHandler{
		Reconciler: newReconciler(st, aud, ful),
		Audit:      aud,
		Redis:      rdb,
		ReplayTTL:  time.Hour,
		Logger:     zerolog.Nop(),
	}, aud, ful
}

func postWebhook(t *testing.T, h *payment.WebhookHandler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/hyperpay", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestWebhookSettlesCart(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"))
	h, _, ful := newWebhookHandler(t, st)

	rec := postWebhook(t, h, successNotification("42", "tx-1", "100.00"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, store.CartPaid, st.cartStatus("42"))
	require.Equal(t, []string{"42"}, ful.enqueued())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "PAID", body["status"])
}

func TestWebhookReplaySuppressedByRedis(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"))
	h, _, ful := newWebhookHandler(t, st)

	n := successNotification("42", "tx-1", "100.00")
	require.Equal(t, http.StatusOK, postWebhook(t, h, n).Code)

	rec := postWebhook(t, h, n)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "duplicate", body["status"])
	require.Len(t, ful.enqueued(), 1)
}

func TestWebhookStatusChangeIsNotSuppressed(t *testing.T) {
	// A later notification for the same transaction with a different result
	// code is a new fact, not a replay.
	st := newMemStore(processingCart("42", "100.00"))
	h, _, _ := newWebhookHandler(t, st)

	pending := successNotification("42", "tx-1", "100.00")
	pending["result"] = map[string]any{"code": "000.200.100"}
	require.Equal(t, http.StatusOK, postWebhook(t, h, pending).Code)
	require.Equal(t, store.CartPending, st.cartStatus("42"))

	rec := postWebhook(t, h, successNotification("42", "tx-1", "100.00"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, store.CartPaid, st.cartStatus("42"))
}

func TestWebhookInvalidReferenceAnswers400(t *testing.T) {
	h, _, _ := newWebhookHandler(t, newMemStore())

	n := successNotification("42", "tx-1", "100.00")
	n["merchantTransactionId"] = "garbage"
	rec := postWebhook(t, h, n)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectedPaymentStillAnswers200(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"))
	h, _, _ := newWebhookHandler(t, st)

	n := successNotification("42", "tx-1", "100.00")
	n["result"] = map[string]any{"code": "800.100.153"}
	rec := postWebhook(t, h, n)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, store.CartCancelled, st.cartStatus("42"))
}

func TestWebhookAuditsReceivedResponseFirst(t *testing.T) {
	// Even a payload too broken to classify leaves a raw-response trail.
	st := newMemStore(processingCart("42", "100.00"))
	h, aud, _ := newWebhookHandler(t, st)

	rec := postWebhook(t, h, successNotification("42", "", "100.00"))
	require.Equal(t, http.StatusOK, rec.Code)

	recorded := aud.recorded()
	require.NotEmpty(t, recorded)
	require.Equal(t, hyperpay.ActionReceivedResponse, recorded[0])
}

func TestWebhookUnreadableBody(t *testing.T) {
	h, _, _ := newWebhookHandler(t, newMemStore())
	req := httptest.NewRequest(http.MethodPost, "/webhooks/hyperpay", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
