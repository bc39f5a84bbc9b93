package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
	"github.com/zeitlabs/payments-hyperpay/internal/payment"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

type stubGateway struct {
	notification hyperpay.Notification
	err          error
	checkout     hyperpay.CheckoutSession
	checkoutErr  error
	lastRequest  hyperpay.CheckoutRequest
}

func (g *stubGateway) CreateCheckout(_ context.Context, req hyperpay.CheckoutRequest) (hyperpay.CheckoutSession, error) {
	g.lastRequest = req
	return g.checkout, g.checkoutErr
}

func (g *stubGateway) VerifyCheckoutStatus(context.Context, string, string, string) (hyperpay.Notification, error) {
	return g.notification, g.err
}

func newStatusHandler(st *memStore, gw *stubGateway) *payment.StatusHandler {
	return &payment.StatusHandler{
		Gateway: gw,
		Store:   st,
		Recon:   newReconciler(st, &stubAuditor{}, &stubFulfiller{}),
		Audit:   &stubAuditor{},
		Logger:  zerolog.Nop(),
	}
}

func getStatus(h *payment.StatusHandler, params map[string]string) *httptest.ResponseRecorder {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/hyperpay/status?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func allParams() map[string]string {
	return map[string]string{"merchant_reference": "zl-1-42", "checkout_id": "chk-1", "payment_method": "VISA"}
}

func TestStatusMissingParamsNamed(t *testing.T) {
	h := newStatusHandler(newMemStore(), &stubGateway{})

	rec := getStatus(h, map[string]string{"merchant_reference": "zl-1-42"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "checkout_id")
	require.Contains(t, rec.Body.String(), "payment_method")
	require.NotContains(t, rec.Body.String(), `"merchant_reference"`)
}

func TestStatusUnknownCart(t *testing.T) {
	h := newStatusHandler(newMemStore(), &stubGateway{})
	rec := getStatus(h, allParams())
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusMalformedReference(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"))
	h := newStatusHandler(st, &stubGateway{})

	params := allParams()
	params["merchant_reference"] = "other-1-42"
	rec := getStatus(h, params)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusSettlesAndReportsPaid(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"))
	gw := &stubGateway{notification: successNotification("42", "tx-1", "100.00")}
	h := newStatusHandler(st, gw)

	rec := getStatus(h, allParams())
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "paid", body["status"])
	require.Equal(t, "tx-1", body["transaction_id"])
	require.Equal(t, "100.00", body["amount"])
	require.Equal(t, store.CartPaid, st.cartStatus("42"))
}

func TestStatusAlreadyPaidSkipsGateway(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"))
	_, err := newReconciler(st, &stubAuditor{}, &stubFulfiller{}).
		Reconcile(context.Background(), successNotification("42", "tx-1", "100.00"))
	require.NoError(t, err)

	gw := &stubGateway{err: hyperpay.ErrGateway}
	h := newStatusHandler(st, gw)

	rec := getStatus(h, allParams())
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusPaidTransactionMismatch(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"))
	_, err := newReconciler(st, &stubAuditor{}, &stubFulfiller{}).
		Reconcile(context.Background(), successNotification("42", "tx-1", "100.00"))
	require.NoError(t, err)

	h := newStatusHandler(st, &stubGateway{})
	params := allParams()
	params["transaction_id"] = "tx-other"

	rec := getStatus(h, params)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "transaction_mismatch")
}

func TestStatusPendingAnswers202(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"))
	n := successNotification("42", "tx-1", "100.00")
	n["result"] = map[string]any{"code": "000.200.100"}
	h := newStatusHandler(st, &stubGateway{notification: n})

	rec := getStatus(h, allParams())
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestStatusRejectedAnswers400(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"))
	n := successNotification("42", "tx-1", "100.00")
	n["result"] = map[string]any{"code": "800.100.153"}
	h := newStatusHandler(st, &stubGateway{notification: n})

	rec := getStatus(h, allParams())
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusReferenceMismatch(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"), processingCart("43", "50.00"))
	n := successNotification("43", "tx-1", "50.00")
	h := newStatusHandler(st, &stubGateway{notification: n})

	rec := getStatus(h, allParams())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "reference_mismatch")
}

func TestStatusGatewayDown(t *testing.T) {
	st := newMemStore(processingCart("42", "100.00"))
	h := newStatusHandler(st, &stubGateway{err: hyperpay.ErrGateway})

	rec := getStatus(h, allParams())
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
