package hyperpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zeitlabs/payments-hyperpay/internal/obs"
	"github.com/zeitlabs/payments-hyperpay/internal/resilience"
)

const (
	tokenPath    = "/oauth2/v1/token"
	checkoutPath = "/payment-gateway/v1/checkout"
	statusPath   = "/payment-gateway/v1/checkout/status"

	// tokenRefreshBuffer is subtracted from the advertised token lifetime so
	// a token is never presented within its final seconds.
	tokenRefreshBuffer = 30 * time.Second

	// checkoutCreatedCode is the only result code that means a checkout
	// session was opened.
	checkoutCreatedCode = "000.200.100"

	// ActionReceivedResponse is audited before any status response is
	// interpreted, so even unusable payloads leave a trail.
	ActionReceivedResponse = "RECEIVED_RESPONSE"
)

// processedPattern accepts status responses for transactions the processor
// has finished handling, successfully or not. Anything outside it means the
// status API itself misbehaved.
var processedPattern = regexp.MustCompile(`^(000\.000\.|000\.100\.1|000\.[36]|000\.400\.[1][12]0)`)

// Auditor records gateway interactions for the reconciliation trail.
type Auditor interface {
	Record(ctx context.Context, action string, cartID string, details map[string]any)
}

// Credentials identifies the merchant to the processor's OAuth endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// LineItem is one cart row forwarded to the processor when opening a checkout.
type LineItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// CheckoutRequest carries everything the processor needs to open a session.
type CheckoutRequest struct {
	Amount            decimal.Decimal
	Currency          string
	MerchantReference string
	PaymentMethod     string
	CustomerEmail     string
	ReturnURL         string
	Items             []LineItem
}

// CheckoutSession is the processor's handle for a freshly opened checkout.
// NonceID and Integrity feed the browser widget.
type CheckoutSession struct {
	CheckoutID string
	NonceID    string
	Integrity  string
}

// Client talks to the HyperPay processor API. Access tokens are cached and
// refreshed transparently; all outbound calls go through the resilient HTTP
// wrapper so retries and the circuit breaker apply uniformly.
type Client struct {
	BaseURL string
	Creds   Credentials
	HTTP    resilience.HTTPClient
	Auditor Auditor
	Logger  zerolog.Logger
	Now     func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// CreateCheckout opens a checkout session for a cart. Any result code other
// than the session-created code fails with ErrGateway even on HTTP 200.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	ctx, span := otel.Tracer("hyperpay").Start(ctx, "hyperpay.CreateCheckout")
	defer span.End()
	span.SetAttributes(attribute.String("merchant_reference", req.MerchantReference))

	token, err := c.ensureToken(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token")
		countGatewayRequest("create_checkout", "token_error")
		return CheckoutSession{}, err
	}

	payload := map[string]any{
		"amount":                  req.Amount.StringFixed(2),
		"currency":                req.Currency,
		"merchant_transaction_id": req.MerchantReference,
		"payment_type":            req.PaymentMethod,
		"customer_email":          req.CustomerEmail,
		"return_url":              req.ReturnURL,
		"items":                   req.Items,
	}
	body, err := c.postJSON(ctx, c.BaseURL+checkoutPath, token, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request")
		countGatewayRequest("create_checkout", "transport_error")
		return CheckoutSession{}, fmt.Errorf("%w: create checkout: %v", ErrGateway, err)
	}

	code := body.ResultCode()
	if code != checkoutCreatedCode {
		c.Logger.Error().
			Str("result_code", code).
			Str("result_description", body.ResultDescription()).
			Str("merchant_reference", req.MerchantReference).
			Msg("checkout not created")
		countGatewayRequest("create_checkout", "rejected")
		return CheckoutSession{}, fmt.Errorf("%w: checkout rejected with code %q", ErrGateway, code)
	}

	session := CheckoutSession{
		CheckoutID: body.stringKey("id"),
		NonceID:    body.stringKey("ndc"),
		Integrity:  body.stringKey("integrity"),
	}
	if session.CheckoutID == "" {
		countGatewayRequest("create_checkout", "bad_response")
		return CheckoutSession{}, fmt.Errorf("%w: checkout response has no id", ErrBadResponse)
	}
	countGatewayRequest("create_checkout", "ok")
	c.Logger.Info().
		Str("checkout_id", session.CheckoutID).
		Str("merchant_reference", req.MerchantReference).
		Msg("checkout created")
	return session, nil
}

// VerifyCheckoutStatus fetches the final status of a checkout. The raw
// response is audited before interpretation. Responses outside the processed
// code space fail with ErrGateway; a payload without a result code or
// transaction id fails with ErrBadResponse.
func (c *Client) VerifyCheckoutStatus(ctx context.Context, cartID, checkoutID, paymentMethod string) (Notification, error) {
	ctx, span := otel.Tracer("hyperpay").Start(ctx, "hyperpay.VerifyCheckoutStatus")
	defer span.End()
	span.SetAttributes(attribute.String("checkout_id", checkoutID))

	token, err := c.ensureToken(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token")
		countGatewayRequest("verify_status", "token_error")
		return nil, err
	}

	query := url.Values{}
	query.Set("checkout_id", checkoutID)
	query.Set("payment_method", paymentMethod)
	body, err := c.getJSON(ctx, c.BaseURL+statusPath+"?"+query.Encode(), token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request")
		countGatewayRequest("verify_status", "transport_error")
		return nil, fmt.Errorf("%w: verify status: %v", ErrGateway, err)
	}

	if c.Auditor != nil {
		c.Auditor.Record(ctx, ActionReceivedResponse, cartID, map[string]any{
			"checkout_id": checkoutID,
			"response":    map[string]any(body),
		})
	}

	code := body.ResultCode()
	if code == "" || body.TransactionID() == "" {
		countGatewayRequest("verify_status", "bad_response")
		return nil, fmt.Errorf("%w: status response missing result code or id", ErrBadResponse)
	}
	if !processedPattern.MatchString(code) {
		c.Logger.Error().
			Str("result_code", code).
			Str("checkout_id", checkoutID).
			Msg("status api returned unprocessed code")
		countGatewayRequest("verify_status", "unprocessed")
		return nil, fmt.Errorf("%w: status api returned code %q", ErrGateway, code)
	}
	countGatewayRequest("verify_status", "ok")
	return body, nil
}

// ensureToken returns a valid bearer token, fetching a fresh one when the
// cached token is absent or inside the refresh buffer. Callers racing on an
// expired token serialise on the mutex; only one hits the OAuth endpoint.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.accessToken != "" && now.Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "pay")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request: %v", ErrGateway, err)
	}
	req.SetBasicAuth(c.Creds.ClientID, c.Creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		countGatewayRequest("token", "transport_error")
		return "", fmt.Errorf("%w: token request: %v", ErrGateway, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		countGatewayRequest("token", "rejected")
		return "", fmt.Errorf("%w: token endpoint returned %s", ErrGateway, resp.Status)
	}

	var tok struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		countGatewayRequest("token", "bad_response")
		return "", fmt.Errorf("%w: decode token response: %v", ErrBadResponse, err)
	}
	if tok.AccessToken == "" {
		countGatewayRequest("token", "bad_response")
		return "", fmt.Errorf("%w: token response has no access_token", ErrBadResponse)
	}
	lifetime, err := tok.ExpiresIn.Int64()
	if err != nil || lifetime <= 0 {
		lifetime = 300
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = now.Add(time.Duration(lifetime)*time.Second - tokenRefreshBuffer)
	countGatewayRequest("token", "ok")
	c.Logger.Debug().Time("token_expiry", c.tokenExpiry).Msg("refreshed gateway token")
	return c.accessToken, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint, token string, payload any) (Notification, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return c.roundTrip(req)
}

func (c *Client) getJSON(ctx context.Context, endpoint, token string) (Notification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.roundTrip(req)
}

func (c *Client) roundTrip(req *http.Request) (Notification, error) {
	resp, err := c.HTTP.Do(req.Context(), req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	}
	return DecodeNotification(resp.Body)
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func countGatewayRequest(action, result string) {
	if obs.GatewayRequestsTotal == nil {
		return
	}
	obs.GatewayRequestsTotal.WithLabelValues(action, result).Inc()
}
