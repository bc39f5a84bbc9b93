package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

// ErrCartNotPayable is returned when a checkout is requested for a cart that
// is already paid or cancelled.
var ErrCartNotPayable = errors.New("payment: cart not payable")

// GatewayClient is the processor surface the payment services need.
type GatewayClient interface {
	CreateCheckout(ctx context.Context, req hyperpay.CheckoutRequest) (hyperpay.CheckoutSession, error)
	VerifyCheckoutStatus(ctx context.Context, cartID, checkoutID, paymentMethod string) (hyperpay.Notification, error)
}

// CheckoutStore is the persistence surface for opening checkouts.
type CheckoutStore interface {
	GetCart(ctx context.Context, id string) (store.Cart, error)
	ListCartItems(ctx context.Context, cartID string) ([]store.CartItem, error)
	AttachCheckout(ctx context.Context, id, checkoutID, paymentMethod string) error
}

// CheckoutIntent is everything the browser needs to render the payment widget.
type CheckoutIntent struct {
	CheckoutID     string `json:"checkout_id"`
	NonceID        string `json:"nonce_id"`
	Integrity      string `json:"integrity"`
	PaymentPageURL string `json:"payment_page_url"`
	ReturnURL      string `json:"return_url"`
}

// CheckoutService opens processor checkout sessions for carts.
type CheckoutService struct {
	Gateway       GatewayClient
	Store         CheckoutStore
	Refs          hyperpay.ReferenceScheme
	Currency      string
	WidgetURL     string
	PublicBaseURL string
	Logger        zerolog.Logger
}

// Initiate opens a checkout for the cart and records the session handle. A
// cart may re-initiate while NEW or PROCESSING; the latest checkout id wins.
func (s *CheckoutService) Initiate(ctx context.Context, cartID, paymentMethod, customerEmail string) (CheckoutIntent, error) {
	ctx, span := otel.Tracer("payment").Start(ctx, "payment.InitiateCheckout")
	defer span.End()
	span.SetAttributes(attribute.String("cart_id", cartID))

	cart, err := s.Store.GetCart(ctx, cartID)
	if err != nil {
		return CheckoutIntent{}, err
	}
	switch cart.Status {
	case store.CartNew, store.CartProcessing, store.CartPending:
	default:
		return CheckoutIntent{}, fmt.Errorf("%w: cart %s is %s", ErrCartNotPayable, cart.ID, cart.Status)
	}

	items, err := s.Store.ListCartItems(ctx, cartID)
	if err != nil {
		return CheckoutIntent{}, fmt.Errorf("list cart items: %w", err)
	}
	lines := make([]hyperpay.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, hyperpay.LineItem{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}

	reference := s.Refs.Build(cartID)
	returnURL := s.returnURL(reference, paymentMethod)
	session, err := s.Gateway.CreateCheckout(ctx, hyperpay.CheckoutRequest{
		Amount:            cart.Total,
		Currency:          s.Currency,
		MerchantReference: reference,
		PaymentMethod:     paymentMethod,
		CustomerEmail:     customerEmail,
		ReturnURL:         returnURL,
		Items:             lines,
	})
	if err != nil {
		return CheckoutIntent{}, err
	}

	if err := s.Store.AttachCheckout(ctx, cartID, session.CheckoutID, paymentMethod); err != nil {
		return CheckoutIntent{}, fmt.Errorf("attach checkout: %w", err)
	}

	s.Logger.Info().
		Str("cart_id", cartID).
		Str("checkout_id", session.CheckoutID).
		Str("payment_method", paymentMethod).
		Msg("checkout initiated")

	return CheckoutIntent{
		CheckoutID:     session.CheckoutID,
		NonceID:        session.NonceID,
		Integrity:      session.Integrity,
		PaymentPageURL: s.WidgetURL + "?checkoutId=" + url.QueryEscape(session.CheckoutID),
		ReturnURL:      returnURL,
	}, nil
}

func (s *CheckoutService) returnURL(reference, paymentMethod string) string {
	q := url.Values{}
	q.Set("merchant_reference", reference)
	q.Set("payment_method", paymentMethod)
	return s.PublicBaseURL + "/payments/hyperpay/return?" + q.Encode()
}
