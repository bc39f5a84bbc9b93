package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/zeitlabs/payments-hyperpay/internal/common"
	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

var validate = validator.New()

type payRequest struct {
	CartID        string `json:"cart_id" validate:"required"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=VISA MASTER MADA STC_PAY"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
}

// PayHandler opens checkout sessions on behalf of authenticated shoppers.
type PayHandler struct {
	Checkout *CheckoutService
	Logger   zerolog.Logger
}

// Handle serves POST with a JSON payRequest body.
func (h *PayHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "validation_failed", "invalid request", err.Error())
		return
	}

	intent, err := h.Checkout.Initiate(r.Context(), req.CartID, req.PaymentMethod, req.CustomerEmail)
	switch {
	case errors.Is(err, store.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "not_found", "cart not found", nil)
	case errors.Is(err, ErrCartNotPayable):
		common.JSONError(w, http.StatusConflict, "cart_not_payable", "cart cannot start a checkout", nil)
	case errors.Is(err, hyperpay.ErrGateway):
		h.Logger.Error().Err(err).Str("cart_id", req.CartID).Msg("checkout initiation failed at gateway")
		common.JSONError(w, http.StatusBadGateway, "gateway_error", "payment processor unavailable", nil)
	case err != nil:
		h.Logger.Error().Err(err).Str("cart_id", req.CartID).Msg("checkout initiation failed")
		common.JSONError(w, http.StatusInternalServerError, "internal", "checkout initiation failed", nil)
	default:
		common.JSON(w, http.StatusCreated, intent)
	}
}
