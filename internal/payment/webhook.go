package payment

import (
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zeitlabs/payments-hyperpay/internal/common"
	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
)

// WebhookHandler receives asynchronous payment notifications from the
// processor. The contract with the processor is acknowledgement-oriented:
// everything the service could tie to a cart answers 200 so the processor
// stops redelivering, and only an unresolvable merchant reference answers
// 400.
type WebhookHandler struct {
	Reconciler *Reconciler
	Audit      Auditor
	Redis      redis.UniversalClient
	ReplayTTL  time.Duration
	Logger     zerolog.Logger
}

// Handle processes one webhook delivery. The raw payload is audited before
// anything interprets it; a redis SETNX keyed on the transaction id and
// result code then short-circuits redeliveries of the exact same
// notification before any database work.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	n, err := hyperpay.DecodeNotification(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "bad_request", "unreadable notification body", nil)
		return
	}

	h.Logger.Debug().
		Str("remote_ip", common.ClientIP(r)).
		Str("transaction_id", n.TransactionID()).
		Str("result_code", n.ResultCode()).
		Msg("webhook received")

	ctx := r.Context()
	h.Audit.Record(ctx, hyperpay.ActionReceivedResponse, "", map[string]any{
		"source":   "webhook",
		"response": map[string]any(n),
	})
	replayKey := h.replayKey(n)
	if replayKey != "" {
		fresh, err := h.Redis.SetNX(ctx, replayKey, 1, h.ReplayTTL).Result()
		if err != nil {
			// Redis down degrades to database-level dedup, not to rejection.
			h.Logger.Warn().Err(err).Msg("webhook replay guard unavailable")
		} else if !fresh {
			h.Logger.Debug().
				Str("transaction_id", n.TransactionID()).
				Msg("webhook replay suppressed")
			common.JSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
	}

	result, err := h.Reconciler.Reconcile(ctx, n)
	switch {
	case result.Outcome == OutcomeInvalidReference:
		common.JSONError(w, http.StatusBadRequest, "invalid_reference",
			"merchant reference does not resolve to a cart", nil)
		return
	case err != nil && !errors.Is(err, hyperpay.ErrGateway):
		// Transient failure: release the replay key so the processor's
		// redelivery gets another attempt.
		if replayKey != "" {
			h.Redis.Del(ctx, replayKey)
		}
		h.Logger.Error().Err(err).
			Str("cart_id", result.CartID).
			Msg("webhook reconciliation failed")
		common.JSONError(w, http.StatusInternalServerError, "internal", "reconciliation failed", nil)
		return
	}

	common.JSON(w, http.StatusOK, map[string]any{
		"status":  result.Outcome.String(),
		"cart_id": result.CartID,
	})
}

func (h *WebhookHandler) replayKey(n hyperpay.Notification) string {
	if n.TransactionID() == "" {
		return ""
	}
	return "webhook:hyperpay:" + common.Sha256Hex(n.TransactionID()+"|"+n.ResultCode())
}
