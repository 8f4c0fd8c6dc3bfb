package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"github.com/feastly/settlement/internal/domain"
	"github.com/feastly/settlement/internal/money"
)

// Stripe caps webhook payloads well below this; anything larger is bogus.
const maxWebhookBody = 65536

// StripeWebhook receives payment events from Stripe. Signature verification
// rejects forged payloads; processing errors return non-2xx so Stripe
// redelivers, which is safe because recording is idempotent per order.
func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read payload: "+err.Error())
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		writeError(w, http.StatusBadRequest, "webhook signature verification failed")
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		h.handlePaymentSucceeded(w, event)
	case "charge.refunded":
		h.handleChargeRefunded(w, event)
	default:
		h.logger.Debug("unhandled stripe event",
			zap.String("type", string(event.Type)),
			zap.String("event_id", event.ID))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (h *Handlers) handlePaymentSucceeded(w http.ResponseWriter, event stripe.Event) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		writeError(w, http.StatusBadRequest, "unmarshal payment intent: "+err.Error())
		return
	}

	orderID := intent.Metadata["order_id"]
	if orderID == "" {
		// Not an order payment (e.g. a subscription charge); ack so Stripe
		// stops redelivering.
		h.logger.Debug("payment intent without order metadata",
			zap.String("intent_id", intent.ID))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	txn, err := h.recorder.HandlePaymentConfirmed(orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			// The order projection may lag the webhook; non-2xx makes Stripe
			// retry later.
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("settlement recording failed",
			zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "settlement recording failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "recorded",
		"transaction_id": txn.ID,
	})
}

func (h *Handlers) handleChargeRefunded(w http.ResponseWriter, event stripe.Event) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		writeError(w, http.StatusBadRequest, "unmarshal charge: "+err.Error())
		return
	}

	orderID := charge.Metadata["order_id"]
	if orderID == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	// AmountRefunded on the charge is cumulative; the individual refund
	// carries the delta and its id keys idempotency.
	if charge.Refunds == nil || len(charge.Refunds.Data) == 0 {
		writeError(w, http.StatusBadRequest, "charge.refunded event without refund data")
		return
	}
	refund := charge.Refunds.Data[0]

	amount := money.FromCents(refund.Amount)
	txn, err := h.recorder.RecordRefund(orderID, amount, refund.ID)
	if err != nil {
		h.logger.Error("refund recording failed",
			zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "refund recording failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "recorded",
		"transaction_id": txn.ID,
	})
}
