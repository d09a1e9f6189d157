package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"github.com/otiai10/jobtrack/internal/auth"
	"github.com/otiai10/jobtrack/internal/billing"
)

// maxWebhookBodyBytes bounds the Stripe payload read into memory
const maxWebhookBodyBytes = 64 << 10

// EventHandler applies verified billing events
type EventHandler interface {
	HandleEvent(ctx context.Context, event stripe.Event) (billing.Outcome, error)
}

// Ensure billing.Reconciler implements EventHandler
var _ EventHandler = (*billing.Reconciler)(nil)

// WebhookHandler handles POST /api/webhooks/stripe
type WebhookHandler struct {
	events EventHandler
	secret string
	logger *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(events EventHandler, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		events: events,
		secret: secret,
		logger: logger,
	}
}

// StripeWebhook verifies the signature of a Stripe event and reconciles it
// into the subscription and user stores
func (h *WebhookHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get(billing.SignatureHeader)
	if signature == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "missing Stripe-Signature header")
		return
	}

	event, err := billing.VerifyWebhookSignature(body, signature, h.secret)
	if err != nil {
		h.logger.Warn("rejected webhook", zap.Error(err))
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid webhook signature")
		return
	}

	outcome, err := h.events.HandleEvent(r.Context(), event)
	if err != nil {
		h.logger.Error("failed to reconcile billing event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, auth.CodeInternalError, "failed to process event")
		return
	}

	writeJSON(w, map[string]any{"received": true, "handled": outcome.Handled}, http.StatusOK)
}
