package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/festival-registration/internal/payment"
)

// maxWebhookBody bounds the raw body read before signature verification.
// Processor events carry the full object and can exceed 100KB.
const maxWebhookBody = 1 << 20

// EventApplier applies a verified processor event and returns its outcome.
type EventApplier interface {
	Apply(ctx context.Context, ev payment.Event) string
}

// WebhookHandler verifies and reconciles processor notifications.
type WebhookHandler struct {
	proc payment.Processor
	rec  EventApplier
}

// NewWebhookHandler panics on nil deps.
func NewWebhookHandler(proc payment.Processor, rec EventApplier) *WebhookHandler {
	if proc == nil || rec == nil {
		panic("nil dependency")
	}
	return &WebhookHandler{proc: proc, rec: rec}
}

// Receive handles POST /v1/webhooks/stripe.  The signature is checked over
// the exact raw bytes; once verified the event is always acknowledged with
// 200 so the processor does not redeliver events that failed downstream.
func (h *WebhookHandler) Receive(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	if len(payload) > maxWebhookBody {
		log.Printf("webhook: rejected body over %d bytes", maxWebhookBody)
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "body too large"})
	}
	ev, err := h.proc.ParseWebhook(payload, c.Request().Header)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			log.Printf("webhook: rejected: %v", err)
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
		}
		log.Printf("webhook: undecodable event: %v", err)
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	// detach from the request so a slow CMS does not cut the update short
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 30*time.Second)
	defer cancel()
	outcome := h.rec.Apply(ctx, ev)
	return c.JSON(http.StatusOK, echo.Map{"received": true, "outcome": outcome})
}
