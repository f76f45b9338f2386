package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/payment"
	"github.com/iliyamo/festival-registration/internal/service"
)

// Payments is the payment workflow used by PaymentHandler.
type Payments interface {
	CreateCheckout(ctx context.Context, in service.CheckoutInput) (payment.CheckoutSession, error)
	CreateIntent(ctx context.Context, in service.IntentInput) (payment.Intent, error)
	Verify(ctx context.Context, id string) (service.VerifyResult, error)
	Prices() model.PriceList
}

// PaymentHandler exposes checkout creation, embedded intents, return
// verification and the public price list.
type PaymentHandler struct {
	svc Payments
}

// NewPaymentHandler panics on a nil service.
func NewPaymentHandler(svc Payments) *PaymentHandler {
	if svc == nil {
		panic("nil payments")
	}
	return &PaymentHandler{svc: svc}
}

type checkoutReq struct {
	RegistrationID uint64 `json:"registration_id"`
	MealAddOn      *bool  `json:"pasta_party,omitempty"`
	MealCount      *int   `json:"conteggio_pastaparty,omitempty"`
}

type intentReq struct {
	RegistrationID uint64 `json:"registration_id"`
	ReceiptEmail   string `json:"receipt_email,omitempty"`
}

// paymentError maps workflow errors onto HTTP statuses.  Anything not
// recognised is a processor failure.
func paymentError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrRegistrationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "iscrizione non trovata"})
	case errors.Is(err, service.ErrAlreadyPaid):
		return c.JSON(http.StatusConflict, echo.Map{"error": "iscrizione già pagata"})
	case errors.Is(err, service.ErrSelectionMismatch):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "la selezione non corrisponde all'iscrizione"})
	case errors.Is(err, service.ErrNotBillable):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "iscrizione incompleta, impossibile calcolare l'importo"})
	}
	log.Printf("payment: processor error: %v", err)
	return c.JSON(http.StatusBadGateway, echo.Map{"error": "errore del servizio di pagamento, riprova"})
}

// Checkout handles POST /v1/checkout.
func (h *PaymentHandler) Checkout(c echo.Context) error {
	var req checkoutReq
	if err := c.Bind(&req); err != nil || req.RegistrationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "registration_id obbligatorio"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 20*time.Second)
	defer cancel()

	sess, err := h.svc.CreateCheckout(ctx, service.CheckoutInput{
		RegistrationID: req.RegistrationID,
		MealAddOn:      req.MealAddOn,
		MealCount:      req.MealCount,
	})
	if err != nil {
		return paymentError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": sess.ID, "url": sess.URL})
}

// Intent handles POST /v1/payment-intents.
func (h *PaymentHandler) Intent(c echo.Context) error {
	var req intentReq
	if err := c.Bind(&req); err != nil || req.RegistrationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "registration_id obbligatorio"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 20*time.Second)
	defer cancel()

	in, err := h.svc.CreateIntent(ctx, service.IntentInput{
		RegistrationID: req.RegistrationID,
		ReceiptEmail:   strings.TrimSpace(req.ReceiptEmail),
	})
	if err != nil {
		return paymentError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"client_secret":     in.ClientSecret,
		"payment_intent_id": in.ID,
		"amount":            in.Amount,
		"currency":          in.Currency,
	})
}

// Verify handles GET /v1/payments/verify?id=.  It is read-only.
func (h *PaymentHandler) Verify(c echo.Context) error {
	id := strings.TrimSpace(c.QueryParam("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id obbligatorio"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	res, err := h.svc.Verify(ctx, id)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidPaymentID) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "id di pagamento non valido"})
		}
		log.Printf("payment: verify %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verifica del pagamento non riuscita"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":             res.Status.Status,
		"payment_status":     res.PaymentStatus,
		"amount":             res.Amount,
		"currency":           res.Currency,
		"fulfillment_queued": res.FulfillmentQueued,
	})
}

// Pricing handles GET /v1/pricing.
func (h *PaymentHandler) Pricing(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Prices())
}
