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
	"github.com/iliyamo/festival-registration/internal/service"
)

// Registrar persists finalized registrations.
type Registrar interface {
	Submit(ctx context.Context, in service.SubmitInput) (service.SubmitResult, error)
}

// RegistrationHandler serves POST /v1/registrations.
type RegistrationHandler struct {
	svc Registrar
}

// NewRegistrationHandler panics on a nil service.
func NewRegistrationHandler(svc Registrar) *RegistrationHandler {
	if svc == nil {
		panic("nil registrar")
	}
	return &RegistrationHandler{svc: svc}
}

// submitReq is the wizard's final snapshot.  WaiverPDF arrives base64
// encoded and is decoded by encoding/json.
type submitReq struct {
	Registration model.Registration `json:"registration"`
	WaiverPDF    []byte             `json:"waiver_pdf,omitempty"`
	IP           string             `json:"ip,omitempty"`
	UserAgent    string             `json:"user_agent,omitempty"`
}

type submitResp struct {
	ID             uint64              `json:"id"`
	Code           string              `json:"codiceRegistrazione"`
	Status         model.PaymentStatus `json:"stato_pagamento"`
	WaiverAttached bool                `json:"liberatoria_allegata"`
}

// clientIP prefers the address reported by the client lookup, then the
// request address, then the sentinel.
func clientIP(c echo.Context, reported string) string {
	if ip := strings.TrimSpace(reported); ip != "" && ip != model.UnknownIP {
		return ip
	}
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return model.UnknownIP
}

// Submit stores the registration with status pending.
func (h *RegistrationHandler) Submit(c echo.Context) error {
	var req submitReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ua := req.UserAgent
	if ua == "" {
		ua = c.Request().UserAgent()
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 20*time.Second)
	defer cancel()

	res, err := h.svc.Submit(ctx, service.SubmitInput{
		Registration: req.Registration,
		WaiverPDF:    req.WaiverPDF,
		IP:           clientIP(c, req.IP),
		UserAgent:    ua,
	})
	if err != nil {
		var verrs model.ValidationErrors
		if errors.As(err, &verrs) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "dati non validi", "fields": verrs})
		}
		log.Printf("registration: submit failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "salvataggio dell'iscrizione non riuscito, riprova"})
	}
	return c.JSON(http.StatusCreated, submitResp{
		ID:             res.ID,
		Code:           res.Code,
		Status:         res.Status,
		WaiverAttached: res.WaiverAttached,
	})
}
