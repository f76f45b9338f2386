package handler

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/festival-registration/internal/export"
	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/utils"
)

// RoleAdmin is the only role issued by Login.
const RoleAdmin = "ADMIN"

// RegistrationLister reads registrations for the organiser views.
type RegistrationLister interface {
	List(ctx context.Context, status model.PaymentStatus) ([]model.Registration, error)
}

// AdminHandler authenticates organisers and serves the registration list
// and CSV export.
type AdminHandler struct {
	list         RegistrationLister
	passwordHash string
	secret       string
	ttlMin       int
}

// NewAdminHandler panics on a nil lister.  An empty passwordHash disables
// login.
func NewAdminHandler(list RegistrationLister, passwordHash, jwtSecret string, ttlMin int) *AdminHandler {
	if list == nil {
		panic("nil lister")
	}
	return &AdminHandler{list: list, passwordHash: passwordHash, secret: jwtSecret, ttlMin: ttlMin}
}

type loginReq struct {
	Password string `json:"password"`
}

// Login handles POST /v1/admin/login.
func (h *AdminHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password required"})
	}
	if h.passwordHash == "" || !utils.VerifyPassword(h.passwordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	tok, err := utils.NewAccessToken(h.secret, "admin", RoleAdmin, h.ttlMin)
	if err != nil {
		log.Printf("admin: sign token: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": tok.Token,
		"token_type":   "Bearer",
		"expires_at":   tok.Exp,
	})
}

func (h *AdminHandler) registrations(c echo.Context) ([]model.Registration, error) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 60*time.Second)
	defer cancel()
	return h.list.List(ctx, model.PaymentStatus(c.QueryParam("stato")))
}

// List handles GET /v1/admin/registrations?stato=.
func (h *AdminHandler) List(c echo.Context) error {
	regs, err := h.registrations(c)
	if err != nil {
		log.Printf("admin: list registrations: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "cms unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": regs, "count": len(regs)})
}

// CSV handles GET /v1/admin/registrations.csv.
func (h *AdminHandler) CSV(c echo.Context) error {
	regs, err := h.registrations(c)
	if err != nil {
		log.Printf("admin: export registrations: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "cms unavailable"})
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, regs); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	c.Response().Header().Set("Content-Disposition", `attachment; filename="iscrizioni.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
