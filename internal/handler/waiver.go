package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/waiver"
)

// WaiverHandler renders the waiver PDF for the current form snapshot.  The
// endpoint is stateless: nothing is stored.
type WaiverHandler struct {
	generate func(model.Registration) ([]byte, error)
}

// NewWaiverHandler returns a handler using waiver.Generate.
func NewWaiverHandler() *WaiverHandler {
	return &WaiverHandler{generate: waiver.Generate}
}

// Generate handles POST /v1/waiver.
func (h *WaiverHandler) Generate(c echo.Context) error {
	var reg model.Registration
	if err := c.Bind(&reg); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	pdf, err := h.generate(reg)
	if err != nil {
		var fe *waiver.FieldError
		if errors.As(err, &fe) {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "campo obbligatorio mancante",
				"code":  fe.Code(),
				"field": fe.Field,
			})
		}
		log.Printf("waiver: generation failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "generazione della liberatoria non riuscita",
			"code":  waiver.CodeGenerationFailed,
		})
	}
	c.Response().Header().Set("Content-Disposition", `inline; filename="liberatoria.pdf"`)
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}
