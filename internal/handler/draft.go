package handler

import (
	"errors"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/festival-registration/internal/draft"
)

// draftKey restricts keys to opaque client generated identifiers.
var draftKey = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// DraftHandler stores wizard snapshots server side so a participant can
// resume on another device.
type DraftHandler struct {
	store draft.Store
}

// NewDraftHandler panics on a nil store.
func NewDraftHandler(store draft.Store) *DraftHandler {
	if store == nil {
		panic("nil draft store")
	}
	return &DraftHandler{store: store}
}

func (h *DraftHandler) key(c echo.Context) (string, bool) {
	k := c.Param("key")
	return k, draftKey.MatchString(k)
}

// Get handles GET /v1/drafts/:key.
func (h *DraftHandler) Get(c echo.Context) error {
	k, ok := h.key(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid key"})
	}
	s, err := h.store.Load(c.Request().Context(), k)
	if errors.Is(err, draft.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "draft not found"})
	}
	if err != nil {
		log.Printf("draft: load %s: %v", k, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, s)
}

// Put handles PUT /v1/drafts/:key, overwriting any previous snapshot.
func (h *DraftHandler) Put(c echo.Context) error {
	k, ok := h.key(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid key"})
	}
	var s draft.Snapshot
	if err := c.Bind(&s); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	s.SavedAt = time.Now().UTC()
	if err := h.store.Save(c.Request().Context(), k, s); err != nil {
		log.Printf("draft: save %s: %v", k, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete handles DELETE /v1/drafts/:key.
func (h *DraftHandler) Delete(c echo.Context) error {
	k, ok := h.key(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid key"})
	}
	if err := h.store.Clear(c.Request().Context(), k); err != nil {
		log.Printf("draft: clear %s: %v", k, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.NoContent(http.StatusNoContent)
}
