package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kyiku/tangram-back/internal/response"
)

// LevelHandler serves the level catalog.
type LevelHandler struct {
	catalog LevelCatalog
}

// NewLevelHandler creates a new LevelHandler.
func NewLevelHandler(catalog LevelCatalog) *LevelHandler {
	return &LevelHandler{catalog: catalog}
}

// List handles GET /api/levels.
func (h *LevelHandler) List(c echo.Context) error {
	return response.Success(c, map[string]interface{}{
		"levels":   h.catalog.List(),
		"fallback": h.catalog.UsingFallback(),
	})
}

// Get handles GET /api/levels/:id.
func (h *LevelHandler) Get(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return response.Error(c, http.StatusBadRequest, "レベル番号が不正です")
	}

	lvl, ok := h.catalog.Get(id)
	if !ok {
		return response.Error(c, http.StatusNotFound, "レベルが見つかりません")
	}

	prev, next := h.catalog.Adjacent(id)
	return response.Success(c, map[string]interface{}{
		"level": lvl,
		"prev":  prev,
		"next":  next,
	})
}
