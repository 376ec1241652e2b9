package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kyiku/tangram-back/internal/response"
	"github.com/kyiku/tangram-back/internal/worker"
)

// EngineHandler exposes stateless coverage checks and snap runs.
type EngineHandler struct {
	worker WorkerInterface
}

// NewEngineHandler creates a new EngineHandler.
func NewEngineHandler(w WorkerInterface) *EngineHandler {
	return &EngineHandler{worker: w}
}

// Check handles POST /api/check.
func (h *EngineHandler) Check(c echo.Context) error {
	return h.run(c, worker.TypeCheck)
}

// Snap handles POST /api/snap.
func (h *EngineHandler) Snap(c echo.Context) error {
	return h.run(c, worker.TypeSnap)
}

func (h *EngineHandler) run(c echo.Context, typ string) error {
	var req worker.Request
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "リクエストの解析に失敗しました")
	}
	if req.Width <= 0 || req.Height <= 0 {
		return response.Error(c, http.StatusBadRequest, "キャンバスの大きさを指定してください")
	}
	req.Type = typ

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	resp, err := h.worker.Do(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return response.Error(c, http.StatusGatewayTimeout, "計算がタイムアウトしました")
		}
		return response.Error(c, http.StatusInternalServerError, "計算に失敗しました")
	}
	if resp.Failed() {
		return response.Error(c, http.StatusBadRequest, resp.Error)
	}
	return c.JSON(http.StatusOK, resp)
}
