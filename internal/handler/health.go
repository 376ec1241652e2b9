package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kyiku/tangram-back/internal/worker"
)

// WorkerStatus reports the background worker state.
type WorkerStatus interface {
	Status() string
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	worker WorkerStatus
}

// NewHealthHandler creates a new HealthHandler. w may be nil.
func NewHealthHandler(w WorkerStatus) *HealthHandler {
	return &HealthHandler{worker: w}
}

// Check returns the health status of the server.
func (h *HealthHandler) Check(c echo.Context) error {
	status := worker.StatusUnavailable
	if h.worker != nil {
		status = h.worker.Status()
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"worker": status,
	})
}
