package handler

import (
	"net/http"
	"strings"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/kyiku/tangram-back/internal/websocket"
)

// WebSocketHandler serves the worker protocol on a WebSocket, so that
// clients can run checks and snaps off their own control path.
type WebSocketHandler struct {
	engine   websocket.Handler
	upgrader gorillaws.Upgrader
	logger   *log.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler. Browser connections
// are accepted only from allowedOrigin or localhost; connections without
// an Origin header come from other services and are accepted.
func NewWebSocketHandler(engine websocket.Handler, allowedOrigin string, logger *log.Logger) *WebSocketHandler {
	if logger == nil {
		logger = log.New("ws")
	}
	allowed := strings.TrimSuffix(allowedOrigin, "/")
	return &WebSocketHandler{
		engine: engine,
		logger: logger,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowed || strings.HasPrefix(origin, "http://localhost:")
			},
		},
	}
}

// Connect upgrades the connection and serves requests until it closes.
func (h *WebSocketHandler) Connect(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warnf("websocket upgrade failed: %v", err)
		return nil
	}

	if err := websocket.Serve(conn, h.engine, h.logger); err != nil {
		h.logger.Warnf("websocket closed with error: %v", err)
	}
	return nil
}
