// Package websocket serves the worker message protocol over a WebSocket
// connection.
package websocket

import (
	"encoding/json"

	"github.com/labstack/gommon/log"

	"github.com/kyiku/tangram-back/internal/worker"
)

// Conn is the part of a WebSocket connection the server loop needs.
// *github.com/gorilla/websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Handler executes one worker request.
type Handler interface {
	Handle(req worker.Request) worker.Response
}

// PingHandler answers ping messages.
type PingHandler struct {
	conn Conn
}

// NewPingHandler creates a new PingHandler.
func NewPingHandler(conn Conn) *PingHandler {
	return &PingHandler{
		conn: conn,
	}
}

// Handle processes a message and returns true if it was a ping message.
func (h *PingHandler) Handle(message []byte) bool {
	if !IsPingMessage(message) {
		return false
	}

	_ = h.conn.WriteJSON(worker.Response{Type: worker.TypePong})
	return true
}

// IsPingMessage checks if a message is a ping message without processing it.
func IsPingMessage(message []byte) bool {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return false
	}
	return msg.Type == worker.TypePing
}

// Serve reads requests from conn until it fails or closes, executes them
// one at a time with h and writes each response back. Undecodable
// messages are answered with an error response. conn is closed on return.
func Serve(conn Conn, h Handler, logger *log.Logger) error {
	if logger == nil {
		logger = log.New("ws")
	}
	defer conn.Close()

	ping := NewPingHandler(conn)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			logger.Debugf("websocket read ended: %v", err)
			return nil
		}
		if ping.Handle(message) {
			continue
		}

		var req worker.Request
		var resp worker.Response
		if err := json.Unmarshal(message, &req); err != nil {
			resp = worker.Response{Type: worker.TypeError, Error: "メッセージを解析できません: " + err.Error()}
		} else {
			resp = h.Handle(req)
		}

		if err := conn.WriteJSON(resp); err != nil {
			logger.Warnf("failed to write response %d: %v", resp.ID, err)
			return err
		}
	}
}
