package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Remote is a Dispatcher that forwards requests to an external worker over
// a WebSocket connection speaking the same JSON protocol.
type Remote struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	outbox    chan Response
	closeOnce sync.Once
	closed    chan struct{}
}

// DialRemote connects to a worker at url.
func DialRemote(ctx context.Context, url string) (*Remote, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial worker: %w", err)
	}
	return NewRemote(conn), nil
}

// NewRemote wraps an established connection.
func NewRemote(conn *websocket.Conn) *Remote {
	r := &Remote{
		conn:   conn,
		outbox: make(chan Response, 16),
		closed: make(chan struct{}),
	}
	go r.readLoop()
	return r
}

func (r *Remote) readLoop() {
	defer close(r.outbox)
	for {
		var resp Response
		if err := r.conn.ReadJSON(&resp); err != nil {
			_ = r.Close()
			return
		}
		if resp.Type == TypePong {
			continue
		}
		select {
		case r.outbox <- resp:
		case <-r.closed:
			return
		}
	}
}

// Post writes req to the connection.
func (r *Remote) Post(req Request) error {
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// Results returns the response stream.
func (r *Remote) Results() <-chan Response {
	return r.outbox
}

// Close closes the connection.
func (r *Remote) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.conn.Close()
	})
	return err
}
