package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/kamstrup/intmap"
	"github.com/labstack/gommon/log"

	"github.com/kyiku/tangram-back/internal/coverage"
	"github.com/kyiku/tangram-back/internal/geometry"
	"github.com/kyiku/tangram-back/internal/snap"
)

// Worker status values reported to clients.
const (
	StatusUnavailable = "n/a"
	StatusIdle        = "idle"
	StatusBusy        = "busy"
)

// Callback receives the response to a request.
type Callback func(Response)

type call struct {
	req Request
	cb  Callback
}

// Client sends requests to a Dispatcher and routes responses to their
// callbacks by request id. When no dispatcher is usable the request is
// computed synchronously with the same Engine, so callers never see the
// difference.
type Client struct {
	engine *Engine
	logger *log.Logger

	mu         sync.Mutex
	dispatcher Dispatcher
	pending    *intmap.Map[uint64, call]
	nextID     uint64
}

// NewClient creates a Client. d may be nil, in which case every request is
// computed synchronously.
func NewClient(engine *Engine, d Dispatcher, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New("worker")
	}
	c := &Client{
		engine:     engine,
		logger:     logger,
		dispatcher: d,
		pending:    intmap.New[uint64, call](16),
	}
	if d != nil {
		go c.receive(d)
	}
	return c
}

// Go submits req and returns its id without waiting for the result. cb is
// called exactly once, from the receiving goroutine or, on fallback, before
// Go returns.
func (c *Client) Go(req Request, cb Callback) uint64 {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	req.ID = id
	d := c.dispatcher
	if d == nil {
		c.mu.Unlock()
		cb(c.engine.Handle(req))
		return id
	}
	c.pending.Put(id, call{req: req, cb: cb})
	c.mu.Unlock()

	if err := d.Post(req); err != nil {
		if pc, ok := c.take(id); ok {
			c.logger.Warnf("worker unavailable, computing request %d synchronously: %v", id, err)
			pc.cb(c.engine.Handle(pc.req))
		}
	}
	return id
}

// Do submits req and waits for its response or for ctx to end. An
// abandoned request is removed from the pending map; its late response is
// dropped.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	ch := make(chan Response, 1)
	id := c.Go(req, func(resp Response) {
		ch <- resp
	})

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		c.take(id)
		return Response{}, ctx.Err()
	}
}

// Check runs a coverage check.
func (c *Client) Check(ctx context.Context, width, height int, pieces []geometry.Polygon, silhouette geometry.Polygon, strict bool) (coverage.Result, error) {
	resp, err := c.Do(ctx, NewCheckRequest(width, height, pieces, silhouette, strict))
	if err != nil {
		return coverage.Result{}, err
	}
	if resp.Failed() {
		return coverage.Result{}, fmt.Errorf("failed to check coverage: %s", resp.Error)
	}
	return resp.Coverage(), nil
}

// Snap runs the snap optimizer over copies of pieces.
func (c *Client) Snap(ctx context.Context, width, height int, pieces []geometry.Polygon, silhouette geometry.Polygon, opts snap.Options) (snap.Result, error) {
	resp, err := c.Do(ctx, NewSnapRequest(width, height, pieces, silhouette, opts))
	if err != nil {
		return snap.Result{}, err
	}
	if resp.Failed() {
		return snap.Result{}, fmt.Errorf("failed to snap pieces: %s", resp.Error)
	}
	return resp.Snap(), nil
}

// Pending returns the number of outstanding requests.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}

// Status reports whether a background dispatcher is attached and busy.
func (c *Client) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.dispatcher == nil:
		return StatusUnavailable
	case c.pending.Len() > 0:
		return StatusBusy
	default:
		return StatusIdle
	}
}

// Close detaches and closes the dispatcher. Requests still pending are
// computed synchronously.
func (c *Client) Close() error {
	c.mu.Lock()
	d := c.dispatcher
	c.dispatcher = nil
	c.mu.Unlock()

	if d == nil {
		return nil
	}
	return d.Close()
}

// take removes and returns the pending call for id.
func (c *Client) take(id uint64) (call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.pending.Get(id)
	if ok {
		c.pending.Del(id)
	}
	return pc, ok
}

func (c *Client) receive(d Dispatcher) {
	for resp := range d.Results() {
		if resp.ID == 0 {
			continue
		}
		pc, ok := c.take(resp.ID)
		if !ok {
			c.logger.Debugf("dropping response for unknown request %d", resp.ID)
			continue
		}
		pc.cb(resp)
	}

	c.mu.Lock()
	if c.dispatcher == d {
		c.dispatcher = nil
	}
	orphans := make([]call, 0, c.pending.Len())
	for _, pc := range c.pending.All() {
		orphans = append(orphans, pc)
	}
	c.pending.Clear()
	c.mu.Unlock()

	if len(orphans) > 0 {
		c.logger.Warnf("worker stopped, computing %d pending requests synchronously", len(orphans))
	}
	for _, pc := range orphans {
		pc.cb(c.engine.Handle(pc.req))
	}
}
