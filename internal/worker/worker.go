package worker

import (
	"errors"
	"sync"
)

var (
	// ErrClosed is returned when posting to a closed dispatcher.
	ErrClosed = errors.New("worker closed")
	// ErrQueueFull is returned when the worker inbox has no room.
	ErrQueueFull = errors.New("worker queue full")
)

// Dispatcher delivers requests to an asynchronous executor and streams
// responses back. Results is closed once the dispatcher stops.
type Dispatcher interface {
	Post(req Request) error
	Results() <-chan Response
	Close() error
}

// Worker is an in-process background executor. It handles one request at
// a time on its own goroutine and shares no memory with the caller beyond
// the messages themselves.
type Worker struct {
	engine    *Engine
	inbox     chan Request
	outbox    chan Response
	done      chan struct{}
	closeOnce sync.Once
}

// NewWorker starts a Worker with room for buffer queued requests.
func NewWorker(engine *Engine, buffer int) *Worker {
	w := &Worker{
		engine: engine,
		inbox:  make(chan Request, max(buffer, 1)),
		outbox: make(chan Response, max(buffer, 1)),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.outbox)
	for {
		select {
		case <-w.done:
			return
		case req := <-w.inbox:
			resp := w.engine.Handle(req)
			select {
			case w.outbox <- resp:
			case <-w.done:
				return
			}
		}
	}
}

// Post queues req without blocking.
func (w *Worker) Post(req Request) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}

	select {
	case w.inbox <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Results returns the response stream.
func (w *Worker) Results() <-chan Response {
	return w.outbox
}

// Close stops the worker. Queued requests are dropped.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	return nil
}
