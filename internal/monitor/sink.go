package monitor

import (
	"context"
	"errors"
	"sync"

	"github.com/kozaktomas/vision-assist/internal/constants"
)

// Sink receives processed frames.
type Sink interface {
	Deliver(ctx context.Context, frame Frame) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, frame Frame) error

func (f SinkFunc) Deliver(ctx context.Context, frame Frame) error {
	return f(ctx, frame)
}

// MultiSink delivers every frame to all sinks in order.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, frame Frame) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Hub keeps the latest frame and fans frames out to listeners. Slow
// listeners miss frames instead of blocking the loop.
type Hub struct {
	mu        sync.RWMutex
	latest    *Frame
	listeners []chan Frame
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Deliver stores frame as the latest and sends it to all listeners.
func (h *Hub) Deliver(_ context.Context, frame Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = &frame
	for _, listener := range h.listeners {
		select {
		case listener <- frame:
		default:
			// Listener buffer full, skip.
		}
	}
	return nil
}

// Latest returns the most recent frame, or nil before the first delivery.
func (h *Hub) Latest() *Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// AddListener adds a frame listener.
func (h *Hub) AddListener() chan Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Frame, constants.EventChannelBuffer)
	h.listeners = append(h.listeners, ch)
	return ch
}

// RemoveListener removes and closes a frame listener.
func (h *Hub) RemoveListener(ch chan Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, listener := range h.listeners {
		if listener == ch {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// Listeners returns the number of listeners.
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
