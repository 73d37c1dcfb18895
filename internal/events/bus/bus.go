// Package bus provides the bounded event queue for Axiom.
//
// The bus is a multi-producer, single-consumer queue with backpressure: a
// full queue blocks the slower producer instead of allocating unboundedly.
// Producers that observe a closed bus drop their events silently so shutdown
// stays clean.
package bus

import (
	"errors"
	"sync"
	"time"

	"github.com/kandev/axiom/internal/events"
)

// DefaultCapacity is the queue bound used when none is configured.
const DefaultCapacity = 1024

var (
	// ErrFull is returned by TrySend when the queue is at capacity.
	ErrFull = errors.New("event bus full")

	// ErrClosed is returned when sending on a closed bus.
	ErrClosed = errors.New("event bus closed")
)

// Bus is a bounded queue of event envelopes.
type Bus struct {
	ch        chan events.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a bus with the given capacity. Non-positive capacities fall
// back to DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ch:   make(chan events.Envelope, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues an event, blocking while the queue is full.
// Returns ErrClosed after Close.
func (b *Bus) Send(e events.Event) error {
	env := events.NewEnvelope(e)
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.ch <- env:
		return nil
	case <-b.done:
		return ErrClosed
	}
}

// TrySend enqueues an event without blocking. Returns ErrFull when the queue
// is at capacity and ErrClosed after Close.
func (b *Bus) TrySend(e events.Event) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.ch <- events.NewEnvelope(e):
		return nil
	case <-b.done:
		return ErrClosed
	default:
		return ErrFull
	}
}

// RecvTimeout dequeues the next event, waiting up to timeout. Events already
// enqueued remain receivable after Close.
func (b *Bus) RecvTimeout(timeout time.Duration) (events.Envelope, bool) {
	select {
	case env := <-b.ch:
		return env, true
	case <-b.done:
		// Drain what is left after close.
		select {
		case env := <-b.ch:
			return env, true
		default:
			return events.Envelope{}, false
		}
	case <-time.After(timeout):
		return events.Envelope{}, false
	}
}

// TryRecv dequeues the next event without blocking.
func (b *Bus) TryRecv() (events.Envelope, bool) {
	select {
	case env := <-b.ch:
		return env, true
	default:
		return events.Envelope{}, false
	}
}

// Drain dequeues up to max pending events without blocking. Useful for batch
// processing so a chatty producer cannot starve the loop.
func (b *Bus) Drain(max int) []events.Envelope {
	drained := make([]events.Envelope, 0, max)
	for len(drained) < max {
		env, ok := b.TryRecv()
		if !ok {
			break
		}
		drained = append(drained, env)
	}
	return drained
}

// Close marks the bus closed. Blocked senders are released with ErrClosed;
// already-enqueued events can still be received.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Len returns the number of events currently queued.
func (b *Bus) Len() int {
	return len(b.ch)
}

// Cap returns the queue capacity.
func (b *Bus) Cap() int {
	return cap(b.ch)
}
