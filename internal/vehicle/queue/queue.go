// Package queue implements the delivery channel between the control surface
// and the dispatch loop: an unbounded, ordered, multi-producer/single-consumer
// queue split into a sending and a receiving half.
package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by Send after the sending half was closed, and
	// by Recv once the sending half is closed and every item was drained.
	ErrClosed = errors.New("queue: closed")

	// ErrReceiverClosed is returned by Send once the consumer has gone away.
	ErrReceiverClosed = errors.New("queue: receiver closed")
)

type state[T any] struct {
	mu         sync.Mutex
	items      []T
	sendClosed bool
	recvClosed bool

	// wake holds at most one pending signal, so a consumer that checked an
	// empty queue and is about to wait never misses a Send.
	wake chan struct{}
}

// Sender is the producing half. It is safe for concurrent use.
type Sender[T any] struct {
	s *state[T]
}

// Receiver is the consuming half. It must be used by a single goroutine.
type Receiver[T any] struct {
	s *state[T]
}

// New returns the two halves of an empty queue.
func New[T any]() (*Sender[T], *Receiver[T]) {
	s := &state[T]{wake: make(chan struct{}, 1)}
	return &Sender[T]{s: s}, &Receiver[T]{s: s}
}

// Send appends v. It never blocks and never fails for capacity.
func (tx *Sender[T]) Send(v T) error {
	s := tx.s
	s.mu.Lock()
	switch {
	case s.recvClosed:
		s.mu.Unlock()
		return ErrReceiverClosed
	case s.sendClosed:
		s.mu.Unlock()
		return ErrClosed
	}
	s.items = append(s.items, v)
	s.mu.Unlock()

	s.signal()
	return nil
}

// Close closes the sending half. Items already queued are still delivered.
// Close is idempotent.
func (tx *Sender[T]) Close() {
	s := tx.s
	s.mu.Lock()
	s.sendClosed = true
	s.mu.Unlock()
	s.signal()
}

// Recv removes and returns the oldest item, suspending until one arrives.
// It returns ErrClosed when the sending half is closed and the queue is
// drained, or the context error when ctx ends first.
func (rx *Receiver[T]) Recv(ctx context.Context) (T, error) {
	s := rx.s
	var zero T
	for {
		s.mu.Lock()
		if len(s.items) > 0 {
			v := s.items[0]
			s.items[0] = zero
			s.items = s.items[1:]
			if len(s.items) == 0 {
				s.items = nil
			}
			s.mu.Unlock()
			return v, nil
		}
		if s.sendClosed || s.recvClosed {
			s.mu.Unlock()
			return zero, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (rx *Receiver[T]) Len() int {
	rx.s.mu.Lock()
	defer rx.s.mu.Unlock()
	return len(rx.s.items)
}

// Close marks the consumer as gone and drops pending items. Every later
// Send fails with ErrReceiverClosed.
func (rx *Receiver[T]) Close() {
	s := rx.s
	s.mu.Lock()
	s.recvClosed = true
	s.items = nil
	s.mu.Unlock()
}

func (s *state[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
