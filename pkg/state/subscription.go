// ABOUTME: Per-subscriber change feeds with bounded drop-oldest buffers
// ABOUTME: Publishing never blocks; slow consumers lose their oldest records
package state

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// ErrSubscriptionClosed is returned by Next once a closed subscription is drained
var ErrSubscriptionClosed = errors.New("subscription closed")

// DefaultFeedBuffer is the per-subscription capacity
const DefaultFeedBuffer = 64

// Subscription is one consumer's view of a change feed. It starts empty and
// only sees records published after it was created.
type Subscription[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int
	count   int
	dropped uint64
	closed  bool
	notify  chan struct{}
	leave   func(*Subscription[T])
}

func newSubscription[T any](capacity int, leave func(*Subscription[T])) *Subscription[T] {
	if capacity <= 0 {
		capacity = DefaultFeedBuffer
	}
	return &Subscription[T]{
		buf:    make([]T, capacity),
		notify: make(chan struct{}, 1),
		leave:  leave,
	}
}

// push appends v, overwriting the oldest record when full
func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	idx := (s.head + s.count) % len(s.buf)
	s.buf[idx] = v
	if s.count == len(s.buf) {
		s.head = (s.head + 1) % len(s.buf)
		s.dropped++
	} else {
		s.count++
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pop() (T, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.count == 0 {
		return zero, false, s.closed
	}
	v := s.buf[s.head]
	s.buf[s.head] = zero
	s.head = (s.head + 1) % len(s.buf)
	s.count--
	return v, true, s.closed
}

// Next returns the oldest buffered record, waiting for one if necessary
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	for {
		v, ok, closed := s.pop()
		if ok {
			return v, nil
		}
		if closed {
			return v, ErrSubscriptionClosed
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// All yields records until ctx ends or the subscription is closed
func (s *Subscription[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Len returns the number of buffered records
func (s *Subscription[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Dropped returns how many records were overwritten before being read
func (s *Subscription[T]) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscription. Buffered records can still be read.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	leave := s.leave
	s.mu.Unlock()

	if leave != nil {
		leave(s)
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// feed fans records out to independent subscriptions
type feed[T any] struct {
	mu       sync.Mutex
	subs     map[*Subscription[T]]struct{}
	capacity int
	closed   bool
}

func newFeed[T any](capacity int) *feed[T] {
	return &feed[T]{subs: make(map[*Subscription[T]]struct{}), capacity: capacity}
}

func (f *feed[T]) subscribe() *Subscription[T] {
	s := newSubscription(f.capacity, f.remove)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		s.closed = true
		return s
	}
	f.subs[s] = struct{}{}
	return s
}

func (f *feed[T]) remove(s *Subscription[T]) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
}

func (f *feed[T]) publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		s.push(v)
	}
}

func (f *feed[T]) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *feed[T]) close() {
	f.mu.Lock()
	subs := make([]*Subscription[T], 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.closed = true
	f.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

// Feed is a standalone publish point with the same drop-oldest
// subscriptions the engine's change feeds use
type Feed[T any] struct {
	f *feed[T]
}

// NewFeed creates a feed whose subscriptions buffer capacity records;
// capacity below 1 uses DefaultFeedBuffer
func NewFeed[T any](capacity int) *Feed[T] {
	if capacity < 1 {
		capacity = DefaultFeedBuffer
	}
	return &Feed[T]{f: newFeed[T](capacity)}
}

// Subscribe returns a subscription that sees records published from now on
func (f *Feed[T]) Subscribe() *Subscription[T] { return f.f.subscribe() }

// Publish hands v to every subscription without blocking
func (f *Feed[T]) Publish(v T) { f.f.publish(v) }

// Close ends every subscription; later subscriptions start closed
func (f *Feed[T]) Close() { f.f.close() }
