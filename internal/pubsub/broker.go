// Package pubsub provides a bounded, generic publish/subscribe broker for
// in-process event fan-out.
package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

const (
	// DefaultBufferSize is the per-subscriber channel capacity. A slow
	// consumer (a backgrounded browser tab parked on an SSE stream) drops
	// its own events past this; publishers never block.
	DefaultBufferSize = 32

	// DefaultMaxSubscribers caps concurrent subscriptions. SSE handler
	// tasks are the main consumer and are bounded to this many.
	DefaultMaxSubscribers = 16
)

// ErrTooManySubscribers is returned by Subscribe past the subscriber cap.
var ErrTooManySubscribers = errors.New("too many subscribers")

// Broker is a generic pub/sub broker with bounded per-subscriber buffers
// and a drop-on-full delivery policy.
type Broker[T any] struct {
	subs           map[chan T]struct{}
	mu             sync.RWMutex
	done           chan struct{}
	bufferSize     int
	maxSubscribers int
	dropped        atomic.Int64
}

// NewBroker creates a broker with the default buffer size and subscriber cap.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithLimits[T](DefaultBufferSize, DefaultMaxSubscribers)
}

// NewBrokerWithLimits creates a broker with a custom buffer size and
// subscriber ceiling. Non-positive values fall back to the defaults.
func NewBrokerWithLimits[T any](bufferSize, maxSubscribers int) *Broker[T] {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if maxSubscribers <= 0 {
		maxSubscribers = DefaultMaxSubscribers
	}
	return &Broker[T]{
		subs:           make(map[chan T]struct{}),
		done:           make(chan struct{}),
		bufferSize:     bufferSize,
		maxSubscribers: maxSubscribers,
	}
}

// Subscribe creates a new subscription channel. The channel is closed and
// the subscription released when ctx is cancelled; pending events are
// discarded at that point. Returns ErrTooManySubscribers at capacity.
func (b *Broker[T]) Subscribe(ctx context.Context) (<-chan T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan T)
		close(ch)
		return ch, nil
	default:
	}

	if len(b.subs) >= b.maxSubscribers {
		return nil, ErrTooManySubscribers
	}

	sub := make(chan T, b.bufferSize)
	b.subs[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()

		select {
		case <-b.done:
			return // already closed
		default:
		}

		delete(b.subs, sub)
		close(sub)
	}()

	return sub, nil
}

// Publish delivers the event to every current subscriber's buffer. It
// never blocks: a full buffer drops that subscriber's copy of the event.
// Each subscriber still observes its delivered events in publish order.
func (b *Broker[T]) Publish(event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return
	default:
	}

	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the total number of events dropped across all
// subscribers since the broker was created.
func (b *Broker[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Close shuts down the broker and closes all subscriber channels.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
	}

	close(b.done)
	for sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}
