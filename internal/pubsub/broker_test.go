package pubsub

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_Subscribe(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := broker.Subscribe(ctx)
	require.NoError(t, err)

	broker.Publish("hello")

	select {
	case got := <-ch:
		require.Equal(t, "hello", got)
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "timeout waiting for event")
	}
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx := context.Background()

	ch1, err := broker.Subscribe(ctx)
	require.NoError(t, err)
	ch2, err := broker.Subscribe(ctx)
	require.NoError(t, err)
	ch3, err := broker.Subscribe(ctx)
	require.NoError(t, err)

	require.Equal(t, 3, broker.SubscriberCount())

	broker.Publish(42)

	for i, ch := range []<-chan int{ch1, ch2, ch3} {
		select {
		case got := <-ch:
			require.Equal(t, 42, got, "subscriber %d", i)
		case <-time.After(100 * time.Millisecond):
			require.Fail(t, "timeout waiting for event", "subscriber %d", i)
		}
	}
}

func TestBroker_SubscriberCeiling(t *testing.T) {
	broker := NewBrokerWithLimits[int](DefaultBufferSize, 16)
	defer broker.Close()

	ctx := context.Background()

	for i := 0; i < 16; i++ {
		_, err := broker.Subscribe(ctx)
		require.NoError(t, err, "subscriber %d", i)
	}

	// The 17th subscribe must fail.
	_, err := broker.Subscribe(ctx)
	require.ErrorIs(t, err, ErrTooManySubscribers)
	require.Equal(t, 16, broker.SubscriberCount())
}

func TestBroker_CeilingFreedOnUnsubscribe(t *testing.T) {
	broker := NewBrokerWithLimits[int](4, 2)
	defer broker.Close()

	ctx1, cancel1 := context.WithCancel(context.Background())
	_, err := broker.Subscribe(ctx1)
	require.NoError(t, err)
	_, err = broker.Subscribe(context.Background())
	require.NoError(t, err)

	_, err = broker.Subscribe(context.Background())
	require.ErrorIs(t, err, ErrTooManySubscribers)

	cancel1()
	require.Eventually(t, func() bool {
		return broker.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	_, err = broker.Subscribe(context.Background())
	require.NoError(t, err)
}

func TestBroker_ContextCancellation(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())

	ch, err := broker.Subscribe(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool {
		return broker.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

func TestBroker_DropOnFull(t *testing.T) {
	broker := NewBrokerWithLimits[int](32, 16)
	defer broker.Close()

	ch, err := broker.Subscribe(context.Background())
	require.NoError(t, err)

	// Fill the buffer plus one: the 33rd pending event is dropped, the
	// first 32 are retained in order.
	for i := 1; i <= 33; i++ {
		broker.Publish(i)
	}
	require.Equal(t, int64(1), broker.Dropped())

	for i := 1; i <= 32; i++ {
		select {
		case got := <-ch:
			require.Equal(t, i, got)
		default:
			require.Fail(t, fmt.Sprintf("event %d missing from buffer", i))
		}
	}
	select {
	case got := <-ch:
		require.Fail(t, fmt.Sprintf("unexpected extra event %d", got))
	default:
	}
}

func TestBroker_PublishNeverBlocks(t *testing.T) {
	broker := NewBrokerWithLimits[int](1, 4)
	defer broker.Close()

	_, err := broker.Subscribe(context.Background())
	require.NoError(t, err)

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			broker.Publish(i)
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "Publish blocked")
	}
}

func TestBroker_OrderPreservedPerSubscriber(t *testing.T) {
	broker := NewBrokerWithLimits[int](64, 4)
	defer broker.Close()

	ch, err := broker.Subscribe(context.Background())
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		broker.Publish(i)
	}

	// Received sequence must be a prefix-ordered subsequence of the
	// publish sequence.
	last := -1
	for i := 0; i < 50; i++ {
		got := <-ch
		require.Greater(t, got, last)
		last = got
	}
}

func TestBroker_PublishAfterClose(t *testing.T) {
	broker := NewBroker[string]()
	broker.Close()

	// Must not panic.
	broker.Publish("after close")
	broker.Close()

	ch, err := broker.Subscribe(context.Background())
	require.NoError(t, err)
	_, ok := <-ch
	require.False(t, ok)
}
