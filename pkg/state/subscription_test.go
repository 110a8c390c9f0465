// ABOUTME: Tests for subscription buffers
// ABOUTME: Drop-oldest overflow, close semantics and iterator behaviour
package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionDropsOldest(t *testing.T) {
	f := newFeed[int](3)
	s := f.subscribe()

	for i := 1; i <= 5; i++ {
		f.publish(i)
	}
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, uint64(2), s.Dropped())

	ctx := context.Background()
	for _, want := range []int{3, 4, 5} {
		got, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSubscriptionStartsFromNow(t *testing.T) {
	f := newFeed[int](4)
	f.publish(1)
	s := f.subscribe()
	f.publish(2)

	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestNextWaitsForPublish(t *testing.T) {
	f := newFeed[string](4)
	s := f.subscribe()

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.publish("hello")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestNextHonoursContext(t *testing.T) {
	s := newFeed[int](1).subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseDrainsThenStops(t *testing.T) {
	f := newFeed[int](4)
	s := f.subscribe()
	f.publish(7)
	s.Close()
	f.publish(8)

	assert.Equal(t, 0, f.subscribers())

	var got []int
	for v := range s.All(context.Background()) {
		got = append(got, v)
	}
	assert.Equal(t, []int{7}, got)

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestFeedCloseEndsSubscribers(t *testing.T) {
	f := newFeed[int](4)
	s := f.subscribe()
	f.close()

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)

	late := f.subscribe()
	_, err = late.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestExportedFeed(t *testing.T) {
	f := NewFeed[string](0)
	s := f.Subscribe()
	f.Publish("a")
	f.Close()

	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got)
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}
