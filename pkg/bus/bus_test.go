package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"
)

func newStartedBus(t *testing.T, opts ...Option) *Bus[string, int] {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	b := NewBus[string, int](zaptest.NewLogger(t), opts...)
	require.NoError(t, b.Start(ctx))
	<-b.Ready()
	return b
}

func TestSyncDeliveryPreservesOrder(t *testing.T) {
	b := newStartedBus(t)
	var got []int
	b.Subscribe("topic", "sync", ModeSync, func(_ context.Context, msg int) {
		got = append(got, msg)
	})
	want := make([]int, 0, 100)
	for i := 0; i < 100; i++ {
		b.Publish(context.Background(), "topic", i)
		want = append(want, i)
	}
	assert.Equal(t, want, got)
}

func TestPoolDelivery(t *testing.T) {
	b := newStartedBus(t, WithConcurrency(3))
	count := atomic.NewInt64(0)
	b.Subscribe("topic", "pool", ModePool, func(_ context.Context, msg int) {
		count.Add(int64(msg))
	})
	for i := 1; i <= 10; i++ {
		b.Publish(context.Background(), "topic", i)
	}
	require.Eventually(t, func() bool { return count.Load() == 55 }, time.Second, time.Millisecond)
}

func TestPublishOnlyReachesMatchingKey(t *testing.T) {
	b := newStartedBus(t)
	var a, other int
	b.Subscribe("a", "a", ModeSync, func(_ context.Context, msg int) { a += msg })
	b.Subscribe("b", "b", ModeSync, func(_ context.Context, msg int) { other += msg })
	b.Publish(context.Background(), "a", 3)
	b.Publish(context.Background(), "missing", 7)
	assert.Equal(t, 3, a)
	assert.Equal(t, 0, other)
}

func TestOnceFiresOnceUnderConcurrency(t *testing.T) {
	b := newStartedBus(t)
	fired := atomic.NewInt64(0)
	b.Subscribe("topic", "once", ModeOnce, func(_ context.Context, _ int) {
		fired.Inc()
	})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Publish(context.Background(), "topic", i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(1), fired.Load())
	assert.Equal(t, 0, b.Subscribers("topic"))
	assert.False(t, b.Unsubscribe("once"))
}

func TestSubscribeWithSameIDReplaces(t *testing.T) {
	b := newStartedBus(t)
	var first, second int
	b.Subscribe("topic", "id", ModeSync, func(_ context.Context, msg int) { first += msg })
	b.Subscribe("other", "id", ModeSync, func(_ context.Context, msg int) { second += msg })
	b.Publish(context.Background(), "topic", 1)
	b.Publish(context.Background(), "other", 1)
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 0, b.Subscribers("topic"))
}

func TestUnsubscribe(t *testing.T) {
	b := newStartedBus(t)
	var got int
	b.Subscribe("topic", "id", ModeSync, func(_ context.Context, msg int) { got += msg })
	assert.True(t, b.Unsubscribe("id"))
	assert.False(t, b.Unsubscribe("id"))
	b.Publish(context.Background(), "topic", 1)
	assert.Equal(t, 0, got)
}

func TestHandlerPanicDoesNotStopPublisher(t *testing.T) {
	b := newStartedBus(t)
	var got int
	b.Subscribe("topic", "bad", ModeSync, func(_ context.Context, _ int) { panic("boom") })
	b.Subscribe("topic", "good", ModeSync, func(_ context.Context, msg int) { got = msg })
	assert.NotPanics(t, func() { b.Publish(context.Background(), "topic", 42) })
	assert.Equal(t, 42, got)
}

func TestStartRejectsZeroConcurrency(t *testing.T) {
	b := NewBus[string, int](zaptest.NewLogger(t), WithConcurrency(0))
	assert.Error(t, b.Start(context.Background()))
}
