package controlstate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/neuroplastio/neio-midi/midiapi"
	"github.com/neuroplastio/neio-midi/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var faderKey = midiapi.ControlEventKey(
	midiapi.DeviceKey(midiapi.KindSource, "Novation", "Launchkey", "MIDI 1", 0),
	midiapi.ControlChange, 7,
)

func startBus(t *testing.T) *midiapi.EventBus {
	b := bus.NewBus[midiapi.Key, midiapi.Event](zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, b.Start(ctx))
	return b
}

func controlEvent(value int) midiapi.Event {
	return midiapi.Event{Command: midiapi.ControlChange, Data1: 7, Data2: uint8(value)}
}

func TestAgentAppliesInRoutingOrder(t *testing.T) {
	b := startBus(t)
	svc := New(zaptest.NewLogger(t), b)
	defer svc.Close()
	agent := svc.AgentFor(faderKey)
	ctx := context.Background()

	for _, v := range []int{10, 20, 30} {
		b.Publish(ctx, faderKey, controlEvent(v))
	}
	require.NoError(t, agent.Await(ctx))
	assert.Equal(t, 30, agent.Value())

	value, ok := svc.Value(faderKey)
	require.True(t, ok)
	assert.Equal(t, 30, value)
}

func TestAgentIntermediateRead(t *testing.T) {
	b := startBus(t)
	svc := New(zaptest.NewLogger(t), b)
	defer svc.Close()
	agent := svc.AgentFor(faderKey)
	ctx := context.Background()

	b.Publish(ctx, faderKey, controlEvent(10))
	b.Publish(ctx, faderKey, controlEvent(20))
	require.NoError(t, agent.Await(ctx))
	assert.Equal(t, 20, agent.Value())

	b.Publish(ctx, faderKey, controlEvent(30))
	require.NoError(t, agent.Await(ctx))
	assert.Equal(t, 30, agent.Value())
}

func TestAgentConcurrentPublishers(t *testing.T) {
	b := startBus(t)
	svc := New(zaptest.NewLogger(t), b)
	defer svc.Close()
	agent := svc.AgentFor(faderKey)
	ctx := context.Background()

	// producer p publishes p*steps+seq, which keeps every value within a data byte
	const producers, steps = 4, 30
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for seq := 0; seq < steps; seq++ {
				b.Publish(ctx, faderKey, controlEvent(p*steps+seq))
				if !assert.NoError(t, agent.Await(ctx)) {
					return
				}
				// an older value of this producer can never follow a newer one
				v := agent.Value()
				if v/steps == p {
					assert.Equal(t, seq, v%steps, "producer %d read a stale value", p)
				}
			}
		}(p)
	}
	wg.Wait()

	require.NoError(t, agent.Await(ctx))
	final := agent.Value()
	assert.Equal(t, steps-1, final%steps)
	value, ok := svc.Value(faderKey)
	require.True(t, ok)
	assert.Equal(t, final, value)
}

func TestAgentDefaultValue(t *testing.T) {
	svc := New(zaptest.NewLogger(t), startBus(t))
	defer svc.Close()

	assert.Equal(t, 0, svc.AgentFor(faderKey).Value())
	_, ok := svc.Value(midiapi.CommandKey(midiapi.NoteOn))
	assert.False(t, ok)
}

func TestAgentForIsIdempotent(t *testing.T) {
	b := startBus(t)
	svc := New(zaptest.NewLogger(t), b)
	defer svc.Close()

	var wg sync.WaitGroup
	agents := make([]*Agent, 16)
	for i := range agents {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agents[i] = svc.AgentFor(faderKey)
		}(i)
	}
	wg.Wait()
	for _, a := range agents {
		assert.Same(t, agents[0], a)
	}
	assert.Equal(t, 1, b.Subscribers(faderKey))
	assert.Equal(t, []midiapi.Key{faderKey}, svc.Keys())
}

func TestAgentSendIsSerialized(t *testing.T) {
	svc := New(zaptest.NewLogger(t), startBus(t))
	defer svc.Close()
	agent := svc.AgentFor(faderKey)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				agent.Send(func(old int) int { return old + 1 })
			}
		}()
	}
	wg.Wait()
	require.NoError(t, agent.Await(context.Background()))
	assert.Equal(t, 800, agent.Value())
}

func TestAgentKeepsPerProducerOrder(t *testing.T) {
	svc := New(zaptest.NewLogger(t), startBus(t))
	defer svc.Close()
	agent := svc.AgentFor(faderKey)

	var mu sync.Mutex
	last := make(map[int]int)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for seq := 0; seq < 200; seq++ {
				seq := seq
				agent.Send(func(old int) int {
					mu.Lock()
					defer mu.Unlock()
					assert.Greater(t, seq+1, last[p], "producer %d out of order", p)
					last[p] = seq + 1
					return old
				})
			}
		}(p)
	}
	wg.Wait()
	require.NoError(t, agent.Await(context.Background()))
	for p := 0; p < 4; p++ {
		assert.Equal(t, 200, last[p])
	}
}

func TestAwaitHonorsContext(t *testing.T) {
	agent := newAgent(faderKey)
	// worker not started, so the marker is never applied
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, agent.Await(ctx), context.DeadlineExceeded)
}

func TestCloseUnsubscribes(t *testing.T) {
	b := startBus(t)
	svc := New(zaptest.NewLogger(t), b)
	svc.AgentFor(faderKey)
	require.Equal(t, 1, b.Subscribers(faderKey))

	svc.Close()
	assert.Equal(t, 0, b.Subscribers(faderKey))
	assert.Empty(t, svc.Keys())
}
