package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/neuroplastio/neio-midi/midiapi"
	"github.com/neuroplastio/neio-midi/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"
)

func startBus(t *testing.T) *midiapi.EventBus {
	b := bus.NewBus[midiapi.Key, midiapi.Event](zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, b.Start(ctx))
	return b
}

type counter struct {
	on, off *atomic.Int64
}

func newCounter() counter {
	return counter{on: atomic.NewInt64(0), off: atomic.NewInt64(0)}
}

func (c counter) handlers() (NoteHandler, NoteHandler) {
	return func(context.Context, midiapi.Event) { c.on.Inc() },
		func(context.Context, midiapi.Event) { c.off.Inc() }
}

var (
	noteOnKey  = midiapi.CommandKey(midiapi.NoteOn)
	noteOffKey = midiapi.CommandKey(midiapi.NoteOff)
	synthKey   = midiapi.NewKey(midiapi.Keyword("synth"), midiapi.Str("lead"))
)

func TestStartReceivesNotes(t *testing.T) {
	b := startBus(t)
	reg := NewRegistry(zaptest.NewLogger(t), b)
	c := newCounter()
	on, off := c.handlers()

	p, err := reg.Start(synthKey, on, off)
	require.NoError(t, err)
	assert.True(t, p.Live())
	assert.Equal(t, synthKey, p.Key())
	assert.Equal(t, `[::poly-player :synth "lead" :note-on]`, p.onID)

	ctx := context.Background()
	b.Publish(ctx, noteOnKey, midiapi.Event{Command: midiapi.NoteOn, Data1: 60})
	b.Publish(ctx, noteOffKey, midiapi.Event{Command: midiapi.NoteOff, Data1: 60})
	require.Eventually(t, func() bool {
		return c.on.Load() == 1 && c.off.Load() == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []midiapi.Key{synthKey}, reg.Players())
}

func TestStopIsIdempotent(t *testing.T) {
	b := startBus(t)
	reg := NewRegistry(zaptest.NewLogger(t), b)
	on, off := newCounter().handlers()
	p, err := reg.Start(synthKey, on, off)
	require.NoError(t, err)

	require.NoError(t, reg.Stop(p))
	assert.False(t, p.Live())
	assert.Equal(t, 0, b.Subscribers(noteOnKey))
	assert.Equal(t, 0, b.Subscribers(noteOffKey))
	assert.Empty(t, reg.Players())

	require.NoError(t, reg.Stop(p))
	require.NoError(t, reg.Stop(synthKey))
}

func TestStopByKey(t *testing.T) {
	b := startBus(t)
	reg := NewRegistry(zaptest.NewLogger(t), b)
	on, off := newCounter().handlers()
	p, err := reg.StartDefault(on, off)
	require.NoError(t, err)

	require.NoError(t, reg.StopDefault())
	assert.False(t, p.Live())
	assert.Equal(t, 0, b.Subscribers(noteOnKey))

	p, err = reg.StartDefault(on, off)
	require.NoError(t, err)
	require.NoError(t, reg.Stop(nil))
	assert.False(t, p.Live())
	assert.Empty(t, reg.Players())
}

func TestStopInvalidArgument(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t), startBus(t))
	assert.ErrorIs(t, reg.Stop("synth"), ErrInvalidArgument)
	assert.ErrorIs(t, reg.Stop(42), ErrInvalidArgument)
	assert.ErrorIs(t, reg.Stop((*Player)(nil)), ErrInvalidArgument)
}

func TestStartInvalidArgument(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t), startBus(t))
	on, off := newCounter().handlers()

	_, err := reg.Start(midiapi.Key{}, on, off)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = reg.Start(synthKey, nil, off)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	long := midiapi.NewKey()
	for i := 0; i < midiapi.MaxKeySegments-1; i++ {
		long = long.Append(midiapi.Int(i))
	}
	_, err = reg.Start(long, on, off)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRestartReplacesPlayer(t *testing.T) {
	b := startBus(t)
	reg := NewRegistry(zaptest.NewLogger(t), b)
	first := newCounter()
	second := newCounter()
	on1, off1 := first.handlers()
	on2, off2 := second.handlers()

	p1, err := reg.Start(synthKey, on1, off1)
	require.NoError(t, err)
	p2, err := reg.Start(synthKey, on2, off2)
	require.NoError(t, err)
	assert.False(t, p1.Live())
	assert.True(t, p2.Live())
	assert.Equal(t, 1, b.Subscribers(noteOnKey))

	// stopping the replaced player leaves its successor running
	require.NoError(t, reg.Stop(p1))
	assert.True(t, p2.Live())
	assert.Equal(t, []midiapi.Key{synthKey}, reg.Players())

	b.Publish(context.Background(), noteOnKey, midiapi.Event{Command: midiapi.NoteOn})
	require.Eventually(t, func() bool {
		return second.on.Load() == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, int64(0), first.on.Load())
}

func TestWithTopics(t *testing.T) {
	b := startBus(t)
	reg := NewRegistry(zaptest.NewLogger(t), b)
	dev := midiapi.DeviceKey(midiapi.KindSource, "Novation", "Launchkey", "MIDI 1", 0)
	onTopic := midiapi.DeviceEventKey(dev, midiapi.NoteOn)
	offTopic := midiapi.DeviceEventKey(dev, midiapi.NoteOff)
	on, off := newCounter().handlers()

	_, err := reg.Start(synthKey, on, off, WithTopics(onTopic, offTopic))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers(onTopic))
	assert.Equal(t, 1, b.Subscribers(offTopic))
	assert.Equal(t, 0, b.Subscribers(noteOnKey))
}

// gatedBus holds the first Unsubscribe until the gate opens.
type gatedBus struct {
	*midiapi.EventBus
	once    sync.Once
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedBus) Unsubscribe(id string) bool {
	g.once.Do(func() {
		close(g.entered)
		<-g.gate
	})
	return g.EventBus.Unsubscribe(id)
}

func TestStartDuringStopByKey(t *testing.T) {
	b := startBus(t)
	gb := &gatedBus{EventBus: b, entered: make(chan struct{}), gate: make(chan struct{})}
	reg := NewRegistry(zaptest.NewLogger(t), gb)
	on1, off1 := newCounter().handlers()
	second := newCounter()
	on2, off2 := second.handlers()

	p1, err := reg.Start(synthKey, on1, off1)
	require.NoError(t, err)

	stopped := make(chan error, 1)
	go func() { stopped <- reg.Stop(synthKey) }()
	<-gb.entered

	started := atomic.NewBool(false)
	var p2 *Player
	restarted := make(chan error, 1)
	go func() {
		var err error
		p2, err = reg.Start(synthKey, on2, off2)
		started.Store(true)
		restarted <- err
	}()
	assert.Never(t, started.Load, 50*time.Millisecond, time.Millisecond)

	close(gb.gate)
	require.NoError(t, <-stopped)
	require.NoError(t, <-restarted)
	assert.False(t, p1.Live())
	assert.True(t, p2.Live())
	assert.Equal(t, []midiapi.Key{synthKey}, reg.Players())
	assert.Equal(t, 1, b.Subscribers(noteOnKey))
	assert.Equal(t, 1, b.Subscribers(noteOffKey))

	b.Publish(context.Background(), noteOnKey, midiapi.Event{Command: midiapi.NoteOn, Data1: 60})
	require.Eventually(t, func() bool {
		return second.on.Load() == 1
	}, time.Second, time.Millisecond)
}
