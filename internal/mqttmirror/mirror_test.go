package mqttmirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neuroplastio/neio-midi/midiapi"
	"github.com/neuroplastio/neio-midi/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type message struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{topic: topic, payload: payload})
	return f.err
}

func (f *fakePublisher) messages() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.msgs...)
}

var devKey = midiapi.DeviceKey(midiapi.KindSource, "Novation", "Launchkey Mk3/25", "MIDI 1", 1)

func TestTopic(t *testing.T) {
	ev := midiapi.Event{Command: midiapi.ControlChange, Channel: 3, Data1: 74, DevKey: devKey}
	assert.Equal(t, "neio-midi/Novation/Launchkey_Mk3_25/1/control-change/3/74", Topic("neio-midi", ev))

	ev.DevKey = midiapi.DeviceKey(midiapi.KindSource, "", "a+b#", "", 0)
	assert.Equal(t, "p/_/a_b_/0/control-change/3/74", Topic("p", ev))
}

func TestMirrorPublishesEvents(t *testing.T) {
	b := bus.NewBus[midiapi.Key, midiapi.Event](zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Start(ctx))

	pub := &fakePublisher{}
	mirror, err := New(zaptest.NewLogger(t), b, pub, Config{TopicPrefix: "/studio/", Commands: []string{"control-change"}})
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		done <- mirror.Start(ctx)
	}()
	<-mirror.Ready()

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b.Publish(ctx, midiapi.CommandKey(midiapi.ControlChange), midiapi.Event{
		Command: midiapi.ControlChange, Data1: 7, Data2: 127, Data2F: 1, DevKey: devKey, Timestamp: ts,
	})
	b.Publish(ctx, midiapi.CommandKey(midiapi.NoteOn), midiapi.Event{Command: midiapi.NoteOn, DevKey: devKey})

	require.Eventually(t, func() bool {
		return len(pub.messages()) == 1
	}, time.Second, time.Millisecond)
	msg := pub.messages()[0]
	assert.Equal(t, "studio/Novation/Launchkey_Mk3_25/1/control-change/0/7", msg.topic)

	var payload Payload
	require.NoError(t, json.Unmarshal(msg.payload, &payload))
	assert.Equal(t, devKey.String(), payload.Key)
	assert.Equal(t, "control-change", payload.Command)
	assert.Equal(t, uint8(127), payload.Data2)
	assert.Equal(t, 1.0, payload.Value)
	assert.True(t, ts.Equal(payload.Timestamp))

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, b.Subscribers(midiapi.CommandKey(midiapi.ControlChange)))
}

func TestMirrorSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	mirror, err := New(zaptest.NewLogger(t), nil, pub, Config{})
	require.NoError(t, err)

	mirror.handle(context.Background(), midiapi.Event{Command: midiapi.NoteOn, DevKey: devKey})
	assert.Len(t, pub.messages(), 1)
}

func TestNewRejectsUnknownCommand(t *testing.T) {
	_, err := New(zaptest.NewLogger(t), nil, &fakePublisher{}, Config{Commands: []string{"clock"}})
	assert.Error(t, err)
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Broker: "tcp://localhost:1883"}.Enabled())
}
