// Package mqttmirror republishes routed MIDI events to an MQTT broker.
package mqttmirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/neuroplastio/neio-midi/midiapi"
	"github.com/neuroplastio/neio-midi/pkg/bus"
	"go.uber.org/zap"
)

const defaultTopicPrefix = "neio-midi"

var defaultCommands = []midiapi.Command{
	midiapi.NoteOn,
	midiapi.NoteOff,
	midiapi.ControlChange,
	midiapi.ProgramChange,
	midiapi.PitchBend,
}

// Publisher is the part of the MQTT client the mirror needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Subscriber is the part of the event bus the mirror needs.
type Subscriber interface {
	Subscribe(key midiapi.Key, id string, mode bus.Mode, handler bus.Handler[midiapi.Event])
	Unsubscribe(id string) bool
}

type Payload struct {
	Key       string    `json:"key"`
	Command   string    `json:"command"`
	Channel   uint8     `json:"channel"`
	Data1     uint8     `json:"data1"`
	Data2     uint8     `json:"data2"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type Mirror struct {
	log      *zap.Logger
	bus      Subscriber
	pub      Publisher
	prefix   string
	commands []midiapi.Command
	ready    chan struct{}
}

// New builds a mirror for the command classes named in cfg, or a default set when none are.
func New(log *zap.Logger, bus Subscriber, pub Publisher, cfg Config) (*Mirror, error) {
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	commands := defaultCommands
	if len(cfg.Commands) > 0 {
		commands = make([]midiapi.Command, 0, len(cfg.Commands))
		for _, name := range cfg.Commands {
			cmd, err := midiapi.ParseCommand(name)
			if err != nil {
				return nil, err
			}
			commands = append(commands, cmd)
		}
	}
	return &Mirror{
		log:      log,
		bus:      bus,
		pub:      pub,
		prefix:   prefix,
		commands: commands,
		ready:    make(chan struct{}),
	}, nil
}

func subscriptionID(cmd midiapi.Command) string {
	return "mqttmirror:" + cmd.String()
}

// Start mirrors events until ctx is cancelled.
func (m *Mirror) Start(ctx context.Context) error {
	for _, cmd := range m.commands {
		m.bus.Subscribe(midiapi.CommandKey(cmd), subscriptionID(cmd), bus.ModePool, m.handle)
	}
	close(m.ready)
	m.log.Info("MQTT mirror started", zap.String("prefix", m.prefix))
	<-ctx.Done()
	for _, cmd := range m.commands {
		m.bus.Unsubscribe(subscriptionID(cmd))
	}
	return nil
}

func (m *Mirror) Ready() <-chan struct{} {
	return m.ready
}

func (m *Mirror) handle(_ context.Context, ev midiapi.Event) {
	payload, err := json.Marshal(Payload{
		Key:       ev.DevKey.String(),
		Command:   ev.Command.String(),
		Channel:   ev.Channel,
		Data1:     ev.Data1,
		Data2:     ev.Data2,
		Value:     ev.Data2F,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		m.log.Error("failed to marshal event", zap.Error(err))
		return
	}
	topic := Topic(m.prefix, ev)
	if err := m.pub.Publish(topic, payload); err != nil {
		m.log.Warn("failed to mirror event", zap.String("topic", topic), zap.Error(err))
	}
}

// Topic is prefix/vendor/name/ordinal/command/channel/data1. Characters with a meaning in MQTT
// topic filters are replaced.
func Topic(prefix string, ev midiapi.Event) string {
	parts := []string{prefix}
	// [tag vendor name description ordinal]
	for _, i := range []int{1, 2, 4} {
		seg := ev.DevKey.Segment(i)
		if seg.Kind() == midiapi.SegmentInt {
			parts = append(parts, strconv.Itoa(seg.Number()))
		} else {
			parts = append(parts, sanitize(seg.Text()))
		}
	}
	parts = append(parts,
		ev.Command.String(),
		fmt.Sprint(ev.Channel),
		fmt.Sprint(ev.Data1),
	)
	return strings.Join(parts, "/")
}

var topicReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_")

func sanitize(s string) string {
	s = topicReplacer.Replace(s)
	if s == "" {
		return "_"
	}
	return s
}
