package midiapi

import (
	"time"

	"github.com/neuroplastio/neio-midi/pkg/bus"
)

// Message is a decoded channel message as delivered by a transport.
type Message struct {
	Command   Command
	Channel   uint8
	Data1     uint8
	Data2     uint8
	Timestamp time.Time
}

// Event is what gets published on the bus for every incoming message.
type Event struct {
	Command   Command    `json:"command"`
	Channel   uint8      `json:"channel"`
	Data1     uint8      `json:"data1"`
	Data2     uint8      `json:"data2"`
	Velocity  uint8      `json:"velocity"`
	Data2F    float64    `json:"data2F"`
	VelocityF float64    `json:"velocityF"`
	DevKey    Key        `json:"devKey"`
	Device    Descriptor `json:"-"`
	Timestamp time.Time  `json:"timestamp"`
	SysEx     []byte     `json:"sysex,omitempty"`
}

func (e Event) Note() int {
	return int(e.Data1)
}

func (e Event) Controller() int {
	return int(e.Data1)
}

func (e Event) Value() int {
	return int(e.Data2)
}

type (
	EventBus     = bus.Bus[Key, Event]
	EventHandler = bus.Handler[Event]
)
