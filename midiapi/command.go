package midiapi

import "fmt"

// Command is the MIDI message class, stored as the status byte with the channel nibble cleared.
type Command uint8

const (
	NoteOff         Command = 0x80
	NoteOn          Command = 0x90
	PolyPressure    Command = 0xA0
	ControlChange   Command = 0xB0
	ProgramChange   Command = 0xC0
	ChannelPressure Command = 0xD0
	PitchBend       Command = 0xE0
	SysEx           Command = 0xF0
)

var commandNames = map[Command]string{
	NoteOff:         "note-off",
	NoteOn:          "note-on",
	PolyPressure:    "poly-pressure",
	ControlChange:   "control-change",
	ProgramChange:   "program-change",
	ChannelPressure: "channel-pressure",
	PitchBend:       "pitch-bend",
	SysEx:           "sysex",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command-0x%02X", uint8(c))
}

func (c Command) Keyword() Segment {
	return Keyword(c.String())
}

func ParseCommand(s string) (Command, error) {
	for cmd, name := range commandNames {
		if name == s {
			return cmd, nil
		}
	}
	return 0, fmt.Errorf("unknown midi command: %s", s)
}

// Kind tells sources (devices we receive from) apart from receivers (devices we send to).
type Kind uint8

const (
	KindSource Kind = iota
	KindReceiver
)

// Tag is the leading keyword of a full device key.
func (k Kind) Tag() Segment {
	if k == KindReceiver {
		return Keyword("midi-receiver")
	}
	return Keyword("midi-device")
}

func (k Kind) String() string {
	if k == KindReceiver {
		return "receiver"
	}
	return "source"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(data []byte) error {
	switch string(data) {
	case "source":
		*k = KindSource
	case "receiver":
		*k = KindReceiver
	default:
		return fmt.Errorf("unknown device kind: %s", data)
	}
	return nil
}
