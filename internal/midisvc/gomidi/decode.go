package gomidi

import (
	"github.com/neuroplastio/neio-midi/midiapi"
	"gitlab.com/gomidi/midi/v2"
)

// Decode converts a gomidi channel message. Note-off keeps its release velocity; note-on with
// velocity 0 is reported as note-off with velocity 0.
// Pitch bend keeps its 14-bit value split into LSB (Data1) and MSB (Data2).
func Decode(msg midi.Message) (midiapi.Message, bool) {
	var (
		channel, data1, data2 uint8
		relative              int16
		absolute              uint16
	)
	switch {
	case msg.GetNoteStart(&channel, &data1, &data2):
		return message(midiapi.NoteOn, channel, data1, data2), true
	case msg.GetNoteOff(&channel, &data1, &data2):
		return message(midiapi.NoteOff, channel, data1, data2), true
	case msg.GetNoteEnd(&channel, &data1):
		return message(midiapi.NoteOff, channel, data1, 0), true
	case msg.GetControlChange(&channel, &data1, &data2):
		return message(midiapi.ControlChange, channel, data1, data2), true
	case msg.GetPolyAfterTouch(&channel, &data1, &data2):
		return message(midiapi.PolyPressure, channel, data1, data2), true
	case msg.GetProgramChange(&channel, &data1):
		return message(midiapi.ProgramChange, channel, data1, 0), true
	case msg.GetAfterTouch(&channel, &data1):
		return message(midiapi.ChannelPressure, channel, data1, 0), true
	case msg.GetPitchBend(&channel, &relative, &absolute):
		return message(midiapi.PitchBend, channel, uint8(absolute&0x7f), uint8(absolute>>7)), true
	}
	return midiapi.Message{}, false
}

func message(cmd midiapi.Command, channel, data1, data2 uint8) midiapi.Message {
	return midiapi.Message{
		Command: cmd,
		Channel: channel,
		Data1:   data1,
		Data2:   data2,
	}
}
