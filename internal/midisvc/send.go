package midisvc

import (
	"fmt"

	"github.com/neuroplastio/neio-midi/midiapi"
	"gitlab.com/gomidi/midi/v2"
)

func (s *Service) SendNoteOn(receiver midiapi.Descriptor, channel, note, velocity uint8) error {
	return s.send(receiver, midi.NoteOn(channel, note, velocity))
}

func (s *Service) SendNoteOff(receiver midiapi.Descriptor, channel, note uint8) error {
	return s.send(receiver, midi.NoteOff(channel, note))
}

func (s *Service) SendControl(receiver midiapi.Descriptor, channel, controller, value uint8) error {
	return s.send(receiver, midi.ControlChange(channel, controller, value))
}

func (s *Service) SendSysex(receiver midiapi.Descriptor, data []byte) error {
	return s.send(receiver, midi.SysEx(data))
}

func (s *Service) send(receiver midiapi.Descriptor, msg midi.Message) error {
	out, err := s.output(receiver)
	if err != nil {
		return err
	}
	if err := out.Send([]byte(msg)); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg, err)
	}
	return nil
}

// output returns the open handle of receiver, opening it on first use.
func (s *Service) output(receiver midiapi.Descriptor) (Output, error) {
	var openErr error
	out, ok := s.outputs.Compute(receiver.Handle, func(cur Output, loaded bool) (Output, bool) {
		if loaded {
			return cur, false
		}
		o, err := s.transport.OpenOutput(receiver.RawDevice)
		if err != nil {
			openErr = err
			return nil, true
		}
		return o, false
	})
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceNotConnected, s.FullDeviceKey(receiver), openErr)
	}
	return out, nil
}
