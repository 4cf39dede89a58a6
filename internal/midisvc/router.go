package midisvc

import (
	"context"

	"github.com/neuroplastio/neio-midi/midiapi"
)

const maxDataValue = 127.0

// Route publishes msg from device d on the command key, the device key, the control event
// key and the device event key, in that order.
func (s *Service) Route(ctx context.Context, d midiapi.Descriptor, msg midiapi.Message) {
	devKey := s.FullDeviceKey(d)
	normalized := float64(msg.Data2) / maxDataValue
	ev := midiapi.Event{
		Command:   msg.Command,
		Channel:   msg.Channel,
		Data1:     msg.Data1,
		Data2:     msg.Data2,
		Velocity:  msg.Data2,
		Data2F:    normalized,
		VelocityF: normalized,
		DevKey:    devKey,
		Device:    d,
		Timestamp: msg.Timestamp,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	s.publisher.Publish(ctx, midiapi.CommandKey(msg.Command), ev)
	s.publisher.Publish(ctx, devKey, ev)
	s.publisher.Publish(ctx, midiapi.ControlEventKey(devKey, msg.Command, int(msg.Data1)), ev)
	s.publisher.Publish(ctx, midiapi.DeviceEventKey(devKey, msg.Command), ev)
}

// RouteSysex publishes a system exclusive message once, on the device sysex key.
func (s *Service) RouteSysex(ctx context.Context, d midiapi.Descriptor, data []byte) {
	devKey := s.FullDeviceKey(d)
	s.publisher.Publish(ctx, midiapi.SysexKey(devKey), midiapi.Event{
		Command:   midiapi.SysEx,
		DevKey:    devKey,
		Device:    d,
		Timestamp: s.now(),
		SysEx:     data,
	})
}
