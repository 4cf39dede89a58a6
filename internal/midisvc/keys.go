package midisvc

import "github.com/neuroplastio/neio-midi/midiapi"

// FullDeviceKey returns the memoized key of d or, for descriptors that were not produced by
// discovery, derives one using the ordinal of the connected port with the same handle
// (-1 when there is none).
func (s *Service) FullDeviceKey(d midiapi.Descriptor) midiapi.Key {
	if key, ok := d.Key(); ok {
		return key
	}
	ord := -1
	for _, c := range s.connected(d.Kind) {
		if c.Handle == d.Handle {
			ord = c.Ordinal
			break
		}
	}
	return midiapi.DeviceKey(d.Kind, d.Vendor, d.Name, d.Description, ord)
}

func (s *Service) FullDeviceEventKey(d midiapi.Descriptor, cmd midiapi.Command) midiapi.Key {
	return midiapi.DeviceEventKey(s.FullDeviceKey(d), cmd)
}

func (s *Service) FullControlEventKey(d midiapi.Descriptor, cmd midiapi.Command, control int) midiapi.Key {
	return midiapi.ControlEventKey(s.FullDeviceKey(d), cmd, control)
}
