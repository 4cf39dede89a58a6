package midisvc

import (
	"context"
	"fmt"

	"github.com/neuroplastio/neio-midi/midiapi"
	"go.uber.org/zap"
)

// Discover enumerates ports of the given kind, drops duplicate handles (the last report
// wins, the first position is kept) and assigns each survivor the next ordinal of its
// vendor/name/description namespace.
func (s *Service) Discover(kind midiapi.Kind) ([]midiapi.Descriptor, error) {
	raw, err := s.enumerate(kind)
	if err != nil {
		return nil, err
	}
	unique := dedupByHandle(raw)
	descs := make([]midiapi.Descriptor, 0, len(unique))
	for _, r := range unique {
		if s.excluded(r) {
			s.log.Debug("port excluded", zap.String("name", r.Name), zap.Stringer("kind", kind))
			continue
		}
		descs = append(descs, s.describe(kind, r))
	}
	return descs, nil
}

func (s *Service) enumerate(kind midiapi.Kind) ([]midiapi.RawDevice, error) {
	var (
		raw []midiapi.RawDevice
		err error
	)
	if kind == midiapi.KindReceiver {
		raw, err = s.transport.Sinks()
	} else {
		raw, err = s.transport.Sources()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s ports: %w", kind, err)
	}
	return raw, nil
}

// describe returns the descriptor of a port. A port keeps the ordinal it got when first
// observed unless its namespace changed since.
func (s *Service) describe(kind midiapi.Kind, raw midiapi.RawDevice) midiapi.Descriptor {
	ns := midiapi.DeviceNamespace(kind, raw)
	desc, _ := s.described.Compute(portKey{kind: kind, handle: raw.Handle},
		func(prev midiapi.Descriptor, loaded bool) (midiapi.Descriptor, bool) {
			if loaded && midiapi.DeviceNamespace(kind, prev.RawDevice) == ns {
				return midiapi.NewDescriptor(raw, kind, prev.Ordinal), false
			}
			return midiapi.NewDescriptor(raw, kind, s.ordinals.NextOrdinal(ns)), false
		})
	if s.options.history != nil {
		if _, err := s.options.history.Record(desc, s.now()); err != nil {
			s.log.Warn("failed to record device history", zap.String("handle", raw.Handle), zap.Error(err))
		}
	}
	return desc
}

func (s *Service) excluded(raw midiapi.RawDevice) bool {
	for _, re := range s.options.exclude {
		if re.MatchString(raw.Name) {
			return true
		}
	}
	return false
}

func dedupByHandle(raw []midiapi.RawDevice) []midiapi.RawDevice {
	index := make(map[string]int, len(raw))
	out := make([]midiapi.RawDevice, 0, len(raw))
	for _, r := range raw {
		if i, ok := index[r.Handle]; ok {
			out[i] = r
			continue
		}
		index[r.Handle] = len(out)
		out = append(out, r)
	}
	return out
}

// AttachListeners opens every source and routes its messages onto the bus. Sources that
// cannot be opened or listened to are logged and left out of the result.
func (s *Service) AttachListeners(ctx context.Context, descs []midiapi.Descriptor) []midiapi.Descriptor {
	attached := make([]midiapi.Descriptor, 0, len(descs))
	for _, d := range descs {
		if err := s.attachListener(ctx, d); err != nil {
			s.log.Warn("failed to attach listener, dropping device",
				zap.Stringer("key", s.FullDeviceKey(d)), zap.Error(err))
			continue
		}
		attached = append(attached, d)
	}
	return attached
}

func (s *Service) attachListener(ctx context.Context, d midiapi.Descriptor) error {
	in, err := s.transport.OpenInput(d.RawDevice)
	if err != nil {
		return fmt.Errorf("error opening input: %w", err)
	}
	err = in.Listen(func(msg midiapi.Message) {
		s.Route(ctx, d, msg)
	}, func(data []byte) {
		s.RouteSysex(ctx, d, data)
	})
	if err != nil {
		if cerr := in.Close(); cerr != nil {
			s.log.Debug("failed to close input after listen error", zap.Error(cerr))
		}
		return fmt.Errorf("error attaching listener: %w", err)
	}
	s.inputs.Store(d.Handle, in)
	return nil
}

// AttachReceivers opens every receiver for sending. Receivers that fail to open are logged
// and left out of the result.
func (s *Service) AttachReceivers(descs []midiapi.Descriptor) []midiapi.Descriptor {
	opened := make([]midiapi.Descriptor, 0, len(descs))
	for _, d := range descs {
		out, err := s.transport.OpenOutput(d.RawDevice)
		if err != nil {
			s.log.Warn("failed to open receiver, dropping it",
				zap.Stringer("key", s.FullDeviceKey(d)), zap.Error(err))
			continue
		}
		s.outputs.Store(d.Handle, out)
		opened = append(opened, d)
	}
	return opened
}

// Rescan enumerates ports again and connects only the ones not seen before. Known ports keep
// their descriptors and ordinals; ports that disappeared stay in the snapshot.
func (s *Service) Rescan(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	s.rescanMu.Lock()
	defer s.rescanMu.Unlock()

	added := 0
	for _, kind := range []midiapi.Kind{midiapi.KindSource, midiapi.KindReceiver} {
		raw, err := s.enumerate(kind)
		if err != nil {
			return err
		}
		current := s.connected(kind)
		known := make(map[string]struct{}, len(current))
		for _, d := range current {
			known[d.Handle] = struct{}{}
		}
		var fresh []midiapi.Descriptor
		for _, r := range dedupByHandle(raw) {
			if _, ok := known[r.Handle]; ok || s.excluded(r) {
				continue
			}
			fresh = append(fresh, s.describe(kind, r))
		}
		if len(fresh) == 0 {
			continue
		}
		var attached []midiapi.Descriptor
		if kind == midiapi.KindReceiver {
			attached = s.AttachReceivers(fresh)
		} else {
			attached = s.AttachListeners(ctx, fresh)
		}
		next := make([]midiapi.Descriptor, 0, len(current)+len(attached))
		next = append(next, current...)
		next = append(next, attached...)
		if kind == midiapi.KindReceiver {
			s.receivers.Store(&next)
		} else {
			s.devices.Store(&next)
		}
		added += len(attached)
	}
	s.log.Info("MIDI rescan finished", zap.Int("added", added))
	return nil
}
