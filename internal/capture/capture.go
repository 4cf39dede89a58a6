// Package capture resolves the next event of a kind exactly once, which is how controls get
// assigned by moving them ("MIDI learn").
package capture

import (
	"context"
	"fmt"

	"github.com/neuroplastio/neio-midi/midiapi"
	"github.com/neuroplastio/neio-midi/pkg/bus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Subscriber is the part of the event bus the service needs.
type Subscriber interface {
	Subscribe(key midiapi.Key, id string, mode bus.Mode, handler bus.Handler[midiapi.Event])
	Unsubscribe(id string) bool
}

type ControlInput struct {
	Controller int         `json:"controller" yaml:"controller"`
	Value      int         `json:"value" yaml:"value"`
	Key        midiapi.Key `json:"key" yaml:"key"`
}

type NoteInput struct {
	Note     int         `json:"note" yaml:"note"`
	Velocity int         `json:"velocity" yaml:"velocity"`
	Key      midiapi.Key `json:"key" yaml:"key"`
}

type Service struct {
	log  *zap.Logger
	bus  Subscriber
	next *atomic.Uint64
}

func New(log *zap.Logger, bus Subscriber) *Service {
	return &Service{
		log:  log,
		bus:  bus,
		next: atomic.NewUint64(0),
	}
}

// NextControlInput waits for the next control change from any device. Key is set to the
// device event key of the sender when includeKey is true.
func (s *Service) NextControlInput(ctx context.Context, includeKey bool) (ControlInput, error) {
	ev, err := s.nextEvent(ctx, midiapi.ControlChange)
	if err != nil {
		return ControlInput{}, err
	}
	input := ControlInput{
		Controller: ev.Controller(),
		Value:      ev.Value(),
	}
	if includeKey {
		input.Key = midiapi.DeviceEventKey(ev.DevKey, ev.Command)
	}
	return input, nil
}

// NextControllerKey returns the device event key of the next control change.
func (s *Service) NextControllerKey(ctx context.Context) (midiapi.Key, error) {
	input, err := s.NextControlInput(ctx, true)
	if err != nil {
		return midiapi.Key{}, err
	}
	return input.Key, nil
}

// NextControllerControlKey returns the key of the exact control that moved next.
func (s *Service) NextControllerControlKey(ctx context.Context) (midiapi.Key, error) {
	input, err := s.NextControlInput(ctx, true)
	if err != nil {
		return midiapi.Key{}, err
	}
	return input.Key.Append(midiapi.Int(input.Controller)), nil
}

// NextNote waits for the next note-on from any device.
func (s *Service) NextNote(ctx context.Context) (NoteInput, error) {
	ev, err := s.nextEvent(ctx, midiapi.NoteOn)
	if err != nil {
		return NoteInput{}, err
	}
	return NoteInput{
		Note:     ev.Note(),
		Velocity: int(ev.Velocity),
		Key:      midiapi.ControlEventKey(ev.DevKey, ev.Command, ev.Note()),
	}, nil
}

func (s *Service) nextEvent(ctx context.Context, cmd midiapi.Command) (midiapi.Event, error) {
	id := fmt.Sprintf("capture:%d", s.next.Inc())
	result := make(chan midiapi.Event, 1)
	s.bus.Subscribe(midiapi.CommandKey(cmd), id, bus.ModeOnce, func(_ context.Context, ev midiapi.Event) {
		result <- ev
	})
	s.log.Debug("Waiting for event", zap.String("id", id), zap.Stringer("command", cmd))
	select {
	case ev := <-result:
		return ev, nil
	case <-ctx.Done():
		s.bus.Unsubscribe(id)
		select {
		case ev := <-result:
			return ev, nil
		default:
		}
		return midiapi.Event{}, ctx.Err()
	}
}
