// Package binding turns control-change events into named, scaled parameters.
package binding

import (
	"context"
	"fmt"
	"sort"

	"github.com/neuroplastio/neio-midi/midiapi"
	"github.com/neuroplastio/neio-midi/pkg/bus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Param describes where a controller value goes and how it is scaled.
type Param struct {
	Name  string
	Scale ScaleFunc
}

// Mapping is keyed by controller number.
type Mapping map[int]Param

// Handler is called with every scaled parameter update.
type Handler func(name string, value float64)

// Subscriber is the part of the event bus the service needs.
type Subscriber interface {
	Subscribe(key midiapi.Key, id string, mode bus.Mode, handler bus.Handler[midiapi.Event])
	Unsubscribe(id string) bool
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

// Bind subscribes to control-change events of every device. For each controller present in
// mapping it stores the scaled value in state and then calls handler. It returns the
// subscription id to pass to Unbind.
func (s *Service) Bind(state *Params, handler Handler, mapping Mapping) string {
	id := fmt.Sprintf("binding:%d", s.next.Inc())
	s.bus.Subscribe(midiapi.CommandKey(midiapi.ControlChange), id, bus.ModePool, func(_ context.Context, ev midiapi.Event) {
		param, ok := mapping[ev.Controller()]
		if !ok {
			return
		}
		scale := param.Scale
		if scale == nil {
			scale = Identity
		}
		value := scale(ev.Value())
		state.Set(param.Name, value)
		if handler != nil {
			handler(param.Name, value)
		}
	})
	s.log.Debug("Binding created", zap.String("id", id), zap.Int("controllers", len(mapping)))
	return id
}

// Unbind removes a binding. It reports whether the binding existed.
func (s *Service) Unbind(id string) bool {
	return s.bus.Unsubscribe(id)
}

// Config is the file representation of a mapping, keyed by controller number.
type Config map[int]ParamConfig

type ParamConfig struct {
	Name  string `json:"name"`
	Scale string `json:"scale,omitempty"`
}

// MappingFromConfig parses every scale expression of cfg.
func MappingFromConfig(cfg Config) (Mapping, error) {
	controllers := make([]int, 0, len(cfg))
	for cc := range cfg {
		controllers = append(controllers, cc)
	}
	sort.Ints(controllers)

	mapping := make(Mapping, len(cfg))
	for _, cc := range controllers {
		pc := cfg[cc]
		if cc < 0 || cc > 127 {
			return nil, fmt.Errorf("controller %d out of range", cc)
		}
		if pc.Name == "" {
			return nil, fmt.Errorf("controller %d: missing parameter name", cc)
		}
		scale, err := ParseScale(pc.Scale)
		if err != nil {
			return nil, fmt.Errorf("controller %d: %w", cc, err)
		}
		mapping[cc] = Param{Name: pc.Name, Scale: scale}
	}
	return mapping, nil
}
