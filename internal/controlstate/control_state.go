// Package controlstate keeps the latest value of individual controls in the order their
// events were routed, regardless of how the rest of the bus is scheduled.
package controlstate

import (
	"context"

	"github.com/neuroplastio/neio-midi/midiapi"
	"github.com/neuroplastio/neio-midi/pkg/bus"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Subscriber is the part of the event bus the service needs.
type Subscriber interface {
	Subscribe(key midiapi.Key, id string, mode bus.Mode, handler bus.Handler[midiapi.Event])
	Unsubscribe(id string) bool
}

type Service struct {
	log    *zap.Logger
	bus    Subscriber
	agents *xsync.MapOf[midiapi.Key, *Agent]
}

func New(log *zap.Logger, bus Subscriber) *Service {
	return &Service{
		log:    log,
		bus:    bus,
		agents: xsync.NewMapOf[midiapi.Key, *Agent](),
	}
}

func subscriptionID(key midiapi.Key) string {
	return "controlstate:" + key.String()
}

// AgentFor returns the agent tracking key, creating it and subscribing it to key on first use.
// Concurrent first calls observe the same agent and only one subscription is installed.
func (s *Service) AgentFor(key midiapi.Key) *Agent {
	agent, _ := s.agents.LoadOrCompute(key, func() *Agent {
		a := newAgent(key)
		go a.run()
		s.bus.Subscribe(key, subscriptionID(key), bus.ModeSync, func(_ context.Context, ev midiapi.Event) {
			a.Set(ev.Value())
		})
		s.log.Debug("Control agent created", zap.Stringer("key", key))
		return a
	})
	return agent
}

// Value returns the last applied value of key, or false when nothing tracks it.
func (s *Service) Value(key midiapi.Key) (int, bool) {
	agent, ok := s.agents.Load(key)
	if !ok {
		return 0, false
	}
	return agent.Value(), true
}

// Keys lists every control being tracked.
func (s *Service) Keys() []midiapi.Key {
	keys := make([]midiapi.Key, 0, s.agents.Size())
	s.agents.Range(func(key midiapi.Key, _ *Agent) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Close unsubscribes and stops every agent.
func (s *Service) Close() {
	s.agents.Range(func(key midiapi.Key, agent *Agent) bool {
		s.bus.Unsubscribe(subscriptionID(key))
		agent.stop()
		s.agents.Delete(key)
		return true
	})
}
