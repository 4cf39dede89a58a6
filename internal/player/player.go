// Package player manages poly players: note-on/note-off handler pairs registered under a key.
package player

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/neuroplastio/neio-midi/midiapi"
	"github.com/neuroplastio/neio-midi/pkg/bus"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var ErrInvalidArgument = errors.New("invalid argument")

// DefaultKey is used by StartDefault and StopDefault.
var DefaultKey = midiapi.NewKey(midiapi.Keyword("default"))

var idPrefix = midiapi.NewKey(midiapi.Keyword(":poly-player"))

// Subscriber is the part of the event bus the registry needs.
type Subscriber interface {
	Subscribe(key midiapi.Key, id string, mode bus.Mode, handler bus.Handler[midiapi.Event])
	Unsubscribe(id string) bool
}

type NoteHandler func(ctx context.Context, ev midiapi.Event)

type Player struct {
	key   midiapi.Key
	onID  string
	offID string
	live  *atomic.Bool
}

func (p *Player) Key() midiapi.Key {
	return p.key
}

// Live reports whether the player still receives notes.
func (p *Player) Live() bool {
	return p.live.Load()
}

type startOptions struct {
	onTopic  midiapi.Key
	offTopic midiapi.Key
}

type StartOption func(*startOptions)

// WithTopics subscribes the player to the given keys instead of the note-on and note-off
// events of every device.
func WithTopics(on, off midiapi.Key) StartOption {
	return func(o *startOptions) {
		o.onTopic = on
		o.offTopic = off
	}
}

type Registry struct {
	log     *zap.Logger
	bus     Subscriber
	players *xsync.MapOf[midiapi.Key, *Player]
}

func NewRegistry(log *zap.Logger, bus Subscriber) *Registry {
	return &Registry{
		log:     log,
		bus:     bus,
		players: xsync.NewMapOf[midiapi.Key, *Player](),
	}
}

// Start registers a player under key, stopping any player already registered there.
func (r *Registry) Start(key midiapi.Key, on, off NoteHandler, opts ...StartOption) (*Player, error) {
	if key.IsZero() || key.Len()+2 > midiapi.MaxKeySegments {
		return nil, fmt.Errorf("%w: player key %s", ErrInvalidArgument, key)
	}
	if on == nil || off == nil {
		return nil, fmt.Errorf("%w: nil note handler", ErrInvalidArgument)
	}
	options := startOptions{
		onTopic:  midiapi.CommandKey(midiapi.NoteOn),
		offTopic: midiapi.CommandKey(midiapi.NoteOff),
	}
	for _, opt := range opts {
		opt(&options)
	}
	base := idPrefix.Concat(key)
	p := &Player{
		key:   key,
		onID:  base.Append(midiapi.NoteOn.Keyword()).String(),
		offID: base.Append(midiapi.NoteOff.Keyword()).String(),
		live:  atomic.NewBool(true),
	}
	r.players.Compute(key, func(prev *Player, loaded bool) (*Player, bool) {
		if loaded {
			r.release(prev)
		}
		r.bus.Subscribe(options.onTopic, p.onID, bus.ModePool, p.guard(on))
		r.bus.Subscribe(options.offTopic, p.offID, bus.ModePool, p.guard(off))
		return p, false
	})
	r.log.Info("Player started", zap.Stringer("key", key))
	return p, nil
}

func (r *Registry) StartDefault(on, off NoteHandler, opts ...StartOption) (*Player, error) {
	return r.Start(DefaultKey, on, off, opts...)
}

// Stop accepts a *Player or a midiapi.Key; nil stops the default player. Stopping something
// that is not registered is a no-op. A player that was already replaced under its key is only
// marked as not live.
func (r *Registry) Stop(target any) error {
	switch t := target.(type) {
	case nil:
		return r.StopDefault()
	case *Player:
		if t == nil {
			return fmt.Errorf("%w: nil player", ErrInvalidArgument)
		}
		r.players.Compute(t.key, func(cur *Player, loaded bool) (*Player, bool) {
			if !loaded {
				t.live.Store(false)
				return nil, true
			}
			if cur != t {
				t.live.Store(false)
				return cur, false
			}
			r.release(cur)
			return nil, true
		})
	case midiapi.Key:
		r.players.Compute(t, func(cur *Player, loaded bool) (*Player, bool) {
			if loaded {
				r.release(cur)
			}
			return nil, true
		})
	default:
		return fmt.Errorf("%w: cannot stop %T", ErrInvalidArgument, target)
	}
	return nil
}

func (r *Registry) StopDefault() error {
	return r.Stop(DefaultKey)
}

// Players lists the keys of all registered players.
func (r *Registry) Players() []midiapi.Key {
	keys := make([]midiapi.Key, 0, r.players.Size())
	r.players.Range(func(key midiapi.Key, _ *Player) bool {
		keys = append(keys, key)
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// release unsubscribes p unless it was already released.
func (r *Registry) release(p *Player) {
	if !p.live.CompareAndSwap(true, false) {
		return
	}
	r.bus.Unsubscribe(p.onID)
	r.bus.Unsubscribe(p.offID)
	r.log.Info("Player stopped", zap.Stringer("key", p.key))
}

func (p *Player) guard(h NoteHandler) bus.Handler[midiapi.Event] {
	return func(ctx context.Context, ev midiapi.Event) {
		if !p.live.Load() {
			return
		}
		h(ctx, ev)
	}
}
