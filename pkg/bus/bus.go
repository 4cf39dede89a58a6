package bus

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type key interface {
	comparable
}

type message interface {
	any
}

// Mode selects how a subscription receives messages.
type Mode uint8

const (
	// ModePool hands messages to the shared worker pool. No ordering is guaranteed.
	ModePool Mode = iota
	// ModeSync runs the handler on the publishing goroutine, so messages from one publisher
	// arrive in the order they were published. Handlers must be fast and never block.
	ModeSync
	// ModeOnce behaves like ModeSync but fires at most once and then removes itself.
	ModeOnce
)

func (m Mode) String() string {
	switch m {
	case ModePool:
		return "pool"
	case ModeSync:
		return "sync"
	case ModeOnce:
		return "once"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

type Handler[M message] func(ctx context.Context, msg M)

type Publisher[M message] func(ctx context.Context, msg M)

type subscription[K key, M message] struct {
	id      string
	key     K
	mode    Mode
	handler Handler[M]
	fired   *atomic.Bool
}

type task[K key, M message] struct {
	sub *subscription[K, M]
	msg M
}

type busOptions struct {
	concurrency int
	queueSize   int
}

var defaultOptions = busOptions{
	concurrency: 4,
	queueSize:   1024,
}

type Option func(*busOptions)

func WithConcurrency(n int) Option {
	return func(o *busOptions) {
		o.concurrency = n
	}
}

func WithQueueSize(n int) Option {
	return func(o *busOptions) {
		o.queueSize = n
	}
}

// Bus is a topic bus. Subscriptions are registered under a caller-chosen id; subscribing
// again with the same id replaces the previous subscription.
type Bus[K key, M message] struct {
	log     *zap.Logger
	options busOptions
	ready   chan struct{}

	tasks   chan task[K, M]
	keySubs *xsync.MapOf[K, []*subscription[K, M]]
	ids     *xsync.MapOf[string, *subscription[K, M]]
}

func NewBus[K key, M message](logger *zap.Logger, opts ...Option) *Bus[K, M] {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.queueSize < 0 {
		options.queueSize = 0
	}
	return &Bus[K, M]{
		log:     logger,
		options: options,
		ready:   make(chan struct{}),

		tasks:   make(chan task[K, M], options.queueSize),
		keySubs: xsync.NewMapOf[K, []*subscription[K, M]](),
		ids:     xsync.NewMapOf[string, *subscription[K, M]](),
	}
}

// Start launches the worker pool. Workers stop when ctx is cancelled.
func (b *Bus[K, M]) Start(ctx context.Context) error {
	if b.options.concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	for i := 0; i < b.options.concurrency; i++ {
		b.startWorker(ctx)
	}
	close(b.ready)
	return nil
}

func (b *Bus[K, M]) startWorker(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-b.tasks:
				if !b.active(t.sub) {
					continue
				}
				b.invoke(ctx, t.sub, t.msg)
			}
		}
	}()
}

func (b *Bus[K, M]) Ready() <-chan struct{} {
	return b.ready
}

// Publish delivers msg to every subscription on key. Synchronous subscriptions run before
// Publish returns; pool subscriptions are queued, blocking only while the queue is full.
func (b *Bus[K, M]) Publish(ctx context.Context, key K, msg M) {
	subs, ok := b.keySubs.Load(key)
	if !ok {
		return
	}
	for _, sub := range subs {
		switch sub.mode {
		case ModeSync:
			b.invoke(ctx, sub, msg)
		case ModeOnce:
			if !sub.fired.CompareAndSwap(false, true) {
				continue
			}
			b.remove(sub)
			b.invoke(ctx, sub, msg)
		default:
			select {
			case <-ctx.Done():
				return
			case b.tasks <- task[K, M]{sub: sub, msg: msg}:
			}
		}
	}
}

func (b *Bus[K, M]) CreatePublisher(key K) Publisher[M] {
	return func(ctx context.Context, msg M) {
		b.Publish(ctx, key, msg)
	}
}

func (b *Bus[K, M]) Subscribe(key K, id string, mode Mode, handler Handler[M]) {
	sub := &subscription[K, M]{
		id:      id,
		key:     key,
		mode:    mode,
		handler: handler,
		fired:   atomic.NewBool(false),
	}
	if prev, loaded := b.ids.LoadAndStore(id, sub); loaded {
		b.detach(prev)
	}
	b.keySubs.Compute(key, func(subs []*subscription[K, M], _ bool) ([]*subscription[K, M], bool) {
		next := make([]*subscription[K, M], 0, len(subs)+1)
		next = append(next, subs...)
		next = append(next, sub)
		return next, false
	})
}

// Unsubscribe removes the subscription registered under id. It reports whether one existed.
func (b *Bus[K, M]) Unsubscribe(id string) bool {
	sub, ok := b.ids.LoadAndDelete(id)
	if !ok {
		return false
	}
	b.detach(sub)
	return true
}

// Subscribers returns the number of subscriptions currently registered on key.
func (b *Bus[K, M]) Subscribers(key K) int {
	subs, _ := b.keySubs.Load(key)
	return len(subs)
}

func (b *Bus[K, M]) active(sub *subscription[K, M]) bool {
	cur, ok := b.ids.Load(sub.id)
	return ok && cur == sub
}

// remove drops sub only if its id still points at it.
func (b *Bus[K, M]) remove(sub *subscription[K, M]) {
	b.ids.Compute(sub.id, func(cur *subscription[K, M], loaded bool) (*subscription[K, M], bool) {
		return cur, !loaded || cur == sub
	})
	b.detach(sub)
}

func (b *Bus[K, M]) detach(sub *subscription[K, M]) {
	b.keySubs.Compute(sub.key, func(subs []*subscription[K, M], loaded bool) ([]*subscription[K, M], bool) {
		if !loaded {
			return nil, true
		}
		next := make([]*subscription[K, M], 0, len(subs))
		for _, s := range subs {
			if s != sub {
				next = append(next, s)
			}
		}
		return next, len(next) == 0
	})
}

func (b *Bus[K, M]) invoke(ctx context.Context, sub *subscription[K, M], msg M) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("subscription handler panicked",
				zap.String("id", sub.id),
				zap.Stringer("mode", sub.mode),
				zap.Any("panic", r))
		}
	}()
	sub.handler(ctx, msg)
}
