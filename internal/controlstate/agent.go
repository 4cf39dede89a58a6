package controlstate

import (
	"context"
	"sync"

	"github.com/neuroplastio/neio-midi/midiapi"
	"go.uber.org/atomic"
)

type update struct {
	fn   func(old int) int
	done chan struct{}
}

// Agent holds the latest value of one control. Updates are applied one at a time, in
// submission order, by a dedicated goroutine; submitting never blocks.
type Agent struct {
	key   midiapi.Key
	value *atomic.Int64

	mu    sync.Mutex
	queue []update
	wake  chan struct{}
	quit  chan struct{}
	once  sync.Once
}

func newAgent(key midiapi.Key) *Agent {
	return &Agent{
		key:   key,
		value: atomic.NewInt64(0),
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
	}
}

func (a *Agent) Key() midiapi.Key {
	return a.key
}

// Value returns the last applied value without waiting for pending updates.
func (a *Agent) Value() int {
	return int(a.value.Load())
}

// Send queues fn to be applied to the current value.
func (a *Agent) Send(fn func(old int) int) {
	a.enqueue(update{fn: fn})
}

// Set queues a replacement of the current value.
func (a *Agent) Set(v int) {
	a.Send(func(int) int {
		return v
	})
}

// Await blocks until every update submitted before the call has been applied.
func (a *Agent) Await(ctx context.Context) error {
	done := make(chan struct{})
	a.enqueue(update{done: done})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) enqueue(u update) {
	a.mu.Lock()
	a.queue = append(a.queue, u)
	a.mu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *Agent) run() {
	for {
		select {
		case <-a.quit:
			return
		case <-a.wake:
		}
		for {
			batch := a.drain()
			if len(batch) == 0 {
				break
			}
			for _, u := range batch {
				a.apply(u)
			}
		}
	}
}

func (a *Agent) drain() []update {
	a.mu.Lock()
	defer a.mu.Unlock()
	batch := a.queue
	a.queue = nil
	return batch
}

func (a *Agent) apply(u update) {
	if u.fn != nil {
		a.value.Store(int64(u.fn(int(a.value.Load()))))
	}
	if u.done != nil {
		close(u.done)
	}
}

func (a *Agent) stop() {
	a.once.Do(func() {
		close(a.quit)
	})
}
