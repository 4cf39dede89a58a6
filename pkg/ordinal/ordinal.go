// Package ordinal hands out monotonically increasing integers per namespace.
package ordinal

import (
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

type Generator struct {
	counters *xsync.MapOf[string, *atomic.Int64]
}

func New() *Generator {
	return &Generator{
		counters: xsync.NewMapOf[string, *atomic.Int64](),
	}
}

// NextOrdinal returns 0 on the first call for a namespace and one more on each later call.
// Safe for concurrent use.
func (g *Generator) NextOrdinal(namespace string) int {
	counter, _ := g.counters.LoadOrCompute(namespace, func() *atomic.Int64 {
		return atomic.NewInt64(-1)
	})
	return int(counter.Inc())
}
