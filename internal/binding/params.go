package binding

import "github.com/puzpuzpuz/xsync/v3"

// Params is the shared parameter state written by bindings. Safe for concurrent use.
type Params struct {
	values *xsync.MapOf[string, float64]
}

func NewParams() *Params {
	return &Params{
		values: xsync.NewMapOf[string, float64](),
	}
}

func (p *Params) Get(name string) (float64, bool) {
	return p.values.Load(name)
}

func (p *Params) Set(name string, value float64) {
	p.values.Store(name, value)
}

// Snapshot copies the current values.
func (p *Params) Snapshot() map[string]float64 {
	out := make(map[string]float64, p.values.Size())
	p.values.Range(func(name string, value float64) bool {
		out[name] = value
		return true
	})
	return out
}
