package ordinal

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextOrdinalPerNamespace(t *testing.T) {
	g := New()
	assert.Equal(t, 0, g.NextOrdinal("a"))
	assert.Equal(t, 1, g.NextOrdinal("a"))
	assert.Equal(t, 0, g.NextOrdinal("b"))
	assert.Equal(t, 2, g.NextOrdinal("a"))
}

func TestNextOrdinalConcurrent(t *testing.T) {
	g := New()
	const n = 200
	results := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.NextOrdinal("shared")
		}(i)
	}
	wg.Wait()
	sort.Ints(results)
	for i, v := range results {
		assert.Equal(t, i, v)
	}
}
