package id

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorMonotonicSameMillisecond(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	g := NewSeeded(42, func() time.Time { return fixed })

	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		ids = append(ids, g.New())
	}

	assert.True(t, sort.StringsAreSorted(ids))
	for i := 1; i < len(ids); i++ {
		require.NotEqual(t, ids[i-1], ids[i])
	}
}

func TestGeneratorConcurrentUnique(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	g := NewGenerator()
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s := g.New()
				mu.Lock()
				seen[s] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 8*200)
	for s := range seen {
		assert.Len(t, s, 26)
		break
	}
}
