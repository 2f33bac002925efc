package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCreatesOnFirstUse(t *testing.T) {
	r := New()

	id := r.Resolve("Debug Screen")
	assert.Equal(t, "debug-screen", id)

	screens := r.Screens()
	require.Len(t, screens, 2)
	assert.Equal(t, DefaultScreen, screens[0].ID)
	assert.Equal(t, "Debug Screen", screens[1].Label)

	// Second resolve must not duplicate.
	assert.Equal(t, id, r.Resolve("debug screen"))
	assert.Len(t, r.Screens(), 2)
}

func TestResolveEmptyUsesCurrent(t *testing.T) {
	r := New()
	assert.Equal(t, DefaultScreen, r.Resolve(""))

	r.SwitchTo("Queries")
	assert.Equal(t, "queries", r.Resolve(""))
	assert.Equal(t, "queries", r.Current())
}

func TestLockExclusivity(t *testing.T) {
	r := New()

	assert.True(t, r.Acquire("pause", "host-a"))
	assert.False(t, r.Acquire("pause", "host-b"), "held lock must fail fast")

	lock, ok := r.Lock("pause")
	require.True(t, ok)
	assert.Equal(t, "host-a", lock.Holder)

	assert.True(t, r.Release("pause"))
	assert.False(t, r.Release("pause"))
	assert.True(t, r.Acquire("pause", "host-b"))
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	r := New()

	const attempts = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if r.Acquire("contended", "holder") {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one concurrent acquire may succeed")
}

func TestResetRestoresDefault(t *testing.T) {
	r := New()
	r.SwitchTo("Other")
	r.Acquire("pause", "host")

	r.Reset()

	assert.Equal(t, DefaultScreen, r.Current())
	assert.Len(t, r.Screens(), 1)
	assert.False(t, r.Active("pause"))
}
