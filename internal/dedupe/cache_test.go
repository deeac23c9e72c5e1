// ABOUTME: Tests for the idempotency-key cache
// ABOUTME: Validates reservation, expiry, release, size bound, sweeping and concurrency safety

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, ttl time.Duration, size int) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(ttl, size)
	c.mu.Lock()
	c.now = clock.Now
	c.mu.Unlock()
	t.Cleanup(c.Close)
	return c, clock
}

func TestCache_ReserveOnce(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	assert.True(t, c.Reserve("k"))
	assert.False(t, c.Reserve("k"), "replay within the window is rejected")
	assert.True(t, c.Seen("k"))
	assert.False(t, c.Seen("other"))
}

func TestCache_ExpiredKeyCanBeReservedAgain(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	assert.True(t, c.Reserve("k"))
	clock.Advance(59 * time.Second)
	assert.True(t, c.Seen("k"))
	clock.Advance(time.Second)
	assert.False(t, c.Seen("k"))
	assert.True(t, c.Reserve("k"))
	assert.Equal(t, 1, c.Len())
}

func TestCache_Release(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	assert.True(t, c.Reserve("k"))
	c.Release("k")
	assert.False(t, c.Seen("k"))
	assert.True(t, c.Reserve("k"), "released key may be retried")

	c.Release("never-reserved")
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	c, clock := newTestCache(t, time.Hour, 3)

	for i := range 3 {
		assert.True(t, c.Reserve(fmt.Sprintf("k%d", i)))
		clock.Advance(time.Second)
	}
	assert.True(t, c.Reserve("k3"))

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("k0"), "oldest evicted")
	assert.True(t, c.Seen("k1"))
	assert.True(t, c.Seen("k3"))
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Reserve("old-1")
	c.Reserve("old-2")
	clock.Advance(30 * time.Second)
	c.Reserve("young")
	clock.Advance(45 * time.Second)

	c.sweep()

	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("young"))
}

func TestCache_ConcurrentReserveGrantsOnce(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 100)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			if c.Reserve("contended") {
				granted.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}

func TestKey_ScopesByUser(t *testing.T) {
	assert.Equal(t, "7:abc", Key(7, "abc"))
	assert.NotEqual(t, Key(1, "abc"), Key(2, "abc"))
}
