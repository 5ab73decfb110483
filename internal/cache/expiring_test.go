package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func TestExpiring_GetPut(t *testing.T) {
	clock := newFakeClock()
	c := NewExpiring[string, int](time.Minute, WithClock(clock.Now))

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Put("a", 2)
	v, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v, "put overwrites")
}

func TestExpiring_TTL(t *testing.T) {
	assert.Equal(t, 90*time.Second, NewExpiring[string, int](90*time.Second).TTL())
}

func TestExpiring_ExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	c := NewExpiring[string, int](time.Minute, WithClock(clock.Now))
	c.Put("a", 1)

	clock.Advance(time.Minute)
	_, ok := c.Get("a")
	assert.True(t, ok, "entry exactly ttl old is still valid")

	clock.Advance(time.Nanosecond)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry older than ttl is absent")
	assert.Equal(t, 1, c.Len(), "get does not delete")
}

func TestExpiring_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := NewExpiring[string, int](time.Minute, WithClock(clock.Now))

	c.Put("old", 1)
	clock.Advance(45 * time.Second)
	c.Put("fresh", 2)
	clock.Advance(30 * time.Second)

	removed := c.Sweep(clock.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestExpiring_PutRefreshesTimestamp(t *testing.T) {
	clock := newFakeClock()
	c := NewExpiring[string, int](time.Minute, WithClock(clock.Now))

	c.Put("a", 1)
	clock.Advance(50 * time.Second)
	c.Put("a", 1)
	clock.Advance(50 * time.Second)

	assert.Equal(t, 0, c.Sweep(clock.Now()))
	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestExpiring_Invalidate(t *testing.T) {
	c := NewExpiring[string, int](time.Minute)
	c.Put("a", 1)

	assert.True(t, c.Invalidate("a"))
	assert.False(t, c.Invalidate("a"))
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestExpiring_ConcurrentAccess(t *testing.T) {
	c := NewExpiring[int, int](time.Minute)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := range 200 {
				key := (worker*200 + j) % 50
				c.Put(key, j)
				c.Get(key)
				if j%20 == 0 {
					c.Sweep(time.Now())
				}
				if j%33 == 0 {
					c.Invalidate(key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
