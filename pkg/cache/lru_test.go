package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLRU(maxSize int, ttl time.Duration) (*LRU[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[string](maxSize, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRU(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"SetAndGet", testSetAndGet},
		{"GetMiss", testGetMiss},
		{"GetExpired", testGetExpired},
		{"EvictsLeastRecentlyUsed", testEvictsLeastRecentlyUsed},
		{"SetUpdatesExisting", testSetUpdatesExisting},
		{"Invalidate", testInvalidate},
		{"ConcurrentAccess", testConcurrentAccess},
		{"Defaults", testDefaults},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testSetAndGet(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)
	c.Set("key1", "value1")

	got, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "value1", got)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Zero(t, misses)
}

func testGetMiss(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)

	got, ok := c.Get("nonexistent")
	assert.False(t, ok)
	assert.Empty(t, got)

	_, misses := c.Stats()
	assert.Equal(t, uint64(1), misses)
}

func testGetExpired(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)
	c.Set("key1", "value1")

	_, ok := c.Get("key1")
	require.True(t, ok)

	clock.t = clock.t.Add(2 * time.Minute)
	_, ok = c.Get("key1")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry is removed on read")
}

func testEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	// Touch a so b becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("c", "3")

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func testSetUpdatesExisting(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)
	c.Set("key1", "old")
	clock.t = clock.t.Add(50 * time.Second)
	c.Set("key1", "new")
	clock.t = clock.t.Add(50 * time.Second)

	got, ok := c.Get("key1")
	require.True(t, ok, "update refreshes the expiry")
	assert.Equal(t, "new", got)
	assert.Equal(t, 1, c.Len())
}

func testInvalidate(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.InvalidateAll()
	assert.Zero(t, c.Len())
	c.Set("c", "3")
	assert.Equal(t, 1, c.Len())
}

func testConcurrentAccess(t *testing.T) {
	c := NewLRU[int](50, time.Minute)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 100 {
				key := fmt.Sprintf("k%d", (i*100+j)%75)
				c.Set(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

func testDefaults(t *testing.T) {
	c := NewLRU[string](0, 0)
	assert.Equal(t, 1, c.maxSize)
	assert.Equal(t, time.Minute, c.ttl)
}
