package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLRUEvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry must go")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUExpiry(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, time.Minute, WithClock(clk.Now))
	c.Set("k", "v")
	c.Set("other", "v")

	clk.Advance(30 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clk.Advance(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestLRUWithoutTTLKeepsEntries(t *testing.T) {
	clk := &clock{now: time.Now()}
	c := NewLRUCache[int](10, 0, WithClock(clk.Now))
	c.Set("k", 1)
	clk.Advance(24 * time.Hour)
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestSetIfGenerationDropsRacedResult(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	gen := c.Generation()

	c.Invalidate("page:1")

	assert.False(t, c.SetIfGeneration("page:1", 42, gen))
	_, ok := c.Get("page:1")
	assert.False(t, ok)

	assert.True(t, c.SetIfGeneration("page:1", 43, c.Generation()))
	v, _ := c.Get("page:1")
	assert.Equal(t, 43, v)
}

func TestInvalidatePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("stats:2025-01", 1)
	c.Set("stats:2025-02", 2)
	c.Set("budget", 3)

	assert.Equal(t, 2, c.InvalidatePrefix("stats:"))
	assert.Equal(t, 1, c.Size())

	before := c.Generation()
	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Greater(t, c.Generation(), before)
}

func TestManagerClearAllAndStop(t *testing.T) {
	a := NewLRUCache[int](10, time.Minute)
	b := NewLRUCache[string](10, time.Minute)
	a.Set("x", 1)
	b.Set("y", "z")

	m := NewManager(nil)
	m.Register(a, b)
	m.StartCleanup(time.Millisecond)
	m.ClearAll()
	m.Stop()
	m.Stop()

	assert.Equal(t, 0, a.Size())
	assert.Equal(t, 0, b.Size())
}
