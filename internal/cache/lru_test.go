package cache

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_GetSet(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", "1")
	c.Set("b", "2")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	// "b" is now least recently used.
	c.Set("c", "3")
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Size())

	c.Set("a", "updated")
	v, _ = c.Get("a")
	assert.Equal(t, "updated", v)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 2, stats.Entries)
}

func TestLRUCache_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)
	now = now.Add(30 * time.Second)
	c.Set("c", 3)

	now = now.Add(45 * time.Second)
	_, ok := c.Get("a")
	assert.False(t, ok, "expired on read")
	assert.Equal(t, 1, c.CleanExpired(), "b expired, c still fresh")
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_DisabledAndDelete(t *testing.T) {
	off := NewLRUCache[int](0, time.Minute)
	off.Set("a", 1)
	assert.Zero(t, off.Size())

	c := NewLRUCache[int](10, time.Minute)
	for i := 0; i < 5; i++ {
		c.Set("alice|"+strconv.Itoa(i), i)
	}
	c.Set("bob|0", 0)
	c.Delete("alice|0")
	assert.Equal(t, 3, c.DeletePrefix("alice|"))
	assert.Equal(t, 1, c.Size())
}

func TestManager(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Second)
	c.now = func() time.Time { return now }
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, m.CleanNow())

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()

	idle := NewManager()
	idle.Stop()
}
