package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityCache_TickResetsEveryN(t *testing.T) {
	c := NewEntityCache(0, 3)
	resets := 0
	c.OnReset(func() { resets++ })

	c.Put(CacheKey{Kind: KindVenue, Value: "water research"}, 1)
	assert.False(t, c.Tick())
	assert.False(t, c.Tick())
	assert.Equal(t, 1, c.Len())

	assert.True(t, c.Tick())
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, c.Resets())
	assert.Equal(t, 1, resets)

	_, ok := c.Get(CacheKey{Kind: KindVenue, Value: "water research"})
	assert.False(t, ok)
}

func TestEntityCache_MaxEntriesClearsWholesale(t *testing.T) {
	c := NewEntityCache(2, 0)
	c.Put(CacheKey{Kind: KindContributor, Value: "a"}, 1)
	c.Put(CacheKey{Kind: KindContributor, Value: "b"}, 2)
	c.Put(CacheKey{Kind: KindContributor, Value: "c"}, 3)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Resets())
	id, ok := c.Get(CacheKey{Kind: KindContributor, Value: "c"})
	assert.True(t, ok)
	assert.Equal(t, uint(3), id)
}

func TestEntityCache_TagScope(t *testing.T) {
	c := NewEntityCache(10, 0)
	c.Put(CacheKey{Kind: KindTag, Scope: 1, Value: "sludge"}, 7)

	_, ok := c.Get(CacheKey{Kind: KindTag, Scope: 2, Value: "sludge"})
	assert.False(t, ok)
	id, ok := c.Get(CacheKey{Kind: KindTag, Scope: 1, Value: "sludge"})
	assert.True(t, ok)
	assert.Equal(t, uint(7), id)
}
