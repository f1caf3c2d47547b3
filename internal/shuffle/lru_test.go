package shuffle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRU_GetMissOnEmptyCache(t *testing.T) {
	c := newLRU(2)
	_, ok := c.get("x")
	assert.False(t, ok)
}

func TestLRU_PutThenGetRoundTrips(t *testing.T) {
	c := newLRU(2)
	c.put("a", true)
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.True(t, v)
}

func TestLRU_EvictsLeastRecentlyUsedWhenOverCapacity(t *testing.T) {
	c := newLRU(2)
	c.put("a", true)
	c.put("b", false)
	c.put("c", true) // evicts "a", the least recently touched

	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestLRU_GetRefreshesRecency(t *testing.T) {
	c := newLRU(2)
	c.put("a", true)
	c.put("b", false)
	c.get("a")        // touch "a" so "b" becomes least recently used
	c.put("c", true) // evicts "b"

	_, ok := c.get("b")
	assert.False(t, ok)
	_, ok = c.get("a")
	assert.True(t, ok)
}

func TestLRU_PutOverwritesExistingKeyWithoutGrowing(t *testing.T) {
	c := newLRU(2)
	c.put("a", true)
	c.put("a", false)
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.False(t, v)
}

func TestLRU_NonPositiveCapacityNormalizesToOne(t *testing.T) {
	c := newLRU(0)
	c.put("a", true)
	c.put("b", true)
	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)
}
