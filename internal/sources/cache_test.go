package sources

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

func TestResultCacheRoundTrip(t *testing.T) {
	c := NewResultCache(time.Minute, 10)

	in := []domain.Stock{{Code: "600519", Name: "贵州茅台", Exchange: domain.ExchangeSH}}
	c.Set("list_stocks|all", in)

	var out []domain.Stock
	require.True(t, c.Get("list_stocks|all", &out))
	require.Len(t, out, 1)
	assert.Equal(t, "600519", out[0].Code)

	// The decode is a fresh copy each time.
	out[0].Name = "mutated"
	var again []domain.Stock
	require.True(t, c.Get("list_stocks|all", &again))
	assert.Equal(t, "贵州茅台", again[0].Name)
}

func TestResultCacheMiss(t *testing.T) {
	c := NewResultCache(time.Minute, 10)
	var out []domain.Stock
	assert.False(t, c.Get("nope", &out))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.TotalMisses)
	assert.Equal(t, int64(0), stats.TotalHits)
}

func TestResultCacheExpiry(t *testing.T) {
	c := NewResultCache(10*time.Millisecond, 10)
	c.Set("k", []string{"a"})

	var out []string
	require.True(t, c.Get("k", &out))

	time.Sleep(25 * time.Millisecond)
	assert.False(t, c.Get("k", &out))
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestResultCacheEvictsOldestWhenFull(t *testing.T) {
	c := NewResultCache(time.Minute, 2)

	c.Set("first", 1)
	time.Sleep(2 * time.Millisecond)
	c.Set("second", 2)
	time.Sleep(2 * time.Millisecond)
	c.Set("third", 3)

	var v int
	assert.False(t, c.Get("first", &v))
	assert.True(t, c.Get("second", &v))
	assert.True(t, c.Get("third", &v))

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestResultCacheCapacityChurn(t *testing.T) {
	c := NewResultCache(time.Minute, 5)
	for i := 0; i < 20; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
	assert.Equal(t, 5, c.Stats().Entries)
}
