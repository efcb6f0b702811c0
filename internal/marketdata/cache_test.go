package marketdata

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfund/meridian/internal/domain"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := newMemoryCache()
	in := []domain.Price{
		{Time: "2026-08-26", Open: 100, High: 105, Low: 99, Close: 104, Volume: 1200},
	}
	c.set("prices:AAPL", in, time.Minute)

	var out []domain.Price
	require.True(t, c.get("prices:AAPL", &out))
	require.Len(t, out, 1)
	assert.Equal(t, "2026-08-26", out[0].Time)
	assert.Equal(t, 104.0, out[0].Close)
}

func TestMemoryCacheMiss(t *testing.T) {
	c := newMemoryCache()
	var out []domain.Price
	assert.False(t, c.get("prices:MSFT", &out))
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := newMemoryCache()
	c.set("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	var out string
	assert.False(t, c.get("k", &out))

	// Expired entry is evicted, not just skipped.
	c.mu.RLock()
	_, ok := c.entries["k"]
	c.mu.RUnlock()
	assert.False(t, ok)
}

func TestDiskCacheRoundTrip(t *testing.T) {
	c := newDiskCache(t.TempDir(), zerolog.Nop())
	require.NotNil(t, c)

	in := map[string]float64{"return_on_equity": 0.21}
	c.set("metrics:AAPL", in, time.Minute)

	var out map[string]float64
	require.True(t, c.get("metrics:AAPL", &out))
	assert.Equal(t, 0.21, out["return_on_equity"])
}

func TestDiskCacheExpiredEntryIsRemoved(t *testing.T) {
	c := newDiskCache(t.TempDir(), zerolog.Nop())
	require.NotNil(t, c)

	c.set("stale", "v", -time.Second)

	var out string
	assert.False(t, c.get("stale", &out))
	_, err := os.Stat(c.path("stale"))
	assert.True(t, os.IsNotExist(err))
}

func TestDiskCacheCorruptEntryIsRemoved(t *testing.T) {
	c := newDiskCache(t.TempDir(), zerolog.Nop())
	require.NotNil(t, c)

	require.NoError(t, os.WriteFile(c.path("bad"), []byte("not msgpack"), 0644))

	var out string
	assert.False(t, c.get("bad", &out))
	_, err := os.Stat(c.path("bad"))
	assert.True(t, os.IsNotExist(err))
}
