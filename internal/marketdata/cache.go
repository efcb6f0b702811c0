package marketdata

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// cacheEnvelope wraps a cached payload with its expiry.
type cacheEnvelope struct {
	ExpiresAt time.Time `msgpack:"expires_at"`
	Payload   []byte    `msgpack:"payload"`
}

// memoryCache is a TTL cache keyed by request signature. Values are stored
// msgpack-encoded so both cache layers share one codec.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEnvelope
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		entries: make(map[string]cacheEnvelope),
	}
}

func (c *memoryCache) get(key string, out interface{}) bool {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false
	}

	return msgpack.Unmarshal(entry.Payload, out) == nil
}

func (c *memoryCache) set(key string, value interface{}, ttl time.Duration) {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return
	}

	c.mu.Lock()
	c.entries[key] = cacheEnvelope{
		ExpiresAt: time.Now().Add(ttl),
		Payload:   payload,
	}
	c.mu.Unlock()
}

// diskCache persists cache entries as msgpack files so restarts (and
// backtests over the same window) avoid refetching.
type diskCache struct {
	dir string
	log zerolog.Logger
}

func newDiskCache(dir string, log zerolog.Logger) *diskCache {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Disk cache unavailable")
		return nil
	}
	return &diskCache{
		dir: dir,
		log: log.With().Str("component", "disk_cache").Logger(),
	}
}

// path hashes the key so arbitrary request signatures map to safe filenames.
func (c *diskCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:16])+".msgpack")
}

func (c *diskCache) get(key string, out interface{}) bool {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return false
	}

	var entry cacheEnvelope
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		// Corrupt entry, drop it
		_ = os.Remove(c.path(key))
		return false
	}
	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(c.path(key))
		return false
	}

	return msgpack.Unmarshal(entry.Payload, out) == nil
}

func (c *diskCache) set(key string, value interface{}, ttl time.Duration) {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return
	}

	data, err := msgpack.Marshal(cacheEnvelope{
		ExpiresAt: time.Now().Add(ttl),
		Payload:   payload,
	})
	if err != nil {
		return
	}

	if err := os.WriteFile(c.path(key), data, 0644); err != nil {
		c.log.Warn().Err(err).Msg("Failed to write cache entry")
	}
}
