package imagegen

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cache stores generated banners on disk, one file per band.
type Cache struct {
	dir    string
	maxAge time.Duration
}

// NewCache creates a banner cache in dir. Banners older than 30 days are
// treated as missing so they get regenerated.
func NewCache(dir string) *Cache {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("imagegen: could not create cache directory: %v", err)
	}
	return &Cache{
		dir:    dir,
		maxAge: 30 * 24 * time.Hour,
	}
}

func (c *Cache) path(band Band) string {
	return filepath.Join(c.dir, fmt.Sprintf("banner_%s.png", band))
}

// Get returns the cached banner for band if it exists and is fresh.
func (c *Cache) Get(band Band) ([]byte, bool) {
	path := c.path(band)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}

	if time.Since(info.ModTime()) > c.maxAge {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	return data, true
}

func (c *Cache) Set(band Band, data []byte) error {
	return os.WriteFile(c.path(band), data, 0644)
}

// List returns the bands that have a banner on disk, fresh or not.
func (c *Cache) List() []Band {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil
	}

	var bands []Band
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "banner_") || filepath.Ext(name) != ".png" {
			continue
		}
		if b, err := ParseBand(strings.TrimSuffix(strings.TrimPrefix(name, "banner_"), ".png")); err == nil {
			bands = append(bands, b)
		}
	}
	return bands
}

// CardCache keeps rendered share cards in memory for a short period.
type CardCache struct {
	mu      sync.RWMutex
	entries map[string]cardEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

type cardEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewCardCache(ttl time.Duration) *CardCache {
	return NewCardCacheWithClock(ttl, clockwork.NewRealClock())
}

// NewCardCacheWithClock is NewCardCache with an explicit time source.
func NewCardCacheWithClock(ttl time.Duration, clock clockwork.Clock) *CardCache {
	return &CardCache{
		entries: make(map[string]cardEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// CardKey identifies a card by the source it was computed from and the date.
func CardKey(sourceHash string, date time.Time) string {
	return sourceHash + ":" + date.Format("2006-01-02")
}

func (c *CardCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.clock.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

// Set stores a card, evicting any entries that have already expired.
func (c *CardCache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cardEntry{data: data, expiresAt: now.Add(c.ttl)}
}

// Clear drops every cached card.
func (c *CardCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cardEntry)
}
