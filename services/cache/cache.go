package cache

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"sjsage522/hotissueworker/logger"
)

// ErrCacheMiss is returned by MemoryCache when a key is absent or expired
var ErrCacheMiss = errors.New("cache: miss")

// CacheService represents a generic cache service
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// RateLimitGuard remembers which sites told us to back off. A nil guard or a
// guard without a cache never blocks.
type RateLimitGuard struct {
	svc          CacheService
	defaultBlock time.Duration
}

// NewRateLimitGuard creates a guard storing blocks in svc
func NewRateLimitGuard(svc CacheService, defaultBlock time.Duration) *RateLimitGuard {
	return &RateLimitGuard{svc: svc, defaultBlock: defaultBlock}
}

func blockKey(site string) string {
	return site + "_rate_limited"
}

// Blocked reports whether site is inside a block window
func (g *RateLimitGuard) Blocked(site string) bool {
	if g == nil || g.svc == nil {
		return false
	}
	_, err := g.svc.Get(blockKey(site))
	return err == nil
}

// Block stores a block for site. A non-positive d uses the default block time.
func (g *RateLimitGuard) Block(site string, d time.Duration) error {
	if g == nil || g.svc == nil {
		return nil
	}
	if d <= 0 {
		d = g.defaultBlock
	}
	if err := g.svc.Set(blockKey(site), []byte(strconv.Itoa(int(d/time.Second))), d); err != nil {
		return err
	}
	logger.ForCache().Warn().Str("site", site).Dur("block", d).Msg("Site rate limited")
	return nil
}

// MemoryCache is an in-process CacheService used when no memcache server is configured
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

// Get retrieves a value that has not expired yet
func (m *MemoryCache) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		delete(m.items, key)
		return nil, ErrCacheMiss
	}
	return item.value, nil
}

// Set stores a value; a non-positive expiration never expires
func (m *MemoryCache) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryItem{value: append([]byte(nil), value...)}
	if expiration > 0 {
		item.expires = m.now().Add(expiration)
	}
	m.items[key] = item
	return nil
}

// Delete removes a value
func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
