package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 5, 0, 0, 0, time.UTC)
	mc := NewMemoryCache()
	mc.now = func() time.Time { return now }

	assert.NoError(t, mc.Set("k", []byte("v"), time.Minute))
	v, err := mc.Get("k")
	assert.NoError(t, err)
	assert.Equal(t, "v", string(v))

	now = now.Add(time.Minute)
	_, err = mc.Get("k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, mc.Set("forever", []byte("x"), 0))
	now = now.Add(24 * time.Hour)
	_, err = mc.Get("forever")
	assert.NoError(t, err)

	assert.NoError(t, mc.Delete("forever"))
	_, err = mc.Get("forever")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRateLimitGuard(t *testing.T) {
	now := time.Date(2025, 3, 1, 5, 0, 0, 0, time.UTC)
	mc := NewMemoryCache()
	mc.now = func() time.Time { return now }

	guard := NewRateLimitGuard(mc, 500*time.Second)
	assert.False(t, guard.Blocked("ppomppu_freeboard"))

	assert.NoError(t, guard.Block("ppomppu_freeboard", 0))
	assert.True(t, guard.Blocked("ppomppu_freeboard"))
	assert.False(t, guard.Blocked("clien_park"))

	raw, err := mc.Get("ppomppu_freeboard_rate_limited")
	assert.NoError(t, err)
	assert.Equal(t, "500", string(raw))

	now = now.Add(501 * time.Second)
	assert.False(t, guard.Blocked("ppomppu_freeboard"))

	var disabled *RateLimitGuard
	assert.False(t, disabled.Blocked("any"))
	assert.NoError(t, disabled.Block("any", time.Second))
	assert.False(t, NewRateLimitGuard(nil, time.Second).Blocked("any"))
}
