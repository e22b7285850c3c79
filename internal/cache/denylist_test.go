package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDenylist(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewLocalDenylist()
	d.now = func() time.Time { return now }

	require.NoError(t, d.Revoke(ctx, "a", now.Add(time.Hour)))
	require.NoError(t, d.Revoke(ctx, "stale", now.Add(-time.Hour)))

	revoked, err := d.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = d.IsRevoked(ctx, "stale")
	assert.False(t, revoked)

	revoked, _ = d.IsRevoked(ctx, "unknown")
	assert.False(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, _ = d.IsRevoked(ctx, "a")
	assert.False(t, revoked)
	assert.Empty(t, d.entries)
	assert.Equal(t, "local", d.Status())
}

func TestRedisDenylistDegradesToLocal(t *testing.T) {
	ctx := context.Background()
	// nothing listens on this port; the breaker starts open
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	cs := newCacheService(client)
	defer cs.Close()

	d := NewRedisDenylist(cs)
	assert.Equal(t, "degraded", d.Status())

	require.NoError(t, d.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))

	revoked, err := d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = d.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestCacheServiceBreaker(t *testing.T) {
	cs := newCacheService(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	defer cs.Close()

	cs.recordSuccess()
	assert.True(t, cs.IsHealthy())

	for i := 0; i < cs.maxFailures; i++ {
		cs.recordFailure()
	}
	assert.False(t, cs.IsHealthy())
	assert.Equal(t, cs.maxFailures, cs.GetStats().FailureCount)

	_, err := cs.Exists(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.Equal(t, "auth:revoked:abc", RevokedTokenKey("abc"))
}
