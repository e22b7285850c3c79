package cache

import (
	"context"
	"sync"
	"time"
)

// Denylist records revoked token ids until their natural expiry
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Status is "redis", "degraded" or "local"
	Status() string
}

// LocalDenylist keeps revocations in process memory
type LocalDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewLocalDenylist() *LocalDenylist {
	return &LocalDenylist{entries: make(map[string]time.Time), now: time.Now}
}

// SetClock replaces the time source used for expiry
func (d *LocalDenylist) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

func (d *LocalDenylist) Revoke(_ context.Context, jti string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, exp := range d.entries {
		if !exp.After(now) {
			delete(d.entries, id)
		}
	}
	if until.After(now) {
		d.entries[jti] = until
	}
	return nil
}

func (d *LocalDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.entries[jti]
	if !ok {
		return false, nil
	}
	if !exp.After(d.now()) {
		delete(d.entries, jti)
		return false, nil
	}
	return true, nil
}

func (d *LocalDenylist) Status() string {
	return "local"
}

// RedisDenylist stores revocations in Redis and mirrors them locally, so
// lookups keep working in this process while the breaker is open.
type RedisDenylist struct {
	cache *CacheService
	local *LocalDenylist
}

func NewRedisDenylist(cs *CacheService) *RedisDenylist {
	return &RedisDenylist{cache: cs, local: NewLocalDenylist()}
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	if err := d.local.Revoke(ctx, jti, until); err != nil {
		return err
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := d.cache.Set(ctx, RevokedTokenKey(jti), "1", ttl); err != nil {
		d.cache.log.Warn("Token revocation not shared, kept locally", "error", err)
	}
	return nil
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if revoked, _ := d.local.IsRevoked(ctx, jti); revoked {
		return true, nil
	}
	revoked, err := d.cache.Exists(ctx, RevokedTokenKey(jti))
	if err != nil {
		// Redis down: fall back to what this process has seen
		return false, nil
	}
	return revoked, nil
}

func (d *RedisDenylist) Status() string {
	if d.cache.IsHealthy() {
		return "redis"
	}
	return "degraded"
}
