// Package cache provides Redis-backed state shared between API instances.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BLINK-sys/Printer-WEB-APIServer/config"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

// ErrUnavailable is returned while the circuit breaker is open
var ErrUnavailable = errors.New("redis unavailable (circuit breaker open)")

// CacheService wraps a Redis client with graceful degradation.
// After maxFailures consecutive errors the breaker opens and calls fail fast
// with ErrUnavailable until a background ping succeeds.
type CacheService struct {
	client       *redis.Client
	log          *logging.Logger
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// Key prefixes
const (
	PrefixRevokedToken = "auth:revoked:%s"
)

// NewCacheService connects to Redis. An unreachable server yields a
// service in degraded mode rather than an error.
func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	cs := newCacheService(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		cs.log.Warn("Initial Redis connection failed, running degraded", "address", cfg.Address, "error", err)
		return cs, nil
	}

	cs.healthy = true
	cs.lastCheck = time.Now()
	cs.log.Info("Redis connected", "address", cfg.Address)
	return cs, nil
}

func newCacheService(client *redis.Client) *CacheService {
	return &CacheService{
		client:        client,
		log:           logging.WithComponent("cache"),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}
}

// IsHealthy returns whether Redis is currently available
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.healthy
}

func (cs *CacheService) recordFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		if cs.healthy {
			cs.log.Warnf("Circuit breaker open after %d failures", cs.failureCount)
		}
		cs.healthy = false
	}
}

func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.healthy {
		cs.log.Info("Circuit breaker closed, Redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
	cs.lastCheck = time.Now()
}

// checkHealth pings in the background when the breaker has been open long enough
func (cs *CacheService) checkHealth() {
	cs.mu.Lock()
	shouldCheck := !cs.healthy && time.Since(cs.lastCheck) >= cs.checkInterval
	if shouldCheck {
		cs.lastCheck = time.Now()
	}
	cs.mu.Unlock()

	if !shouldCheck {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cs.client.Ping(ctx).Err(); err == nil {
			cs.recordSuccess()
		}
	}()
}

// Set stores a value with TTL
func (cs *CacheService) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return ErrUnavailable
	}

	if err := cs.client.Set(ctx, key, value, ttl).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}
	cs.recordSuccess()
	return nil
}

// Exists reports whether key is present
func (cs *CacheService) Exists(ctx context.Context, key string) (bool, error) {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return false, ErrUnavailable
	}

	n, err := cs.client.Exists(ctx, key).Result()
	if err != nil {
		cs.recordFailure()
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	cs.recordSuccess()
	return n > 0, nil
}

// Delete removes a key
func (cs *CacheService) Delete(ctx context.Context, key string) error {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return ErrUnavailable
	}

	if err := cs.client.Del(ctx, key).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis delete failed: %w", err)
	}
	cs.recordSuccess()
	return nil
}

// Ping checks connectivity and updates the breaker
func (cs *CacheService) Ping(ctx context.Context) error {
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.recordFailure()
		return err
	}
	cs.recordSuccess()
	return nil
}

// Close closes the Redis connection
func (cs *CacheService) Close() error {
	if cs.client != nil {
		return cs.client.Close()
	}
	return nil
}

// Stats is a snapshot of the breaker state
type Stats struct {
	Healthy      bool      `json:"healthy"`
	FailureCount int       `json:"failure_count"`
	LastCheck    time.Time `json:"last_check"`
}

// GetStats returns the breaker state
func (cs *CacheService) GetStats() Stats {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return Stats{Healthy: cs.healthy, FailureCount: cs.failureCount, LastCheck: cs.lastCheck}
}

// RevokedTokenKey returns the Redis key marking a token id as revoked
func RevokedTokenKey(jti string) string {
	return fmt.Sprintf(PrefixRevokedToken, jti)
}
