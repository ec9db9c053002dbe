// Package cache stores short-lived byte values such as explorer listings.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/config"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a TTL key/value store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// New builds the cache selected by cfg. A redis backend that fails to answer
// PING is replaced by the in-memory cache.
func New(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Driver), "redis") {
		rc, err := NewRedis(ctx, cfg.RedisURL, ttl)
		if err == nil {
			return rc
		}
		logger.Warn("redis unavailable, using memory cache", zap.Error(err))
	}
	return NewMemory(ttl)
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process cache with lazy expiry.
type Memory struct {
	mu         sync.RWMutex
	items      map[string]memEntry
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemory returns an empty in-memory cache.
func NewMemory(defaultTTL time.Duration) *Memory {
	return &Memory{items: make(map[string]memEntry), defaultTTL: defaultTTL, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mu.Lock()
	m.items[key] = memEntry{value: stored, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Redis is a cache backed by a redis server.
type Redis struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// NewRedis connects to url and verifies the connection.
func NewRedis(ctx context.Context, url string, defaultTTL time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, defaultTTL: defaultTTL}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, defaultTTL time.Duration) *Redis {
	return &Redis{client: client, defaultTTL: defaultTTL}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
