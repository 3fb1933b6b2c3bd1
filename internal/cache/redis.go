// Package cache is an optional Redis cache for transform outputs. Keys and
// values are derived exclusively from de-identified text: the cached
// completion still contains [CATEGORY_N] placeholders, and token tables never
// enter the cache, so re-identification stays strictly per-request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Config contains cache configuration.
type Config struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// Stats reports cache performance counters.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// CompletionCache caches transform outputs keyed by a digest of the
// de-identified prompt.
type CompletionCache struct {
	client *redis.Client
	cfg    *Config
	logger *zap.Logger
	hits   int64
	misses int64
}

// New creates a Redis-backed completion cache and verifies connectivity.
func New(cfg *Config, logger *zap.Logger) (*CompletionCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	c := &CompletionCache{
		client: redis.NewClient(opts),
		cfg:    cfg,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Completion cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Duration("default_ttl", cfg.DefaultTTL),
	)
	return c, nil
}

// Key derives the cache key from the system instruction and the cleaned
// prompt. Both strings are PHI-free by the time they reach here.
func (c *CompletionCache) Key(system, cleaned string) string {
	h := sha256.New()
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(cleaned))
	digest := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("%s:cmp:%s", c.cfg.KeyPrefix, digest[:32])
}

// Get returns a cached completion. Any Redis failure degrades to a miss.
func (c *CompletionCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return "", false
	}
	if err != nil {
		c.logger.Warn("Cache lookup failed", zap.Error(err))
		atomic.AddInt64(&c.misses, 1)
		return "", false
	}
	atomic.AddInt64(&c.hits, 1)
	c.logger.Debug("Cache hit", zap.String("key", key))
	return val, true
}

// Put stores a completion with the configured TTL.
func (c *CompletionCache) Put(ctx context.Context, key, completion string) error {
	if err := c.client.Set(ctx, key, completion, c.cfg.DefaultTTL).Err(); err != nil {
		c.logger.Warn("Cache store failed", zap.Error(err))
		return fmt.Errorf("failed to cache completion: %w", err)
	}
	return nil
}

// Clear removes all cached completions under the configured prefix.
func (c *CompletionCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.cfg.KeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Stats returns hit/miss counters.
func (c *CompletionCache) Stats() Stats {
	s := Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total) * 100
	}
	return s
}

// Close closes the Redis connection.
func (c *CompletionCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// maskRedisURL masks credentials in a Redis URL for logging.
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at == -1 {
		return url
	}
	scheme := strings.Index(url, "://")
	if scheme == -1 || scheme+3 > at {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}
