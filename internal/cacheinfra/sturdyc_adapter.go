package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc cache adapter.
// It encapsulates the core sturdyc options needed for cache initialization.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int `toml:"capacity" env:"CAPACITY"`

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0.
	NumShards int `toml:"shards" env:"SHARDS"`

	// TTL is the default time-to-live for cached entries.
	// Must be greater than 0.
	TTL time.Duration `toml:"ttl" env:"TTL"`

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int `toml:"eviction_percentage" env:"EVICTION_PERCENTAGE"`

	// EarlyRefresh configures early refresh behavior for cached entries.
	// If nil, early refresh is disabled.
	EarlyRefresh *EarlyRefreshConfig `toml:"early_refresh"`

	// MissingRecordStorage remembers keys whose fetch reported sturdyc.ErrNotFound.
	MissingRecordStorage bool `toml:"missing_record_storage" env:"MISSING_RECORD_STORAGE"`

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration `toml:"eviction_interval" env:"EVICTION_INTERVAL"`
}

// EarlyRefreshConfig configures early refresh behavior.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration `toml:"min_async_refresh"`
	MaxAsyncRefreshTime time.Duration `toml:"max_async_refresh"`
	SyncRefreshTime     time.Duration `toml:"sync_refresh"`
	RetryBaseDelay      time.Duration `toml:"retry_base_delay"`
}

// DefaultConfig returns the configuration used for mapping metadata.
// Class metadata is immutable once built, so entries live long and are
// never refreshed in the background.
func DefaultConfig() Config {
	return Config{
		Capacity:           1024,
		NumShards:          16,
		TTL:                time.Hour,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards, TTL, and EvictionPercentage are passed directly
// to sturdyc.New() and are not included in the options.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}

	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if r := c.EarlyRefresh; r != nil {
		if r.MinAsyncRefreshTime < 0 || r.MaxAsyncRefreshTime < 0 || r.SyncRefreshTime < 0 || r.RetryBaseDelay < 0 {
			return &ConfigError{Field: "EarlyRefresh", Message: "durations must be non-negative"}
		}
		if r.MinAsyncRefreshTime > r.MaxAsyncRefreshTime {
			return &ConfigError{Field: "EarlyRefresh.MinAsyncRefreshTime", Message: "must not exceed MaxAsyncRefreshTime"}
		}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// FetchFn loads a value when it is missing from the cache.
type FetchFn[V any] func(ctx context.Context) (V, error)

// Cache is a typed sturdyc client.
type Cache[V any] struct {
	client *sturdyc.Client[V]
}

// New validates cfg and builds a typed cache.
func New[V any](cfg Config) (*Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[V](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &Cache[V]{client: client}, nil
}

// GetOrFetch returns the cached value for key, calling fetchFn on a miss.
// Concurrent misses for the same key share a single fetchFn call.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetchFn FetchFn[V]) (V, error) {
	if fetchFn == nil {
		var zero V
		return zero, &ConfigError{Field: "fetchFn", Message: "cannot be nil"}
	}
	return c.client.GetOrFetch(ctx, key, sturdyc.FetchFn[V](fetchFn))
}

// Get returns the cached value for key without fetching.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.client.Get(key)
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	c.client.Set(key, value)
}

// Delete removes a single entry.
func (c *Cache[V]) Delete(key string) {
	c.client.Delete(key)
}

// DeleteByPrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (c *Cache[V]) DeleteByPrefix(prefix string) int {
	removed := 0
	for _, key := range c.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			c.client.Delete(key)
			removed++
		}
	}
	return removed
}

// Keys lists the keys currently held.
func (c *Cache[V]) Keys() []string {
	return c.client.ScanKeys()
}

// Len reports the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.client.Size()
}
