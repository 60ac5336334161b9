package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ammiranda/ordered_tree/config"
)

// DefaultTTL is used when no TTL is configured
const DefaultTTL = 5 * time.Minute

// CacheProvider defines the interface for cache implementations.
// It stores serialized trees under a key, one key per hierarchy.
type CacheProvider interface {
	// GetTree retrieves a serialized tree from cache if available.
	// Parameters:
	//   - key: The hierarchy the tree belongs to
	// Returns:
	//   - The serialized tree
	//   - A boolean indicating whether the tree was found in cache
	GetTree(ctx context.Context, key string) ([]byte, bool)

	// SetTree stores a serialized tree in cache.
	SetTree(ctx context.Context, key string, data []byte)

	// InvalidateCache removes the cached tree for key.
	// This is called after every committed mutation of that hierarchy.
	InvalidateCache(ctx context.Context, key string) error

	// SetCacheTTL sets the cache time-to-live duration.
	SetCacheTTL(ttl time.Duration)

	// Initialize performs any necessary setup for the cache provider.
	// This may include establishing connections or creating tables.
	// Returns an error if initialization fails.
	Initialize(ctx context.Context) error
}

// New builds and initializes the provider selected by cfg
func New(ctx context.Context, cfg *config.CacheConfig, logger *slog.Logger) (CacheProvider, error) {
	var provider CacheProvider
	switch cfg.Backend {
	case "", "memory":
		provider = NewMemoryCache()
	case "redis":
		provider = NewRedisCache(cfg.RedisAddr)
	case "dynamodb":
		c, err := NewDynamoDBCache(ctx, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create dynamodb cache: %w", err)
		}
		provider = c
	case "none":
		provider = NewNoopCache()
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}

	if cfg.TTL > 0 {
		provider.SetCacheTTL(cfg.TTL)
	}
	if err := provider.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s cache: %w", cfg.Backend, err)
	}
	logger.Info("cache initialized", "backend", cfg.Backend, "ttl", cfg.TTL)
	return provider, nil
}

// NoopCache never holds anything
type NoopCache struct{}

// NewNoopCache creates a cache that always misses
func NewNoopCache() *NoopCache { return &NoopCache{} }

func (NoopCache) GetTree(context.Context, string) ([]byte, bool) { return nil, false }
func (NoopCache) SetTree(context.Context, string, []byte) {}
func (NoopCache) InvalidateCache(context.Context, string) error { return nil }
func (NoopCache) SetCacheTTL(time.Duration) {}
func (NoopCache) Initialize(context.Context) error { return nil }
