package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockCache is a cache provider that can be used for testing
type MockCache struct {
	mu              sync.RWMutex
	data            map[string][]byte
	ttl             time.Duration
	expiry          map[string]time.Time
	GetTreeCalls    int
	SetTreeCalls    int
	InvalidateCalls int
	SetTTLCalls     int
	InitCalls       int
	ShouldFail      bool
}

// NewMockCache creates a new mock cache provider
func NewMockCache() *MockCache {
	return &MockCache{
		ttl:    DefaultTTL,
		data:   make(map[string][]byte),
		expiry: make(map[string]time.Time),
	}
}

// Initialize performs any necessary setup for the cache provider
func (c *MockCache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InitCalls++
	if c.ShouldFail {
		return ErrCacheInitialization
	}
	return nil
}

// GetTree retrieves the tree from cache if available
func (c *MockCache) GetTree(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GetTreeCalls++

	if c.ShouldFail {
		return nil, false
	}
	data, ok := c.data[key]
	if !ok || time.Now().After(c.expiry[key]) {
		return nil, false
	}
	return data, true
}

// SetTree stores the tree in cache
func (c *MockCache) SetTree(ctx context.Context, key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetTreeCalls++

	if !c.ShouldFail {
		c.data[key] = data
		c.expiry[key] = time.Now().Add(c.ttl)
	}
}

// InvalidateCache removes the tree from cache
func (c *MockCache) InvalidateCache(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InvalidateCalls++

	if c.ShouldFail {
		return ErrCacheInvalidation
	}
	delete(c.data, key)
	delete(c.expiry, key)
	return nil
}

// SetCacheTTL sets the cache time-to-live duration
func (c *MockCache) SetCacheTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetTTLCalls++

	if !c.ShouldFail {
		c.ttl = ttl
	}
}

// Reset resets all counters and state
func (c *MockCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GetTreeCalls = 0
	c.SetTreeCalls = 0
	c.InvalidateCalls = 0
	c.SetTTLCalls = 0
	c.InitCalls = 0
	c.ShouldFail = false
	c.data = make(map[string][]byte)
	c.expiry = make(map[string]time.Time)
}

// GetCallCounts returns the number of times each method was called
func (c *MockCache) GetCallCounts() (getTree, setTree, invalidate, setTTL, init int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.GetTreeCalls, c.SetTreeCalls, c.InvalidateCalls, c.SetTTLCalls, c.InitCalls
}

// SetShouldFail makes the mock cache fail all operations
func (c *MockCache) SetShouldFail(shouldFail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ShouldFail = shouldFail
}

var (
	// ErrCacheInitialization is returned when the mock cache is configured to fail
	ErrCacheInitialization = errors.New("mock cache initialization failed")
	// ErrCacheInvalidation is returned when the mock cache is configured to fail
	ErrCacheInvalidation = errors.New("mock cache invalidation failed")
)
