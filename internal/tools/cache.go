package tools

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheSize   = 256
	defaultCacheTTL    = 15 * time.Minute
	defaultCallTimeout = 2 * time.Minute
)

// CacheConfig configures a Cached tool.
type CacheConfig struct {
	// Size is the maximum number of cached queries.
	Size int
	// TTL is how long a cached result stays valid.
	TTL time.Duration
	// CallTimeout bounds one shared call to the wrapped tool.
	CallTimeout time.Duration
}

// Cached wraps a tool with an expiring LRU result cache. Concurrent
// identical queries share one underlying call, which is detached from any
// single caller's cancellation. Errors are never cached.
type Cached struct {
	inner   Tool
	cache   *expirable.LRU[string, string]
	group   singleflight.Group
	timeout time.Duration
}

// NewCached wraps inner. Zero config values fall back to defaults.
func NewCached(inner Tool, cfg CacheConfig) *Cached {
	if cfg.Size <= 0 {
		cfg.Size = defaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Cached{
		inner:   inner,
		cache:   expirable.NewLRU[string, string](cfg.Size, nil, cfg.TTL),
		timeout: cfg.CallTimeout,
	}
}

// Name implements Tool.
func (c *Cached) Name() string { return c.inner.Name() }

// Description implements Tool.
func (c *Cached) Description() string { return c.inner.Description() }

// Call implements Tool. A caller whose ctx ends stops waiting; the shared
// call keeps running for the others.
func (c *Cached) Call(ctx context.Context, query string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(query))

	if out, ok := c.cache.Get(key); ok {
		return out, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		out, err := c.inner.Call(callCtx, query)
		if err != nil {
			return "", err
		}
		c.cache.Add(key, out)
		return out, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Len returns the number of cached entries.
func (c *Cached) Len() int {
	return c.cache.Len()
}
