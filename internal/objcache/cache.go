// Package objcache memoizes remote object lookups with a TTL, a bounded
// LRU and an optional JSON snapshot on disk.
package objcache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/llehouerou/sonicsync/internal/fsutil"
	"github.com/llehouerou/sonicsync/internal/worker"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Fetcher loads the value for key from the remote source.
type Fetcher[V any] func(ctx context.Context, key string) (V, error)

// Config describes one cache instance.
type Config struct {
	Name       string
	MaxEntries int
	TTL        time.Duration
	Path       string        // snapshot file; empty keeps the cache in memory
	Queue      *worker.Queue // background populates; nil fetches inline
	Logger     *zap.Logger
}

type entry[V any] struct {
	Value     V         `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache is a TTL and size bounded memoization layer.
type Cache[V any] struct {
	cfg    Config
	fetch  Fetcher[V]
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries *lru.Cache[string, entry[V]]
	pending map[string]struct{}

	saveMu sync.Mutex
}

// New creates a cache. Call Load to restore a persisted snapshot.
func New[V any](cfg Config, fetch Fetcher[V]) (*Cache[V], error) {
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("objcache %s: max entries must be positive", cfg.Name)
	}
	entries, err := lru.New[string, entry[V]](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("objcache %s: %w", cfg.Name, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache[V]{
		cfg:     cfg,
		fetch:   fetch,
		logger:  logger.With(zap.String("cache", cfg.Name)),
		now:     time.Now,
		entries: entries,
		pending: make(map[string]struct{}),
	}, nil
}

// Get returns the cached value for key. On a miss, a forced call fetches
// synchronously; otherwise a background populate is queued and Get
// returns false.
func (c *Cache[V]) Get(ctx context.Context, key string, force bool) (V, bool) {
	if v, ok := c.lookup(key); ok {
		return v, true
	}

	if force || c.cfg.Queue == nil {
		return c.populate(ctx, key)
	}

	c.enqueue(key)
	var zero V
	return zero, false
}

// Set stores value under key and persists the snapshot.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.entries.Add(key, entry[V]{Value: value, FetchedAt: c.now()})
	c.mu.Unlock()

	if err := c.Save(); err != nil {
		c.logger.Error("save snapshot", zap.Error(err))
	}
}

// Remove drops key from the cache.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	c.entries.Remove(key)
	c.mu.Unlock()
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e) {
		c.entries.Remove(key)
		var zero V
		return zero, false
	}
	return e.Value, true
}

func (c *Cache[V]) expired(e entry[V]) bool {
	return c.cfg.TTL > 0 && c.now().Sub(e.FetchedAt) > c.cfg.TTL
}

func (c *Cache[V]) enqueue(key string) {
	c.mu.Lock()
	if _, ok := c.pending[key]; ok {
		c.mu.Unlock()
		return
	}
	c.pending[key] = struct{}{}
	c.mu.Unlock()

	submitted := c.cfg.Queue.Submit(func(ctx context.Context) {
		defer c.clearPending(key)
		if _, ok := c.lookup(key); ok {
			return
		}
		c.populate(ctx, key)
	})
	if !submitted {
		c.clearPending(key)
	}
}

func (c *Cache[V]) clearPending(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

func (c *Cache[V]) populate(ctx context.Context, key string) (V, bool) {
	v, err := c.fetch(ctx, key)
	if err != nil {
		c.logger.Warn("fetch failed", zap.String("key", key), zap.Error(err))
		var zero V
		return zero, false
	}
	c.Set(key, v)
	return v, true
}

// Load restores the snapshot file, skipping expired entries.
// A zero-byte file is treated as absent and removed.
func (c *Cache[V]) Load() error {
	if c.cfg.Path == "" {
		return nil
	}

	data, err := fsutil.ReadSnapshot(c.cfg.Path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if data == nil {
		return nil
	}

	var stored map[string]entry[V]
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	keys := make([]string, 0, len(stored))
	for k, e := range stored {
		if !c.expired(e) {
			keys = append(keys, k)
		}
	}
	// Oldest first so the most recently fetched entries survive eviction.
	slices.SortFunc(keys, func(a, b string) int {
		return stored[a].FetchedAt.Compare(stored[b].FetchedAt)
	})

	c.mu.Lock()
	for _, k := range keys {
		c.entries.Add(k, stored[k])
	}
	n := c.entries.Len()
	c.mu.Unlock()

	c.logger.Debug("snapshot loaded", zap.Int("entries", n))
	return nil
}

// Save overwrites the snapshot file with the current entries.
func (c *Cache[V]) Save() error {
	if c.cfg.Path == "" {
		return nil
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	snapshot := make(map[string]entry[V], c.entries.Len())
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok {
			snapshot[k] = e
		}
	}
	c.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return fsutil.WriteFileAtomic(c.cfg.Path, data)
}
