package objcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/sonicsync/internal/worker"
)

type object struct {
	Name string `json:"name"`
}

type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFetcher) fetch(_ context.Context, key string) (object, error) {
	f.calls.Add(1)
	if f.err != nil {
		return object{}, f.err
	}
	return object{Name: "obj:" + key}, nil
}

func newCache(t *testing.T, cfg Config, f *countingFetcher) *Cache[object] {
	t.Helper()
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 10
	}
	c, err := New[object](cfg, f.fetch)
	require.NoError(t, err)
	return c
}

func TestGet_ForcedMissFetchesSynchronously(t *testing.T) {
	f := &countingFetcher{}
	q := worker.NewQueue("test", 4, nil)
	c := newCache(t, Config{Name: "test", Queue: q}, f)

	v, ok := c.Get(context.Background(), "a", true)

	require.True(t, ok)
	assert.Equal(t, "obj:a", v.Name)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 0, q.Len(), "forced miss must not enqueue")
}

func TestGet_NonForcedMissEnqueues(t *testing.T) {
	f := &countingFetcher{}
	q := worker.NewQueue("test", 4, nil)
	c := newCache(t, Config{Name: "test", Queue: q}, f)

	_, ok := c.Get(context.Background(), "a", false)
	assert.False(t, ok)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.Equal(t, 1, q.Len())

	// Duplicate misses while pending are coalesced.
	_, _ = c.Get(context.Background(), "a", false)
	assert.Equal(t, 1, q.Len())

	q.Start(context.Background())
	q.Stop()

	v, ok := c.Get(context.Background(), "a", false)
	require.True(t, ok)
	assert.Equal(t, "obj:a", v.Name)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestGet_HitIgnoresForce(t *testing.T) {
	f := &countingFetcher{}
	c := newCache(t, Config{Name: "test"}, f)
	c.Set("a", object{Name: "cached"})

	for _, force := range []bool{false, true} {
		v, ok := c.Get(context.Background(), "a", force)
		require.True(t, ok)
		assert.Equal(t, "cached", v.Name)
	}
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestGet_FetchErrorIsMiss(t *testing.T) {
	f := &countingFetcher{err: errors.New("rate limited")}
	c := newCache(t, Config{Name: "test"}, f)

	_, ok := c.Get(context.Background(), "a", true)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestGet_ExpiredEntryRefetched(t *testing.T) {
	f := &countingFetcher{}
	c := newCache(t, Config{Name: "test", TTL: time.Hour}, f)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Set("a", object{Name: "old"})

	now = now.Add(2 * time.Hour)
	v, ok := c.Get(context.Background(), "a", true)

	require.True(t, ok)
	assert.Equal(t, "obj:a", v.Name)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestLRUBound(t *testing.T) {
	f := &countingFetcher{}
	c := newCache(t, Config{Name: "test", MaxEntries: 2}, f)

	c.Set("a", object{})
	c.Set("b", object{})
	c.Set("c", object{})

	assert.Equal(t, 2, c.Len())
	_, ok := c.lookup("a")
	assert.False(t, ok, "least recently used entry is evicted")
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.json")
	f := &countingFetcher{}

	c := newCache(t, Config{Name: "test", Path: path, TTL: time.Hour}, f)
	_, ok := c.Get(context.Background(), "a", true)
	require.True(t, ok)

	info, err := os.Stat(path)
	require.NoError(t, err, "populate writes the snapshot")
	assert.Positive(t, info.Size())

	restored := newCache(t, Config{Name: "test", Path: path, TTL: time.Hour}, f)
	require.NoError(t, restored.Load())

	v, ok := restored.Get(context.Background(), "a", false)
	require.True(t, ok)
	assert.Equal(t, "obj:a", v.Name)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestLoad_SkipsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.json")
	f := &countingFetcher{}

	c := newCache(t, Config{Name: "test", Path: path, TTL: time.Hour}, f)
	c.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	c.Set("stale", object{})
	c.now = time.Now
	c.Set("fresh", object{})

	restored := newCache(t, Config{Name: "test", Path: path, TTL: time.Hour}, f)
	require.NoError(t, restored.Load())

	assert.Equal(t, 1, restored.Len())
}

func TestLoad_ZeroByteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	c := newCache(t, Config{Name: "test", Path: path}, &countingFetcher{})
	require.NoError(t, c.Load())
	assert.Equal(t, 0, c.Len())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestMemoryOnly(t *testing.T) {
	c := newCache(t, Config{Name: "test"}, &countingFetcher{})
	c.Set("a", object{})
	require.NoError(t, c.Save())
	require.NoError(t, c.Load())
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New[object](Config{Name: "test", MaxEntries: -1}, (&countingFetcher{}).fetch)
	assert.Error(t, err)
}
