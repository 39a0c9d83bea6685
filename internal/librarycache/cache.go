// Package librarycache keeps a point-in-time index of the target library,
// keyed by MusicBrainz recording id, and detects when it drifts.
package librarycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/llehouerou/sonicsync/internal/fsutil"
	"github.com/llehouerou/sonicsync/internal/match"
	"github.com/llehouerou/sonicsync/internal/subsonic"
)

// PageSize is the number of songs requested per search3 page.
const PageSize = 500

// FileName is the snapshot file name under the cache directory.
const FileName = "subsonic_cache.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Searcher is the subset of the target library used by the cache.
type Searcher interface {
	Search3(ctx context.Context, query string, songCount, songOffset int) ([]subsonic.Song, error)
}

// Snapshot is an immutable view of the target library.
type Snapshot struct {
	Count int                      `json:"count"`
	Songs map[string]subsonic.Song `json:"songs"` // recording id -> song
	All   []subsonic.Song          `json:"all"`

	fieldsOnce sync.Once
	fields     []match.Fields
}

func emptySnapshot() *Snapshot {
	return &Snapshot{Songs: map[string]subsonic.Song{}}
}

// Lookup returns the song tagged with the recording id.
func (s *Snapshot) Lookup(recordingID string) (subsonic.Song, bool) {
	song, ok := s.Songs[recordingID]
	return song, ok
}

// Fields returns the normalized artist, title and album of each song in
// All, index for index. They are computed on first use.
func (s *Snapshot) Fields() []match.Fields {
	s.fieldsOnce.Do(func() {
		s.fields = make([]match.Fields, len(s.All))
		for i, song := range s.All {
			s.fields[i] = match.SongFields(song)
		}
	})
	return s.fields
}

// Cache owns the current snapshot and its file.
type Cache struct {
	client Searcher
	path   string
	logger *zap.Logger

	current atomic.Pointer[Snapshot]
	group   singleflight.Group
	saveMu  sync.Mutex
}

// New creates a cache that persists to path. An empty path disables
// persistence. The cache starts empty until Load or a rebuild.
func New(client Searcher, path string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{client: client, path: path, logger: logger}
	c.current.Store(emptySnapshot())
	return c
}

// Current returns the published snapshot without checking staleness.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Load replaces the current snapshot with the persisted one.
// A missing file is not an error; a zero-byte file is removed.
func (c *Cache) Load() error {
	if c.path == "" {
		return nil
	}

	data, err := fsutil.ReadSnapshot(c.path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if data == nil {
		return nil
	}

	snap := emptySnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Songs == nil {
		snap.Songs = map[string]subsonic.Song{}
	}
	snap.Fields()

	c.current.Store(snap)
	c.logger.Debug("library cache loaded",
		zap.String("path", c.path),
		zap.Int("count", snap.Count))
	return nil
}

// IsStale probes the song at offset Count-1. The snapshot is stale unless
// the probe returns exactly one song. An empty snapshot is always stale.
func (c *Cache) IsStale(ctx context.Context) bool {
	snap := c.current.Load()
	if snap.Count <= 0 {
		return true
	}

	songs, err := c.client.Search3(ctx, "", 1, snap.Count-1)
	if err != nil {
		c.logger.Debug("staleness probe failed", zap.Error(err))
		return true
	}
	return len(songs) != 1
}

// Rebuild pages through the whole library. Fetch errors are logged and
// yield an empty snapshot.
func (c *Cache) Rebuild(ctx context.Context) *Snapshot {
	snap := emptySnapshot()
	offset := 0

	for {
		songs, err := c.client.Search3(ctx, "", PageSize, offset)
		if err != nil {
			if errors.Is(err, subsonic.ErrOffline) {
				c.logger.Warn("library offline during cache rebuild", zap.Error(err))
			} else {
				c.logger.Error("library cache rebuild failed",
					zap.Int("offset", offset),
					zap.Error(err))
			}
			return emptySnapshot()
		}
		if len(songs) == 0 {
			break
		}

		for _, song := range songs {
			snap.All = append(snap.All, song)
			if song.MusicBrainzID != "" {
				snap.Songs[song.MusicBrainzID] = song
			}
		}
		offset += len(songs)

		if len(songs) < PageSize {
			break
		}
	}

	snap.Count = offset
	snap.Fields()
	c.logger.Info("library cache rebuilt",
		zap.String("songs", humanize.Comma(int64(snap.Count))),
		zap.Int("indexed", len(snap.Songs)))
	return snap
}

// GetOrRebuild returns the current snapshot, rebuilding and persisting it
// first when stale. Concurrent callers share a single rebuild.
func (c *Cache) GetOrRebuild(ctx context.Context) *Snapshot {
	if !c.IsStale(ctx) {
		return c.current.Load()
	}
	return c.ForceRebuild(ctx)
}

// ForceRebuild rebuilds, publishes and persists a new snapshot.
func (c *Cache) ForceRebuild(ctx context.Context) *Snapshot {
	v, _, _ := c.group.Do("rebuild", func() (any, error) {
		snap := c.Rebuild(ctx)
		c.current.Store(snap)
		if err := c.Save(snap); err != nil {
			c.logger.Error("save library cache", zap.Error(err))
		}
		return snap, nil
	})
	return v.(*Snapshot) //nolint:forcetypeassert // only *Snapshot is returned above
}

// Save overwrites the snapshot file with snap.
func (c *Cache) Save(snap *Snapshot) error {
	if c.path == "" {
		return nil
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return fsutil.WriteFileAtomic(c.path, data)
}
