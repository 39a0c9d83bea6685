package librarycache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/sonicsync/internal/match"
	"github.com/llehouerou/sonicsync/internal/subsonic"
)

// fakeLibrary serves search3 pages out of a song slice.
type fakeLibrary struct {
	mu      sync.Mutex
	songs   []subsonic.Song
	err     error
	calls   atomic.Int32
	probeFn func(offset int) []subsonic.Song
}

func (f *fakeLibrary) Search3(_ context.Context, _ string, count, offset int) ([]subsonic.Song, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if count == 1 && f.probeFn != nil {
		return f.probeFn(offset), nil
	}
	if offset >= len(f.songs) {
		return nil, nil
	}
	end := min(offset+count, len(f.songs))
	return f.songs[offset:end], nil
}

// slowLibrary delays every call so concurrent callers overlap.
type slowLibrary struct {
	fakeLibrary
	delay time.Duration
	pages atomic.Int32
}

func (s *slowLibrary) Search3(ctx context.Context, query string, count, offset int) ([]subsonic.Song, error) {
	if count == PageSize {
		s.pages.Add(1)
	}
	time.Sleep(s.delay)
	return s.fakeLibrary.Search3(ctx, query, count, offset)
}

func makeSongs(n int) []subsonic.Song {
	songs := make([]subsonic.Song, n)
	for i := range songs {
		songs[i] = subsonic.Song{
			ID:     fmt.Sprintf("s%d", i),
			Artist: "Artist",
			Title:  fmt.Sprintf("Song %d", i),
		}
		if i%2 == 0 {
			songs[i].MusicBrainzID = fmt.Sprintf("mbid-%d", i)
		}
	}
	return songs
}

func TestRebuild_Paginates(t *testing.T) {
	lib := &fakeLibrary{songs: makeSongs(1203)}
	c := New(lib, "", nil)

	snap := c.Rebuild(context.Background())

	assert.Equal(t, 1203, snap.Count)
	assert.Len(t, snap.All, 1203)
	assert.Len(t, snap.Songs, 602)
	assert.Equal(t, int32(3), lib.calls.Load(), "500 + 500 + 203")

	song, ok := snap.Lookup("mbid-1202")
	require.True(t, ok)
	assert.Equal(t, "s1202", song.ID)
}

func TestRebuild_ExactPageBoundary(t *testing.T) {
	lib := &fakeLibrary{songs: makeSongs(PageSize)}
	c := New(lib, "", nil)

	snap := c.Rebuild(context.Background())

	assert.Equal(t, PageSize, snap.Count)
	assert.Equal(t, int32(2), lib.calls.Load(), "a full page asks for the next one")
}

func TestRebuild_ErrorYieldsEmpty(t *testing.T) {
	for _, err := range []error{subsonic.ErrOffline, errors.New("decode response: boom")} {
		lib := &fakeLibrary{songs: makeSongs(10), err: err}
		c := New(lib, "", nil)

		snap := c.Rebuild(context.Background())

		assert.Equal(t, 0, snap.Count)
		assert.Empty(t, snap.Songs)
		assert.NotNil(t, snap.Songs)
		assert.Empty(t, snap.All)
	}
}

func TestIsStale(t *testing.T) {
	tests := []struct {
		name     string
		probe    func(offset int) []subsonic.Song
		err      error
		expected bool
	}{
		{
			name:     "probe returns one song",
			probe:    func(int) []subsonic.Song { return makeSongs(1) },
			expected: false,
		},
		{
			name:     "probe returns nothing",
			probe:    func(int) []subsonic.Song { return nil },
			expected: true,
		},
		{
			name:     "probe returns two songs",
			probe:    func(int) []subsonic.Song { return makeSongs(2) },
			expected: true,
		},
		{
			name:     "probe errors",
			err:      errors.New("boom"),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var probedOffset int
			lib := &fakeLibrary{err: tt.err, probeFn: func(offset int) []subsonic.Song {
				probedOffset = offset
				return tt.probe(offset)
			}}
			c := New(lib, "", nil)
			c.current.Store(&Snapshot{Count: 42, Songs: map[string]subsonic.Song{}})

			assert.Equal(t, tt.expected, c.IsStale(context.Background()))
			if tt.err == nil {
				assert.Equal(t, 41, probedOffset)
			}
		})
	}
}

func TestIsStale_EmptySnapshot(t *testing.T) {
	lib := &fakeLibrary{songs: makeSongs(3)}
	c := New(lib, "", nil)

	assert.True(t, c.IsStale(context.Background()))
	assert.Equal(t, int32(0), lib.calls.Load(), "no probe for an empty snapshot")
}

func TestGetOrRebuild_FreshReturnsCurrent(t *testing.T) {
	lib := &fakeLibrary{probeFn: func(int) []subsonic.Song { return makeSongs(1) }}
	c := New(lib, "", nil)
	fresh := &Snapshot{Count: 5, Songs: map[string]subsonic.Song{}}
	c.current.Store(fresh)

	assert.Same(t, fresh, c.GetOrRebuild(context.Background()))
}

func TestGetOrRebuild_StaleRebuildsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	lib := &fakeLibrary{songs: makeSongs(7)}
	c := New(lib, path, nil)

	snap := c.GetOrRebuild(context.Background())

	assert.Equal(t, 7, snap.Count)
	assert.Same(t, snap, c.Current())

	reloaded := New(lib, path, nil)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 7, reloaded.Current().Count)
	assert.Equal(t, snap.Songs, reloaded.Current().Songs)
	assert.Equal(t, snap.All, reloaded.Current().All)
}

func TestGetOrRebuild_OfflineDegradesToEmpty(t *testing.T) {
	lib := &fakeLibrary{err: fmt.Errorf("%w: dial tcp", subsonic.ErrOffline)}
	c := New(lib, "", nil)

	snap := c.GetOrRebuild(context.Background())

	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.Count)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		c := New(&fakeLibrary{}, filepath.Join(dir, "missing.json"), nil)
		require.NoError(t, c.Load())
		assert.Equal(t, 0, c.Current().Count)
	})

	t.Run("zero byte file is removed", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		c := New(&fakeLibrary{}, path, nil)
		require.NoError(t, c.Load())
		assert.Equal(t, 0, c.Current().Count)

		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		c := New(&fakeLibrary{}, path, nil)
		require.Error(t, c.Load())
		assert.Equal(t, 0, c.Current().Count)
	})
}

func TestGetOrRebuild_ConcurrentCallersShareOneRebuild(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		lib := &slowLibrary{delay: 50 * time.Millisecond}
		lib.songs = makeSongs(120)
		c := New(lib, "", nil)
		before := c.Current()

		const callers = 8
		got := make([]*Snapshot, callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Go(func() {
				got[i] = c.GetOrRebuild(context.Background())
			})
		}

		synctest.Wait()
		assert.Same(t, before, c.Current(), "readers keep the old snapshot mid-rebuild")

		wg.Wait()

		assert.Equal(t, int32(1), lib.pages.Load())
		after := c.Current()
		assert.NotSame(t, before, after)
		assert.Equal(t, 120, after.Count)
		for i, snap := range got {
			assert.Same(t, after, snap, "caller %d", i)
		}
	})
}

func TestSnapshot_FieldsAlignWithAll(t *testing.T) {
	lib := &fakeLibrary{songs: makeSongs(7)}
	snap := New(lib, "", nil).Rebuild(context.Background())

	fields := snap.Fields()
	require.Len(t, fields, len(snap.All))
	for i, song := range snap.All {
		assert.Equal(t, match.SongFields(song), fields[i])
	}
	assert.Empty(t, emptySnapshot().Fields())
}
