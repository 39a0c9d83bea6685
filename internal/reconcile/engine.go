// Package reconcile matches source tracks against the target library and
// writes the resulting playlists.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/llehouerou/sonicsync/internal/librarycache"
	"github.com/llehouerou/sonicsync/internal/match"
	"github.com/llehouerou/sonicsync/internal/objcache"
	"github.com/llehouerou/sonicsync/internal/source"
	"github.com/llehouerou/sonicsync/internal/store"
	"github.com/llehouerou/sonicsync/internal/subsonic"
)

// ErrLibraryOffline aborts a pass when the target library is unreachable.
var ErrLibraryOffline = fmt.Errorf("reconcile: %w", subsonic.ErrOffline)

const (
	// searchSongCount bounds the fallback search used when the library
	// cache is empty.
	searchSongCount = 500

	playlistNameEntries = 500
	playlistNameTTL     = 5 * time.Minute
)

// Library is the target library.
type Library interface {
	Ping(ctx context.Context) error
	Search3(ctx context.Context, query string, songCount, songOffset int) ([]subsonic.Song, error)
	GetPlaylists(ctx context.Context) ([]subsonic.Playlist, error)
	GetPlaylist(ctx context.Context, id string) (*subsonic.PlaylistDetails, error)
	CreatePlaylist(ctx context.Context, name string, songIDs []string) error
	ReplacePlaylist(ctx context.Context, id string, songIDs []string) error
	DeletePlaylist(ctx context.Context, id string) error
}

// LibraryCache provides the current library snapshot.
type LibraryCache interface {
	GetOrRebuild(ctx context.Context) *librarycache.Snapshot
}

// Resolver maps a track's ISRC to recording ids.
type Resolver interface {
	ResolveTrack(ctx context.Context, code, artist, title string) []string
}

// Store persists outcomes and ignore flags.
type Store interface {
	EnsurePlaylist(ctx context.Context, pl store.Playlist) (store.Playlist, error)
	SetSubsonicPlaylist(ctx context.Context, playlistUUID, subsonicID, subsonicName string) error
	UpsertSong(ctx context.Context, pl store.Playlist, song *subsonic.Song, rec store.SongRecord) (store.IgnoreFlags, error)
	QueryIgnoreFlags(ctx context.Context, subsonicSongID, subsonicPlaylistID string) (store.IgnoreFlags, error)
	DeletePlaylistRelation(ctx context.Context, subsonicPlaylistID string) error
	SubsonicPlaylistIDs(ctx context.Context) ([]string, error)
}

// ObjectCache serves source catalog objects by URI.
type ObjectCache interface {
	Get(ctx context.Context, key string, force bool) (source.Object, bool)
}

// Downloader fetches tracks missing from the library in the background.
type Downloader interface {
	Submit(track source.Track) bool
}

// ArtistMonitor gates downloads on the artist lifecycle tool.
type ArtistMonitor interface {
	IsMonitored(ctx context.Context, name string) (bool, error)
}

// Options are the matching settings.
type Options struct {
	Fuzzy          bool
	ExcludedWords  []string
	PlaylistPrefix string
}

// Deps are the engine collaborators. Objects, Downloader and Monitor are
// optional.
type Deps struct {
	Library    Library
	Cache      LibraryCache
	Resolver   Resolver
	Store      Store
	Objects    ObjectCache
	Downloader Downloader
	Monitor    ArtistMonitor
	Logger     *zap.Logger
}

// Engine reconciles playlists. It is safe for concurrent builds of
// different playlists.
type Engine struct {
	library    Library
	cache      LibraryCache
	resolver   Resolver
	store      Store
	objects    ObjectCache
	downloader Downloader
	monitor    ArtistMonitor
	opts       Options
	logger     *zap.Logger

	playlistNames *objcache.Cache[string]
}

// New creates an engine.
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Library == nil || deps.Cache == nil || deps.Resolver == nil || deps.Store == nil {
		return nil, errors.New("reconcile: library, cache, resolver and store are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.PlaylistPrefix = strings.ReplaceAll(opts.PlaylistPrefix, `"`, "")

	e := &Engine{
		library:    deps.Library,
		cache:      deps.Cache,
		resolver:   deps.Resolver,
		store:      deps.Store,
		objects:    deps.Objects,
		downloader: deps.Downloader,
		monitor:    deps.Monitor,
		opts:       opts,
		logger:     logger,
	}

	names, err := objcache.New[string](objcache.Config{
		Name:       "playlist-names",
		MaxEntries: playlistNameEntries,
		TTL:        playlistNameTTL,
		Logger:     logger,
	}, e.fetchPlaylistName)
	if err != nil {
		return nil, err
	}
	e.playlistNames = names
	return e, nil
}

// Reconcile builds the target playlist for pl from tracks. It returns
// ErrLibraryOffline when the library cannot be reached.
func (e *Engine) Reconcile(ctx context.Context, pl store.Playlist, tracks []source.Track) (*Result, error) {
	if err := e.library.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLibraryOffline, err)
	}

	pl, err := e.store.EnsurePlaylist(ctx, pl)
	if err != nil {
		return nil, err
	}

	name := e.opts.PlaylistPrefix + pl.Name
	log := e.logger.With(zap.String("playlist", name))

	if pl.Ignored {
		log.Warn("skipping playlist marked as ignored")
		return &Result{PlaylistName: name, Skipped: true}, nil
	}

	playlistID, prior, err := e.preparePlaylist(ctx, name)
	if err != nil {
		return nil, err
	}
	res := &Result{PlaylistID: playlistID, PlaylistName: name}

	if err := e.store.SetSubsonicPlaylist(ctx, pl.UUID, playlistID, name); err != nil {
		return nil, err
	}
	pl.SubsonicPlaylistID = playlistID
	pl.SubsonicPlaylistName = name

	snap := e.cache.GetOrRebuild(ctx)
	m := newMembership(prior)

	for _, track := range tracks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		track = e.completeTrack(ctx, track)

		st, err := e.reconcileTrack(ctx, pl, snap, m, track)
		if err != nil {
			return nil, err
		}

		tr := TrackResult{Track: st.track, Outcome: st.outcome, Downloading: st.download}
		if st.song != nil {
			tr.SongID = st.song.ID
		}
		res.Tracks = append(res.Tracks, tr)
	}

	res.SongIDs = m.ids
	if len(m.ids) > 0 {
		if err := e.library.ReplacePlaylist(ctx, playlistID, m.ids); err != nil {
			return nil, libraryErr("replace playlist", err)
		}
		log.Info("playlist written",
			zap.Int("songs", len(m.ids)),
			zap.Int("tracks", len(tracks)))
		return res, nil
	}

	if err := e.library.DeletePlaylist(ctx, playlistID); err != nil && !errors.Is(err, subsonic.ErrNotFound) {
		return nil, libraryErr("delete playlist", err)
	}
	res.Deleted = true
	log.Info("no songs found, playlist deleted")
	return res, nil
}

// reconcileTrack runs the fingerprint path, then the fuzzy path for each
// artist in order, then the unmatched handling.
func (e *Engine) reconcileTrack(ctx context.Context, pl store.Playlist, snap *librarycache.Snapshot, m *membership, track source.Track) (*trackState, error) {
	st := &trackState{track: track}
	if len(track.Artists) > 0 {
		st.artist = track.Artists[0]
	}

	if song, ok := e.fingerprintMatch(ctx, snap, st); ok {
		e.selectSong(ctx, pl, m, st, song, MatchedByFingerprint)
		return st, nil
	}

	if e.opts.Fuzzy && track.Name != "" {
		for _, artist := range track.Artists {
			if artist.Name == "" {
				continue
			}
			st.artist = artist
			if err := e.fuzzyMatch(ctx, pl, snap, m, st); err != nil {
				return nil, err
			}
			if st.done() {
				return st, nil
			}
		}
	}

	e.handleUnmatched(ctx, pl, st)
	return st, nil
}

// fingerprintMatch returns the first resolved recording id present in the
// snapshot.
func (e *Engine) fingerprintMatch(ctx context.Context, snap *librarycache.Snapshot, st *trackState) (subsonic.Song, bool) {
	ids := e.resolver.ResolveTrack(ctx, st.track.ISRC, st.artist.Name, st.track.Name)
	for _, id := range ids {
		if song, ok := snap.Lookup(id); ok {
			e.logger.Debug("matched by recording id",
				zap.String("track", st.track.Name),
				zap.String("isrc", st.track.ISRC),
				zap.String("mbid", id),
				zap.String("song", song.ID))
			return song, true
		}
	}
	return subsonic.Song{}, false
}

// fuzzyMatch scans the snapshot (or a library search when the snapshot is
// empty) for the current artist. The first candidate matching artist, title
// and album wins. Without one, the first candidate matching artist and
// title is used.
func (e *Engine) fuzzyMatch(ctx context.Context, pl store.Playlist, snap *librarycache.Snapshot, m *membership, st *trackState) error {
	candidates, fields := snap.All, snap.Fields()
	if len(candidates) == 0 {
		var err error
		candidates, err = e.library.Search3(ctx, st.artist.Name+" "+st.track.Name, searchSongCount, 0)
		if err != nil {
			if errors.Is(err, subsonic.ErrOffline) {
				return fmt.Errorf("%w: %w", ErrLibraryOffline, err)
			}
			e.logger.Error("library search failed", zap.String("track", st.track.Name), zap.Error(err))
			return nil
		}
		fields = make([]match.Fields, len(candidates))
		for i, song := range candidates {
			fields[i] = match.SongFields(song)
		}
	}

	album := ""
	if st.track.Album != nil {
		album = st.track.Album.Name
	}
	want := match.NewFields(st.artist.Name, st.track.Name, album)

	var skipped *subsonic.Song
	skippedExcluded := false
	for i := range candidates {
		song := candidates[i]
		if song.ID == "" || song.Artist == "" || song.Title == "" {
			continue
		}
		if m.isConsidered(song.Placeholder()) || m.has(song.ID) {
			continue
		}
		if !want.ArtistTitleMatch(fields[i]) {
			continue
		}

		excluded := e.isExcluded(song)
		if want.Matches(fields[i]) {
			if excluded {
				e.logger.Info("candidate excluded",
					zap.String("track", st.track.Name),
					zap.String("song", song.ID),
					zap.String("title", song.Title),
					zap.String("album", song.Album))
				st.outcome = Excluded
				return nil
			}
			e.selectSong(ctx, pl, m, st, song, MatchedByFuzzy)
			return nil
		}

		if excluded {
			skippedExcluded = true
			continue
		}
		if skipped == nil {
			skipped = &candidates[i]
		}
	}

	if skipped != nil {
		e.logger.Warn("no matching album, using first artist and title match",
			zap.String("track", st.track.Name),
			zap.String("album", album),
			zap.String("song_album", skipped.Album))
		e.selectSong(ctx, pl, m, st, *skipped, MatchedByFuzzy)
		return nil
	}
	if skippedExcluded {
		st.outcome = Excluded
	}
	return nil
}

func (e *Engine) isExcluded(song subsonic.Song) bool {
	return match.IsExcluded(song.Title, e.opts.ExcludedWords) ||
		match.IsExcluded(song.Album, e.opts.ExcludedWords)
}

// selectSong applies the membership and ignore rules to a chosen song.
func (e *Engine) selectSong(ctx context.Context, pl store.Playlist, m *membership, st *trackState, song subsonic.Song, outcome Outcome) {
	m.consider(song.Placeholder())
	st.song = &song
	log := e.logger.With(
		zap.String("track", st.track.Name),
		zap.String("song", song.ID),
		zap.String("placeholder", song.Placeholder()))

	flags, err := e.store.UpsertSong(ctx, pl, &song, songRecord(st.track))
	if err != nil {
		log.Error("record song", zap.Error(err))
	}

	if m.inPrior(song.ID) {
		m.add(song.ID)
		st.outcome = AlreadyInPlaylist
		log.Debug("already in playlist")
		return
	}

	if flags.Any() {
		st.outcome = Ignored
		log.Info("skipping ignored song",
			zap.Bool("song_ignored", flags.SongIgnored),
			zap.Bool("album_ignored", flags.AlbumIgnored),
			zap.Bool("artist_ignored", flags.ArtistIgnored),
			zap.Bool("ignored_in_playlist", flags.IgnoredInPlaylist),
			zap.Bool("playlist_ignored", flags.PlaylistIgnored))
		return
	}

	m.add(song.ID)
	st.outcome = outcome
	log.Info("song added", zap.Stringer("by", outcome))
}

// handleUnmatched submits a download for monitored artists, otherwise
// records the gap.
func (e *Engine) handleUnmatched(ctx context.Context, pl store.Playlist, st *trackState) {
	log := e.logger.With(
		zap.String("track", st.track.Name),
		zap.String("artist", st.artist.Name))

	if e.downloader != nil && st.track.URL != "" {
		monitored := true
		if e.monitor != nil {
			var err error
			monitored, err = e.monitor.IsMonitored(ctx, st.artist.Name)
			if err != nil {
				log.Warn("artist monitor check failed", zap.Error(err))
				monitored = false
			}
		}
		if monitored {
			if e.downloader.Submit(st.track) {
				st.download = true
				log.Warn("track not found in library, download submitted")
				return
			}
		} else {
			log.Warn("track not found in library, artist not monitored, skipping download")
		}
	} else {
		log.Warn("track not found in library")
	}

	if _, err := e.store.UpsertSong(ctx, pl, nil, songRecord(st.track)); err != nil {
		log.Error("record missing song", zap.Error(err))
	}
}

// completeTrack fills a missing album or ISRC from the object cache.
// The lookup is not forced: on a miss the fetch is queued and the track
// is used as is.
func (e *Engine) completeTrack(ctx context.Context, track source.Track) source.Track {
	if track.URI == "" && track.ID != "" {
		track.URI = source.FormatURI(source.KindTrack, track.ID)
	}
	if e.objects == nil || track.URI == "" || (track.Album != nil && track.ISRC != "") {
		return track
	}

	obj, ok := e.objects.Get(ctx, track.URI, false)
	if !ok || obj.Track == nil {
		return track
	}
	full := *obj.Track
	if full.URI == "" {
		full.URI = track.URI
	}
	return full
}

func songRecord(t source.Track) store.SongRecord {
	rec := store.SongRecord{Title: t.Name, SourceURI: t.URI}
	for _, a := range t.Artists {
		rec.Artists = append(rec.Artists, store.ArtistRef{
			Name:      a.Name,
			SourceURI: sourceURI(source.KindArtist, a.ID),
		})
	}
	if t.Album != nil {
		rec.Album = &store.AlbumRef{Name: t.Album.Name, SourceURI: sourceURI(source.KindAlbum, t.Album.ID)}
	}
	return rec
}

func sourceURI(kind source.Kind, id string) string {
	if id == "" {
		return ""
	}
	return source.FormatURI(kind, id)
}

func libraryErr(op string, err error) error {
	if errors.Is(err, subsonic.ErrOffline) {
		return fmt.Errorf("%s: %w: %w", op, ErrLibraryOffline, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
