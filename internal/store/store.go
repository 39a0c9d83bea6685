// Package store persists reconciliation outcomes and ignore flags in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/llehouerou/sonicsync/internal/db"
	"github.com/llehouerou/sonicsync/internal/subsonic"
)

// ErrNotFound is returned when a row addressed by uuid does not exist.
var ErrNotFound = errors.New("store: not found")

// Playlist is the stored descriptor of a playlist being built.
type Playlist struct {
	UUID                 string
	SourceURI            string // e.g. spotify:playlist:...
	Name                 string
	Type                 string // "playlist", "artist_top_tracks", ...
	SubsonicPlaylistID   string
	SubsonicPlaylistName string
	Ignored              bool
}

// ArtistRef names a source artist.
type ArtistRef struct {
	Name      string
	SourceURI string
}

// AlbumRef names a source album.
type AlbumRef struct {
	Name      string
	SourceURI string
}

// SongRecord describes the source track being recorded.
type SongRecord struct {
	Title     string
	SourceURI string
	Artists   []ArtistRef
	Album     *AlbumRef
}

// IgnoreFlags reports which ignore flags apply to a song in a playlist.
type IgnoreFlags struct {
	SongIgnored       bool
	AlbumIgnored      bool
	ArtistIgnored     bool
	IgnoredInPlaylist bool
	PlaylistIgnored   bool
}

// Any reports whether any flag is set.
func (f IgnoreFlags) Any() bool {
	return f.SongIgnored || f.AlbumIgnored || f.ArtistIgnored || f.IgnoredInPlaylist || f.PlaylistIgnored
}

// IgnoreKind selects the row type SetIgnored updates.
type IgnoreKind string

const (
	IgnoreSong         IgnoreKind = "song"
	IgnoreAlbum        IgnoreKind = "album"
	IgnoreArtist       IgnoreKind = "artist"
	IgnoreSongPlaylist IgnoreKind = "song_pl"
	IgnorePlaylist     IgnoreKind = "playlist"
)

var ignoreTables = map[IgnoreKind]string{
	IgnoreSong:         "songs",
	IgnoreAlbum:        "albums",
	IgnoreArtist:       "artists",
	IgnoreSongPlaylist: "playlist_songs",
	IgnorePlaylist:     "playlists",
}

// MissingSong is a source track recorded without a library match.
type MissingSong struct {
	RelationUUID string // playlist_songs row, for IgnoreSongPlaylist
	SongUUID     string
	PlaylistName string
	Title        string
	Artists      string
	Album        string
	SourceURI    string
	UpdatedAt    time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection also keeps :memory: shared.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := initSchema(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: conn, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsurePlaylist creates or refreshes the playlist row keyed by SourceURI
// and returns it with its uuid and ignore flag.
func (s *Store) EnsurePlaylist(ctx context.Context, pl Playlist) (Playlist, error) {
	if pl.SourceURI == "" {
		return Playlist{}, errors.New("store: playlist source uri is required")
	}
	if pl.Type == "" {
		pl.Type = "playlist"
	}

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		now := s.now().Unix()
		var ignored bool
		err := tx.QueryRowContext(ctx,
			`SELECT uuid, ignored FROM playlists WHERE source_uri = ?`,
			pl.SourceURI,
		).Scan(&pl.UUID, &ignored)
		if errors.Is(err, sql.ErrNoRows) {
			pl.UUID = uuid.NewString()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO playlists (uuid, source_uri, name, type, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, pl.UUID, pl.SourceURI, pl.Name, pl.Type, now, now)
			pl.Ignored = false
			return err
		}
		if err != nil {
			return err
		}
		pl.Ignored = ignored
		_, err = tx.ExecContext(ctx,
			`UPDATE playlists SET name = ?, type = ?, updated_at = ? WHERE uuid = ?`,
			pl.Name, pl.Type, now, pl.UUID)
		return err
	})
	if err != nil {
		return Playlist{}, fmt.Errorf("ensure playlist: %w", err)
	}
	return pl, nil
}

// SetSubsonicPlaylist records the target playlist backing a stored playlist.
func (s *Store) SetSubsonicPlaylist(ctx context.Context, playlistUUID, subsonicID, subsonicName string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE playlists
		SET subsonic_playlist_id = ?, subsonic_playlist_name = ?, updated_at = ?
		WHERE uuid = ?
	`, db.NullString(subsonicID), db.NullString(subsonicName), s.now().Unix(), playlistUUID)
	if err != nil {
		return fmt.Errorf("set subsonic playlist: %w", err)
	}
	return requireRow(res)
}

// UpsertSong records rec in playlist pl, linked to the matched library song
// (nil records a gap), and returns the ignore flags that apply.
func (s *Store) UpsertSong(ctx context.Context, pl Playlist, song *subsonic.Song, rec SongRecord) (IgnoreFlags, error) {
	var flags IgnoreFlags

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		now := s.now().Unix()

		var albumUUID sql.NullString
		if rec.Album != nil && rec.Album.Name != "" {
			id, ignored, err := upsertNamed(ctx, tx, "albums", rec.Album.Name, rec.Album.SourceURI)
			if err != nil {
				return fmt.Errorf("album: %w", err)
			}
			albumUUID = db.NullString(id)
			flags.AlbumIgnored = ignored
		}

		songUUID, songIgnored, err := upsertSongRow(ctx, tx, rec, albumUUID, now)
		if err != nil {
			return fmt.Errorf("song: %w", err)
		}
		flags.SongIgnored = songIgnored

		for i, a := range rec.Artists {
			if a.Name == "" {
				continue
			}
			artistUUID, ignored, err := upsertNamed(ctx, tx, "artists", a.Name, a.SourceURI)
			if err != nil {
				return fmt.Errorf("artist: %w", err)
			}
			flags.ArtistIgnored = flags.ArtistIgnored || ignored
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO song_artists (song_uuid, artist_uuid, position)
				VALUES (?, ?, ?)
			`, songUUID, artistUUID, i); err != nil {
				return fmt.Errorf("link artist: %w", err)
			}
		}

		var subsonicSongID sql.NullString
		if song != nil {
			subsonicSongID = db.NullString(song.ID)
		}

		if pl.UUID == "" {
			return nil
		}

		var relIgnored bool
		err = tx.QueryRowContext(ctx,
			`SELECT ignored FROM playlist_songs WHERE playlist_uuid = ? AND song_uuid = ?`,
			pl.UUID, songUUID,
		).Scan(&relIgnored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO playlist_songs
					(uuid, playlist_uuid, song_uuid, subsonic_song_id, subsonic_playlist_id, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, uuid.NewString(), pl.UUID, songUUID, subsonicSongID, db.NullString(pl.SubsonicPlaylistID), now)
		case err == nil:
			_, err = tx.ExecContext(ctx, `
				UPDATE playlist_songs
				SET subsonic_song_id = ?, subsonic_playlist_id = ?, updated_at = ?
				WHERE playlist_uuid = ? AND song_uuid = ?
			`, subsonicSongID, db.NullString(pl.SubsonicPlaylistID), now, pl.UUID, songUUID)
		}
		if err != nil {
			return fmt.Errorf("relation: %w", err)
		}
		flags.IgnoredInPlaylist = relIgnored

		err = tx.QueryRowContext(ctx,
			`SELECT ignored FROM playlists WHERE uuid = ?`, pl.UUID,
		).Scan(&flags.PlaylistIgnored)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return IgnoreFlags{}, fmt.Errorf("upsert song: %w", err)
	}
	return flags, nil
}

// upsertNamed finds or inserts a row in artists or albums.
func upsertNamed(ctx context.Context, tx *sql.Tx, table, name, sourceURI string) (string, bool, error) {
	var id string
	var ignored bool
	err := tx.QueryRowContext(ctx,
		`SELECT uuid, ignored FROM `+table+` WHERE name = ? AND source_uri = ?`, //nolint:gosec // table is a constant
		name, sourceURI,
	).Scan(&id, &ignored)
	if errors.Is(err, sql.ErrNoRows) {
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO `+table+` (uuid, name, source_uri) VALUES (?, ?, ?)`, //nolint:gosec // table is a constant
			id, name, sourceURI)
		return id, false, err
	}
	return id, ignored, err
}

func upsertSongRow(ctx context.Context, tx *sql.Tx, rec SongRecord, albumUUID sql.NullString, now int64) (string, bool, error) {
	var id string
	var ignored bool
	err := tx.QueryRowContext(ctx,
		`SELECT uuid, ignored FROM songs WHERE title = ? AND source_uri = ?`,
		rec.Title, rec.SourceURI,
	).Scan(&id, &ignored)
	if errors.Is(err, sql.ErrNoRows) {
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO songs (uuid, title, source_uri, album_uuid, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, id, rec.Title, rec.SourceURI, albumUUID, now)
		return id, false, err
	}
	if err != nil {
		return "", false, err
	}
	if albumUUID.Valid {
		_, err = tx.ExecContext(ctx, `UPDATE songs SET album_uuid = ? WHERE uuid = ?`, albumUUID, id)
	}
	return id, ignored, err
}

// QueryIgnoreFlags returns the flags recorded for a library song id.
// IgnoredInPlaylist and PlaylistIgnored only consider relations to the
// given target playlist.
func (s *Store) QueryIgnoreFlags(ctx context.Context, subsonicSongID, subsonicPlaylistID string) (IgnoreFlags, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			s.ignored,
			COALESCE(al.ignored, 0),
			COALESCE((
				SELECT MAX(ar.ignored) FROM song_artists sa
				JOIN artists ar ON ar.uuid = sa.artist_uuid
				WHERE sa.song_uuid = s.uuid
			), 0),
			ps.ignored,
			p.ignored,
			COALESCE(ps.subsonic_playlist_id, '')
		FROM playlist_songs ps
		JOIN songs s ON s.uuid = ps.song_uuid
		JOIN playlists p ON p.uuid = ps.playlist_uuid
		LEFT JOIN albums al ON al.uuid = s.album_uuid
		WHERE ps.subsonic_song_id = ?
	`, subsonicSongID)
	if err != nil {
		return IgnoreFlags{}, fmt.Errorf("query ignore flags: %w", err)
	}
	defer rows.Close()

	var flags IgnoreFlags
	for rows.Next() {
		var songIgn, albumIgn, artistIgn, relIgn, plIgn bool
		var plID string
		if err := rows.Scan(&songIgn, &albumIgn, &artistIgn, &relIgn, &plIgn, &plID); err != nil {
			return IgnoreFlags{}, fmt.Errorf("scan ignore flags: %w", err)
		}
		flags.SongIgnored = flags.SongIgnored || songIgn
		flags.AlbumIgnored = flags.AlbumIgnored || albumIgn
		flags.ArtistIgnored = flags.ArtistIgnored || artistIgn
		if plID == subsonicPlaylistID {
			flags.IgnoredInPlaylist = flags.IgnoredInPlaylist || relIgn
			flags.PlaylistIgnored = flags.PlaylistIgnored || plIgn
		}
	}
	return flags, rows.Err()
}

// DeletePlaylistRelation forgets every song relation recorded for a target
// playlist id, and unlinks stored playlists from it.
func (s *Store) DeletePlaylistRelation(ctx context.Context, subsonicPlaylistID string) error {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM playlist_songs WHERE subsonic_playlist_id = ?`, subsonicPlaylistID,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE playlists SET subsonic_playlist_id = NULL, subsonic_playlist_name = NULL
			WHERE subsonic_playlist_id = ?
		`, subsonicPlaylistID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete playlist relation: %w", err)
	}
	return nil
}

// ListPlaylists returns every stored playlist ordered by name.
func (s *Store) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, source_uri, name, type,
			subsonic_playlist_id, subsonic_playlist_name, ignored
		FROM playlists
		ORDER BY name COLLATE NOCASE
	`)
	if err != nil {
		return nil, fmt.Errorf("query playlists: %w", err)
	}
	defer rows.Close()

	var out []Playlist
	for rows.Next() {
		var p Playlist
		var subID, subName sql.NullString
		if err := rows.Scan(&p.UUID, &p.SourceURI, &p.Name, &p.Type, &subID, &subName, &p.Ignored); err != nil {
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		p.SubsonicPlaylistID = db.NullStringValue(subID)
		p.SubsonicPlaylistName = db.NullStringValue(subName)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SubsonicPlaylistIDs returns every target playlist id the store refers to.
func (s *Store) SubsonicPlaylistIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subsonic_playlist_id FROM playlists WHERE subsonic_playlist_id IS NOT NULL
		UNION
		SELECT subsonic_playlist_id FROM playlist_songs WHERE subsonic_playlist_id IS NOT NULL
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query playlist ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetIgnored sets the ignore flag of the row of the given kind.
func (s *Store) SetIgnored(ctx context.Context, kind IgnoreKind, rowUUID string, ignored bool) error {
	table, ok := ignoreTables[kind]
	if !ok {
		return fmt.Errorf("store: unknown ignore kind %q", kind)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET ignored = ? WHERE uuid = ?`, //nolint:gosec // table comes from ignoreTables
		db.BoolInt(ignored), rowUUID)
	if err != nil {
		return fmt.Errorf("set ignored: %w", err)
	}
	return requireRow(res)
}

// MissingSongs lists recorded tracks that have no library match,
// most recently seen first.
func (s *Store) MissingSongs(ctx context.Context) ([]MissingSong, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			ps.uuid,
			s.uuid,
			p.name,
			s.title,
			COALESCE((
				SELECT GROUP_CONCAT(name, ', ') FROM (
					SELECT ar.name AS name FROM song_artists sa
					JOIN artists ar ON ar.uuid = sa.artist_uuid
					WHERE sa.song_uuid = s.uuid
					ORDER BY sa.position
				)
			), ''),
			COALESCE(al.name, ''),
			s.source_uri,
			ps.updated_at
		FROM playlist_songs ps
		JOIN songs s ON s.uuid = ps.song_uuid
		JOIN playlists p ON p.uuid = ps.playlist_uuid
		LEFT JOIN albums al ON al.uuid = s.album_uuid
		WHERE ps.subsonic_song_id IS NULL
		ORDER BY ps.updated_at DESC, s.title
	`)
	if err != nil {
		return nil, fmt.Errorf("query missing songs: %w", err)
	}
	defer rows.Close()

	var out []MissingSong
	for rows.Next() {
		var m MissingSong
		var updated int64
		if err := rows.Scan(&m.RelationUUID, &m.SongUUID, &m.PlaylistName, &m.Title, &m.Artists, &m.Album, &m.SourceURI, &updated); err != nil {
			return nil, fmt.Errorf("scan missing song: %w", err)
		}
		m.UpdatedAt = time.Unix(updated, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
