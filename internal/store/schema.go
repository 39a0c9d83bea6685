package store

import (
	"database/sql"
)

const currentSchemaVersion = 1

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS playlists (
			uuid TEXT PRIMARY KEY,
			source_uri TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'playlist',
			subsonic_playlist_id TEXT,
			subsonic_playlist_name TEXT,
			ignored INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS artists (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_uri TEXT NOT NULL DEFAULT '',
			ignored INTEGER NOT NULL DEFAULT 0,
			UNIQUE(name, source_uri)
		);

		CREATE TABLE IF NOT EXISTS albums (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_uri TEXT NOT NULL DEFAULT '',
			ignored INTEGER NOT NULL DEFAULT 0,
			UNIQUE(name, source_uri)
		);

		CREATE TABLE IF NOT EXISTS songs (
			uuid TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source_uri TEXT NOT NULL DEFAULT '',
			album_uuid TEXT REFERENCES albums(uuid) ON DELETE SET NULL,
			ignored INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			UNIQUE(title, source_uri)
		);

		CREATE TABLE IF NOT EXISTS song_artists (
			song_uuid TEXT NOT NULL REFERENCES songs(uuid) ON DELETE CASCADE,
			artist_uuid TEXT NOT NULL REFERENCES artists(uuid) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			PRIMARY KEY (song_uuid, artist_uuid)
		);

		CREATE TABLE IF NOT EXISTS playlist_songs (
			uuid TEXT PRIMARY KEY,
			playlist_uuid TEXT NOT NULL REFERENCES playlists(uuid) ON DELETE CASCADE,
			song_uuid TEXT NOT NULL REFERENCES songs(uuid) ON DELETE CASCADE,
			subsonic_song_id TEXT,
			subsonic_playlist_id TEXT,
			ignored INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			UNIQUE(playlist_uuid, song_uuid)
		);

		CREATE INDEX IF NOT EXISTS idx_playlist_songs_subsonic_song ON playlist_songs(subsonic_song_id);
		CREATE INDEX IF NOT EXISTS idx_playlist_songs_subsonic_playlist ON playlist_songs(subsonic_playlist_id);
		CREATE INDEX IF NOT EXISTS idx_playlists_subsonic ON playlists(subsonic_playlist_id);
	`)
	if err != nil {
		return err
	}

	// Set initial version if not exists
	_, err = db.Exec(`
		INSERT OR IGNORE INTO schema_version (version) VALUES (?)
	`, currentSchemaVersion)
	return err
}
