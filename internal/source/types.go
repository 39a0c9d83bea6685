// Package source reads tracks from the Spotify catalog.
package source

import "strings"

// Kind is the catalog object type encoded in a URI.
type Kind string

const (
	KindTrack    Kind = "track"
	KindAlbum    Kind = "album"
	KindArtist   Kind = "artist"
	KindPlaylist Kind = "playlist"
)

// Artist is a catalog artist reference.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Album is a catalog album reference.
type Album struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Track is an immutable snapshot of a catalog track.
type Track struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Artists []Artist `json:"artists"`
	Album   *Album   `json:"album,omitempty"`
	ISRC    string   `json:"isrc,omitempty"`
	URL     string   `json:"url,omitempty"` // public web link, used for downloads
	URI     string   `json:"uri"`
}

// ArtistNames joins the artist names with ", ".
func (t Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// Object is a fetched catalog object. Track is set for tracks, Tracks for
// albums, playlists and artists (top tracks).
type Object struct {
	URI    string  `json:"uri"`
	Kind   Kind    `json:"kind"`
	Name   string  `json:"name"`
	Track  *Track  `json:"track,omitempty"`
	Tracks []Track `json:"tracks,omitempty"`
}
