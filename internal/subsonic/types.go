// Package subsonic provides a client for the Subsonic REST API
// (Navidrome, Gonic, Airsonic and other compatible servers).
package subsonic

// Song is a target library entry as returned by search and playlist calls.
type Song struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	Album         string `json:"album"`
	MusicBrainzID string `json:"musicBrainzId,omitempty"` // recording id (OpenSubsonic)
}

// Placeholder is the artist+title+album key used to recognise the same
// logical song stored under different ids.
func (s Song) Placeholder() string {
	return s.Artist + " " + s.Title + " " + s.Album
}

// Playlist is a playlist summary from getPlaylists.
type Playlist struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SongCount int    `json:"songCount"`
}

// PlaylistDetails is a playlist with its entries from getPlaylist.
type PlaylistDetails struct {
	Playlist
	Entries []Song `json:"entry"`
}

// envelope wraps every Subsonic JSON response.
type envelope struct {
	Response response `json:"subsonic-response"`
}

type response struct {
	Status        string           `json:"status"` // "ok" or "failed"
	Version       string           `json:"version"`
	Error         *apiError        `json:"error,omitempty"`
	SearchResult3 *searchResult3   `json:"searchResult3,omitempty"`
	Playlists     *playlistsList   `json:"playlists,omitempty"`
	Playlist      *PlaylistDetails `json:"playlist,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type searchResult3 struct {
	Song []Song `json:"song"`
}

type playlistsList struct {
	Playlist []Playlist `json:"playlist"`
}

// Subsonic error codes.
const (
	codeWrongAuth = 40
	codeNotFound  = 70
)
