package match

import (
	"slices"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/llehouerou/sonicsync/internal/subsonic"
)

// SimilarityThreshold is the Jaro-Winkler score above which two
// normalized strings are considered equal when neither token set
// contains the other.
const SimilarityThreshold = 0.9

// StringsMatch reports whether a and b name the same thing.
// The comparison is symmetric.
func StringsMatch(a, b string) bool {
	return Tokenize(a).Match(Tokenize(b))
}

// Tokens is a normalized string, ready for repeated comparisons.
type Tokens struct {
	words  []string
	joined string
}

// Tokenize normalizes text once.
func Tokenize(text string) Tokens {
	words := Normalize(text)
	return Tokens{words: words, joined: strings.Join(words, " ")}
}

// Empty reports whether text had no comparable tokens.
func (t Tokens) Empty() bool {
	return len(t.words) == 0
}

// Match is StringsMatch on pre-normalized strings.
func (t Tokens) Match(o Tokens) bool {
	if t.Empty() || o.Empty() {
		return false
	}
	if isSubset(t.words, o.words) || isSubset(o.words, t.words) {
		return true
	}
	return similarity(t.joined, o.joined) >= SimilarityThreshold
}

// similarity returns the larger Jaro-Winkler score of both argument orders.
func similarity(a, b string) float64 {
	jw := metrics.NewJaroWinkler()
	return max(strutil.Similarity(a, b, jw), strutil.Similarity(b, a, jw))
}

// isSubset reports whether every token of small is in big.
func isSubset(small, big []string) bool {
	for _, t := range small {
		if !slices.Contains(big, t) {
			return false
		}
	}
	return true
}

// IsExcluded reports whether any of words occurs in text, ignoring case
// and diacritics.
func IsExcluded(text string, words []string) bool {
	s := Fold(text)
	for _, w := range words {
		w = Fold(strings.TrimSpace(w))
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Fields holds the normalized artist, title and album of a track or song.
type Fields struct {
	Artist Tokens
	Title  Tokens
	Album  Tokens
}

// NewFields normalizes the three fields.
func NewFields(artist, title, album string) Fields {
	return Fields{Artist: Tokenize(artist), Title: Tokenize(title), Album: Tokenize(album)}
}

// SongFields normalizes a library song.
func SongFields(song subsonic.Song) Fields {
	return NewFields(song.Artist, song.Title, song.Album)
}

// MatchesTrack reports whether song is the given track: artist and title
// must match, and album too when the track has one.
func MatchesTrack(artist, title, album string, song subsonic.Song) bool {
	return NewFields(artist, title, album).Matches(SongFields(song))
}

// ArtistTitleMatch is MatchesTrack without the album condition.
func ArtistTitleMatch(artist, title string, song subsonic.Song) bool {
	return NewFields(artist, title, "").ArtistTitleMatch(SongFields(song))
}

// Matches is MatchesTrack with f as the wanted track.
func (f Fields) Matches(song Fields) bool {
	return f.ArtistTitleMatch(song) && f.AlbumMatch(song)
}

// ArtistTitleMatch is Matches without the album condition.
func (f Fields) ArtistTitleMatch(song Fields) bool {
	return f.Artist.Match(song.Artist) && f.Title.Match(song.Title)
}

// AlbumMatch reports whether song's album satisfies the wanted album.
// A track without album accepts any song.
func (f Fields) AlbumMatch(song Fields) bool {
	return f.Album.Empty() || f.Album.Match(song.Album)
}
