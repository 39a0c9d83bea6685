package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
)

// ErrInvalidURI is returned for strings that are neither a spotify: URI nor
// an open.spotify.com link.
var ErrInvalidURI = errors.New("source: invalid spotify uri")

// ParseURI accepts "spotify:<kind>:<id>" or an open.spotify.com link and
// returns the object kind and id.
func ParseURI(s string) (Kind, spotify.ID, error) {
	s = strings.TrimSpace(s)

	if rest, ok := strings.CutPrefix(s, "spotify:"); ok {
		parts := strings.Split(rest, ":")
		if len(parts) != 2 || parts[1] == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, s)
		}
		return checkKind(Kind(parts[0]), spotify.ID(parts[1]), s)
	}

	u, err := url.Parse(s)
	if err != nil || !strings.HasSuffix(u.Host, "spotify.com") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, s)
	}

	// Paths look like /playlist/<id> or /intl-fr/track/<id>
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 0 && strings.HasPrefix(segments[0], "intl-") {
		segments = segments[1:]
	}
	if len(segments) != 2 || segments[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, s)
	}
	return checkKind(Kind(segments[0]), spotify.ID(segments[1]), s)
}

func checkKind(kind Kind, id spotify.ID, raw string) (Kind, spotify.ID, error) {
	switch kind {
	case KindTrack, KindAlbum, KindArtist, KindPlaylist:
		return kind, id, nil
	default:
		return "", "", fmt.Errorf("%w: unsupported type %q in %q", ErrInvalidURI, kind, raw)
	}
}

// FormatURI builds the canonical spotify: URI.
func FormatURI(kind Kind, id string) string {
	return "spotify:" + string(kind) + ":" + id
}
