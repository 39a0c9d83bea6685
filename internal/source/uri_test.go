package source

import (
	"testing"

	"github.com/zmb3/spotify/v2"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		in       string
		wantKind Kind
		wantID   spotify.ID
		wantErr  bool
	}{
		{in: "spotify:track:0aym2LBJBk9DAYuHHutrIl", wantKind: KindTrack, wantID: "0aym2LBJBk9DAYuHHutrIl"},
		{in: "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M", wantKind: KindPlaylist, wantID: "37i9dQZF1DXcBWIGoYBM5M"},
		{in: "https://open.spotify.com/album/7vEJAtP3KgKSpOHVgwm3Eh?si=abc", wantKind: KindAlbum, wantID: "7vEJAtP3KgKSpOHVgwm3Eh"},
		{in: "https://open.spotify.com/intl-fr/artist/3WrFJ7ztbogyGnTHbHJFl2", wantKind: KindArtist, wantID: "3WrFJ7ztbogyGnTHbHJFl2"},
		{in: "  spotify:artist:abc  ", wantKind: KindArtist, wantID: "abc"},
		{in: "spotify:episode:abc", wantErr: true},
		{in: "spotify:track:", wantErr: true},
		{in: "spotify:user:me:playlist:x", wantErr: true},
		{in: "https://example.com/track/abc", wantErr: true},
		{in: "https://open.spotify.com/track", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			kind, id, err := ParseURI(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseURI(%q) expected error, got %s/%s", tt.in, kind, id)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURI(%q) unexpected error: %v", tt.in, err)
			}
			if kind != tt.wantKind || id != tt.wantID {
				t.Errorf("ParseURI(%q) = %s/%s, want %s/%s", tt.in, kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestFormatURI(t *testing.T) {
	if got := FormatURI(KindTrack, "abc"); got != "spotify:track:abc" {
		t.Errorf("FormatURI = %q", got)
	}
}
