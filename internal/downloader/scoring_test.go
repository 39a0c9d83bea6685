package downloader

import (
	"testing"

	"github.com/llehouerou/sonicsync/internal/slskd"
	"github.com/llehouerou/sonicsync/internal/source"
)

var heyJude = source.Track{
	Name:    "Hey Jude",
	Artists: []source.Artist{{Name: "The Beatles"}},
	URI:     "spotify:track:t1",
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want FormatFilter
	}{
		{"", FormatBoth},
		{"both", FormatBoth},
		{"Lossless", FormatLossless},
		{"flac", FormatLossless},
		{"lossy", FormatLossy},
		{"nonsense", FormatBoth},
	}
	for _, tt := range tests {
		if got := ParseFormat(tt.in); got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGetFileName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{`C:\Users\Music\Artist\Album\track.mp3`, "track.mp3"},
		{"/home/user/music/track.flac", "track.flac"},
		{"track.mp3", "track.mp3"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := getFileName(tt.path); got != tt.want {
			t.Errorf("getFileName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestGetFileExtension(t *testing.T) {
	tests := []struct {
		name string
		file slskd.File
		want string
	}{
		{"extension field set", slskd.File{Extension: ".FLAC", Filename: "track.mp3"}, "flac"},
		{"extension from filename", slskd.File{Filename: `Dir.v2\track.mp3`}, "mp3"},
		{"dotted directory without extension", slskd.File{Filename: `Dir.v2\noext`}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getFileExtension(tt.file); got != tt.want {
				t.Errorf("getFileExtension() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatchesTrack(t *testing.T) {
	title := tokens("Hey Jude")
	tests := []struct {
		path string
		want bool
	}{
		{`Music\The Beatles\1\17 - Hey Jude.flac`, true},
		{`Music\Beatles, The\Hey Jude (Remastered 2015).mp3`, true},
		{`Music\Wilson Pickett\Hey Jude.mp3`, false},
		{`Music\The Beatles\Let It Be.mp3`, false},
		{`Music\The Beatles\Hey Jude\cover.mp3`, false},
	}
	for _, tt := range tests {
		if got := matchesTrack(tt.path, title, heyJude.Artists); got != tt.want {
			t.Errorf("matchesTrack(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFilterAndScoreResults_Ordering(t *testing.T) {
	responses := []slskd.SearchResponse{
		{
			Username:    "slow-flac",
			HasFreeSlot: true,
			UploadSpeed: 100,
			Files:       []slskd.File{{Filename: `The Beatles\Hey Jude.flac`}},
		},
		{
			Username:    "fast-mp3",
			HasFreeSlot: true,
			UploadSpeed: 10_000,
			Files:       []slskd.File{{Filename: `The Beatles\Hey Jude.mp3`, BitRate: 320}},
		},
		{
			Username:    "busy-flac",
			HasFreeSlot: false,
			UploadSpeed: 50_000,
			Files:       []slskd.File{{Filename: `The Beatles\Hey Jude.flac`}},
		},
		{
			Username:    "fast-flac",
			HasFreeSlot: true,
			UploadSpeed: 5_000,
			Files: []slskd.File{
				{Filename: `The Beatles\Hey Jude.flac`},
				{Filename: `The Beatles\cover.jpg`},
				{Filename: `The Beatles\Revolution.flac`},
				{Filename: `The Beatles\Hey Jude.flac`, IsLocked: true},
			},
		},
	}

	got, stats := FilterAndScoreResults(responses, heyJude, FilterOptions{Format: FormatBoth})

	wantOrder := []string{"fast-flac", "slow-flac", "fast-mp3", "busy-flac"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d candidates, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].Username != want {
			t.Errorf("candidate %d = %s, want %s", i, got[i].Username, want)
		}
	}
	if got[0].Format != "FLAC" || !got[0].Lossless {
		t.Errorf("best format = %s lossless=%v", got[0].Format, got[0].Lossless)
	}
	if stats.NotAudio != 1 || stats.WrongTrack != 1 || stats.Locked != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalResults != 4 || stats.TotalFiles != 7 {
		t.Errorf("totals = %+v", stats)
	}
}

func TestFilterAndScoreResults_FormatFilters(t *testing.T) {
	responses := []slskd.SearchResponse{{
		Username:    "u",
		HasFreeSlot: false,
		Files: []slskd.File{
			{Filename: `The Beatles\Hey Jude.flac`},
			{Filename: `The Beatles\Hey Jude.mp3`},
		},
	}}

	lossy, stats := FilterAndScoreResults(responses, heyJude, FilterOptions{Format: FormatLossy})
	if len(lossy) != 1 || lossy[0].Format != "MP3" {
		t.Errorf("lossy = %+v", lossy)
	}
	if stats.WrongFormat != 1 {
		t.Errorf("WrongFormat = %d, want 1", stats.WrongFormat)
	}

	lossless, _ := FilterAndScoreResults(responses, heyJude, FilterOptions{Format: FormatLossless})
	if len(lossless) != 1 || lossless[0].Format != "FLAC" {
		t.Errorf("lossless = %+v", lossless)
	}

	none, stats := FilterAndScoreResults(responses, heyJude, FilterOptions{FilterNoSlot: true})
	if len(none) != 0 || stats.NoFreeSlot != 2 {
		t.Errorf("no slot filter: %d candidates, stats %+v", len(none), stats)
	}
}

func TestFilterAndScoreResults_PrefersClosestName(t *testing.T) {
	responses := []slskd.SearchResponse{{
		Username:    "u",
		HasFreeSlot: true,
		Files: []slskd.File{
			{Filename: `The Beatles\1968\03 - Hey Jude (Live at Twickenham).flac`},
			{Filename: `The Beatles\1968\03 - Hey Jude.flac`},
		},
	}}

	got, _ := FilterAndScoreResults(responses, heyJude, FilterOptions{})
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].NameDistance != 0 {
		t.Errorf("best NameDistance = %d, want 0", got[0].NameDistance)
	}
	if got[0].File.Filename != `The Beatles\1968\03 - Hey Jude.flac` {
		t.Errorf("best = %s", got[0].File.Filename)
	}
}
