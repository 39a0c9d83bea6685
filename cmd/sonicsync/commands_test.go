package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/llehouerou/sonicsync/internal/reconcile"
)

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name string
		res  *reconcile.Result
		want string
	}{
		{
			name: "skipped",
			res:  &reconcile.Result{PlaylistName: "Spotisub - Mix", Skipped: true},
			want: "Spotisub - Mix: skipped (ignored)\n",
		},
		{
			name: "written",
			res: &reconcile.Result{
				PlaylistName: "Spotisub - Mix",
				SongIDs:      []string{"s1", "s2"},
				Tracks: []reconcile.TrackResult{
					{Outcome: reconcile.MatchedByFingerprint},
					{Outcome: reconcile.MatchedByFuzzy},
					{Outcome: reconcile.Unmatched, Downloading: true},
				},
			},
			want: "Spotisub - Mix: 2 songs\n  fingerprint 1, fuzzy 1, unmatched 1, downloading 1\n",
		},
		{
			name: "deleted",
			res: &reconcile.Result{
				PlaylistName: "Spotisub - Mix",
				Deleted:      true,
				Tracks:       []reconcile.TrackResult{{Outcome: reconcile.Excluded}},
			},
			want: "Spotisub - Mix: no songs matched, playlist deleted\n  excluded 1\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printResult(&buf, tt.res)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"reconcile", "cache", "missing", "prune", "ignore", "download", "downloads", "playlists"} {
		assert.Contains(t, names, want)
	}
}
