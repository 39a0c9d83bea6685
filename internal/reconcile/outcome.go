package reconcile

import (
	"github.com/llehouerou/sonicsync/internal/source"
	"github.com/llehouerou/sonicsync/internal/subsonic"
)

// Outcome is the terminal state reached for one source track.
type Outcome int

const (
	Unmatched Outcome = iota
	MatchedByFingerprint
	MatchedByFuzzy
	AlreadyInPlaylist
	Ignored // matched, but a store flag keeps it out of the playlist
	Excluded
)

func (o Outcome) String() string {
	switch o {
	case MatchedByFingerprint:
		return "fingerprint"
	case MatchedByFuzzy:
		return "fuzzy"
	case AlreadyInPlaylist:
		return "already-in-playlist"
	case Ignored:
		return "ignored"
	case Excluded:
		return "excluded"
	default:
		return "unmatched"
	}
}

// Matched reports whether the outcome selected a library song.
func (o Outcome) Matched() bool {
	return o == MatchedByFingerprint || o == MatchedByFuzzy || o == AlreadyInPlaylist || o == Ignored
}

// trackState is the per-track comparison context.
type trackState struct {
	track   source.Track
	artist  source.Artist // artist currently being compared
	outcome Outcome
	song    *subsonic.Song
	// download is set when an unmatched track was handed to the downloader.
	download bool
}

func (s *trackState) done() bool {
	return s.outcome != Unmatched
}

// membership accumulates the playlist being built.
type membership struct {
	prior      map[string]struct{}
	ids        []string
	set        map[string]struct{}
	considered map[string]struct{} // artist+" "+title+" "+album placeholders
}

func newMembership(prior []string) *membership {
	m := &membership{
		prior:      make(map[string]struct{}, len(prior)),
		set:        make(map[string]struct{}),
		considered: make(map[string]struct{}),
	}
	for _, id := range prior {
		m.prior[id] = struct{}{}
	}
	return m
}

func (m *membership) add(id string) {
	if _, ok := m.set[id]; ok {
		return
	}
	m.set[id] = struct{}{}
	m.ids = append(m.ids, id)
}

func (m *membership) has(id string) bool {
	_, ok := m.set[id]
	return ok
}

func (m *membership) inPrior(id string) bool {
	_, ok := m.prior[id]
	return ok
}

func (m *membership) isConsidered(placeholder string) bool {
	_, ok := m.considered[placeholder]
	return ok
}

func (m *membership) consider(placeholder string) {
	m.considered[placeholder] = struct{}{}
}

// TrackResult is the outcome for one source track.
type TrackResult struct {
	Track   source.Track
	Outcome Outcome
	SongID  string // selected library song, empty when unmatched or excluded
	// Downloading is set when the track was submitted to the downloader.
	Downloading bool
}

// Result summarises one playlist build.
type Result struct {
	PlaylistID   string
	PlaylistName string
	SongIDs      []string // final membership, in insertion order
	Tracks       []TrackResult
	Skipped      bool // the playlist is marked ignored
	Deleted      bool // no song matched and the playlist was deleted
}

// Count returns how many tracks reached outcome o.
func (r *Result) Count(o Outcome) int {
	n := 0
	for _, t := range r.Tracks {
		if t.Outcome == o {
			n++
		}
	}
	return n
}
