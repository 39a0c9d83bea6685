package downloader

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/llehouerou/sonicsync/internal/match"
	"github.com/llehouerou/sonicsync/internal/slskd"
	"github.com/llehouerou/sonicsync/internal/source"
)

// FormatFilter represents the audio format filter option.
type FormatFilter int

const (
	FormatBoth     FormatFilter = iota // Prefer lossless, accept lossy
	FormatLossless                     // Only lossless files
	FormatLossy                        // Only lossy files
)

// ParseFormat maps the configuration value onto a FormatFilter.
// Unknown values fall back to FormatBoth.
func ParseFormat(s string) FormatFilter {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lossless", "flac":
		return FormatLossless
	case "lossy", "mp3":
		return FormatLossy
	default:
		return FormatBoth
	}
}

// FilterStats tracks how many files were filtered out and why.
type FilterStats struct {
	NoFreeSlot   int // Files from users with no free upload slot
	Locked       int
	NotAudio     int
	WrongFormat  int
	WrongTrack   int // Audio files whose name does not match the track
	TotalFiles   int
	TotalResults int // Total user responses received
}

// Candidate is a single file that matches the wanted track.
type Candidate struct {
	Username    string
	File        slskd.File
	Format      string // "FLAC", "MP3", etc.
	Lossless    bool
	HasFreeSlot bool
	UploadSpeed int // bytes per second
	QueueLength int
	// NameDistance is the edit distance between the file name and the
	// track title, both folded to tokens.
	NameDistance int
}

// FilterOptions controls which filters are applied to search results.
type FilterOptions struct {
	Format       FormatFilter
	FilterNoSlot bool // Filter out users with no free slot
}

// FilterAndScoreResults flattens slskd search responses into single-file
// candidates for track and returns them best first.
func FilterAndScoreResults(responses []slskd.SearchResponse, track source.Track, opts FilterOptions) ([]Candidate, FilterStats) {
	var stats FilterStats
	stats.TotalResults = len(responses)

	titleTokens := tokens(track.Name)
	titleKey := strings.Join(titleTokens, " ")
	var candidates []Candidate

	for i := range responses {
		resp := &responses[i]
		for _, f := range resp.Files {
			stats.TotalFiles++

			if opts.FilterNoSlot && !resp.HasFreeSlot {
				stats.NoFreeSlot++
				continue
			}
			if f.IsLocked {
				stats.Locked++
				continue
			}

			ext := getFileExtension(f)
			losslessName, isLossless := losslessExtensions[ext]
			lossyName, isLossy := lossyExtensions[ext]
			if !isLossless && !isLossy {
				stats.NotAudio++
				continue
			}
			if (opts.Format == FormatLossless && !isLossless) || (opts.Format == FormatLossy && !isLossy) {
				stats.WrongFormat++
				continue
			}

			if !matchesTrack(f.Filename, titleTokens, track.Artists) {
				stats.WrongTrack++
				continue
			}

			c := Candidate{
				Username:    resp.Username,
				File:        f,
				Format:      lossyName,
				Lossless:    isLossless,
				HasFreeSlot: resp.HasFreeSlot,
				UploadSpeed: resp.UploadSpeed,
				QueueLength: resp.QueueLength,

				NameDistance: nameDistance(f.Filename, titleKey),
			}
			if isLossless {
				c.Format = losslessName
			}
			candidates = append(candidates, c)
		}
	}

	// Sort by: free slot, lossless, bitrate, upload speed, shortest queue,
	// then closest file name
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.HasFreeSlot != b.HasFreeSlot {
			return a.HasFreeSlot
		}
		if a.Lossless != b.Lossless {
			return a.Lossless
		}
		if a.File.BitRate != b.File.BitRate {
			return a.File.BitRate > b.File.BitRate
		}
		if a.UploadSpeed != b.UploadSpeed {
			return a.UploadSpeed > b.UploadSpeed
		}
		if a.QueueLength != b.QueueLength {
			return a.QueueLength < b.QueueLength
		}
		return a.NameDistance < b.NameDistance
	})

	return candidates, stats
}

// matchesTrack requires every title token in the file name and, when the
// track has artists, one artist's tokens anywhere in the full path.
func matchesTrack(path string, titleTokens []string, artists []source.Artist) bool {
	if len(titleTokens) == 0 {
		return false
	}
	name := getFileName(path)
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	if !containsAll(tokens(name), titleTokens) {
		return false
	}
	if len(artists) == 0 {
		return true
	}
	pathTokens := tokens(path)
	for _, a := range artists {
		if at := tokens(a.Name); len(at) > 0 && containsAll(pathTokens, at) {
			return true
		}
	}
	return false
}

func tokens(s string) []string {
	return strings.FieldsFunc(match.Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// nameDistance compares the file name without extension or numeric
// tokens (track numbers, years) against the folded title.
func nameDistance(path, titleKey string) int {
	name := getFileName(path)
	if dot := strings.LastIndex(name, "."); dot > 0 {
		name = name[:dot]
	}
	var words []string
	for _, t := range tokens(name) {
		if strings.IndexFunc(t, unicode.IsLetter) >= 0 {
			words = append(words, t)
		}
	}
	return levenshtein.ComputeDistance(strings.Join(words, " "), titleKey)
}

func containsAll(haystack, needles []string) bool {
	set := make(map[string]struct{}, len(haystack))
	for _, h := range haystack {
		set[h] = struct{}{}
	}
	for _, n := range needles {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

// losslessExtensions maps lossless audio extensions to display names.
var losslessExtensions = map[string]string{
	"flac": "FLAC",
	"wav":  "WAV",
	"aiff": "AIFF",
	"aif":  "AIFF",
	"alac": "ALAC",
	"ape":  "APE",
	"wv":   "WavPack",
}

// lossyExtensions maps lossy audio extensions to display names.
var lossyExtensions = map[string]string{
	"mp3":  "MP3",
	"m4a":  "AAC",
	"aac":  "AAC",
	"ogg":  "OGG",
	"opus": "Opus",
}

// getFileName returns the last path element.
// Handles both Unix (/) and Windows (\) path separators since slskd
// returns paths from various operating systems.
func getFileName(path string) string {
	lastSep := max(strings.LastIndex(path, "/"), strings.LastIndex(path, "\\"))
	return path[lastSep+1:]
}

// getFileExtension returns the lowercase extension without dot.
// Falls back to extracting from filename if Extension field is empty.
func getFileExtension(f slskd.File) string {
	ext := strings.ToLower(strings.TrimPrefix(f.Extension, "."))
	if ext != "" {
		return ext
	}
	name := getFileName(f.Filename)
	if idx := strings.LastIndex(name, "."); idx != -1 {
		return strings.ToLower(name[idx+1:])
	}
	return ""
}
