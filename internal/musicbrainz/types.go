// Package musicbrainz provides a client for the MusicBrainz API.
package musicbrainz

// isrcResponse is the raw response from the ISRC lookup endpoint.
type isrcResponse struct {
	ISRC       string            `json:"isrc"`
	Recordings []recordingResult `json:"recordings"`
}

// recordingResult is a single recording attached to an ISRC.
type recordingResult struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Length int    `json:"length"` // Duration in milliseconds
}
