// Package lastfm wraps the Last.fm track metadata lookups used as a
// recording-id fallback.
package lastfm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shkh/lastfm-go/lastfm"
)

// ErrNotFound is returned when Last.fm knows no recording id for the track.
var ErrNotFound = errors.New("lastfm: no recording id")

// Client wraps the Last.fm API for track lookups.
type Client struct {
	getInfo func(map[string]any) (lastfm.TrackGetInfo, error)
}

// New creates a new Last.fm client with the given API credentials.
func New(apiKey, apiSecret string) *Client {
	api := lastfm.New(apiKey, apiSecret)
	return &Client{getInfo: api.Track.GetInfo}
}

// RecordingID returns the MusicBrainz recording id Last.fm has for
// artist/title. Returns ErrNotFound when the track has no mbid.
func (c *Client) RecordingID(ctx context.Context, artist, title string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := lastfm.P{
		"artist":      artist,
		"track":       title,
		"autocorrect": 1,
	}

	result, err := c.getInfo(params)
	if err != nil {
		return "", fmt.Errorf("get track info: %w", err)
	}

	mbid := strings.TrimSpace(result.Mbid)
	if mbid == "" {
		return "", fmt.Errorf("%w: %s - %s", ErrNotFound, artist, title)
	}
	return mbid, nil
}
