package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// Spotify caps the number of ids per several-tracks request.
const tracksBatchSize = 50

// Client wraps the Spotify Web API.
type Client struct {
	api    *spotify.Client
	market string
}

// New creates a client authenticated with the client-credentials flow.
func New(ctx context.Context, clientID, clientSecret, market string) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return NewWithAPI(spotify.New(cfg.Client(ctx)), market)
}

// NewWithAPI wraps an existing API client.
func NewWithAPI(api *spotify.Client, market string) *Client {
	if market == "" {
		market = "US"
	}
	return &Client{api: api, market: market}
}

// GetObject fetches a track, album, artist or playlist by URI.
// Albums and playlists carry their full track lists; artists carry their
// top tracks.
func (c *Client) GetObject(ctx context.Context, uri string) (Object, error) {
	kind, id, err := ParseURI(uri)
	if err != nil {
		return Object{}, err
	}

	obj := Object{URI: FormatURI(kind, string(id)), Kind: kind}

	switch kind {
	case KindTrack:
		ft, err := c.api.GetTrack(ctx, id)
		if err != nil {
			return Object{}, fmt.Errorf("get track: %w", err)
		}
		t := fromFullTrack(ft)
		obj.Name = t.Name
		obj.Track = &t

	case KindAlbum:
		obj.Name, obj.Tracks, err = c.albumTracks(ctx, id)
		if err != nil {
			return Object{}, err
		}

	case KindArtist:
		obj.Name, obj.Tracks, err = c.artistTopTracks(ctx, id)
		if err != nil {
			return Object{}, err
		}

	case KindPlaylist:
		obj.Name, obj.Tracks, err = c.playlistTracks(ctx, id)
		if err != nil {
			return Object{}, err
		}
	}

	return obj, nil
}

// playlistTracks returns the playlist name and its tracks in order.
// Local files and podcast episodes are skipped.
func (c *Client) playlistTracks(ctx context.Context, id spotify.ID) (string, []Track, error) {
	pl, err := c.api.GetPlaylist(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("get playlist: %w", err)
	}

	page, err := c.api.GetPlaylistItems(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("get playlist items: %w", err)
	}

	var tracks []Track
	for {
		for _, item := range page.Items {
			if item.IsLocal || item.Track.Track == nil || item.Track.Track.ID == "" {
				continue
			}
			tracks = append(tracks, fromFullTrack(item.Track.Track))
		}

		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return pl.Name, tracks, fmt.Errorf("playlist pagination: %w", err)
		}
	}

	return pl.Name, tracks, nil
}

// albumTracks lists the album and refetches its tracks in batches, since
// the album listing lacks ISRCs.
func (c *Client) albumTracks(ctx context.Context, id spotify.ID) (string, []Track, error) {
	album, err := c.api.GetAlbum(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("get album: %w", err)
	}

	var ids []spotify.ID
	page := &album.Tracks
	for {
		for _, t := range page.Tracks {
			ids = append(ids, t.ID)
		}
		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("album pagination: %w", err)
		}
	}

	tracks := make([]Track, 0, len(ids))
	for i := 0; i < len(ids); i += tracksBatchSize {
		end := min(i+tracksBatchSize, len(ids))
		full, err := c.api.GetTracks(ctx, ids[i:end])
		if err != nil {
			return "", nil, fmt.Errorf("get album tracks: %w", err)
		}
		for _, ft := range full {
			if ft != nil {
				tracks = append(tracks, fromFullTrack(ft))
			}
		}
	}

	return album.Name, tracks, nil
}

func (c *Client) artistTopTracks(ctx context.Context, id spotify.ID) (string, []Track, error) {
	artist, err := c.api.GetArtist(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("get artist: %w", err)
	}

	top, err := c.api.GetArtistsTopTracks(ctx, id, c.market)
	if err != nil {
		return "", nil, fmt.Errorf("get top tracks: %w", err)
	}

	tracks := make([]Track, 0, len(top))
	for i := range top {
		tracks = append(tracks, fromFullTrack(&top[i]))
	}
	return artist.Name, tracks, nil
}

func fromFullTrack(ft *spotify.FullTrack) Track {
	t := Track{
		ID:   string(ft.ID),
		Name: ft.Name,
		ISRC: ft.ExternalIDs["isrc"],
		URL:  ft.ExternalURLs["spotify"],
		URI:  string(ft.URI),
	}
	if t.URI == "" && ft.ID != "" {
		t.URI = FormatURI(KindTrack, string(ft.ID))
	}
	for _, a := range ft.Artists {
		t.Artists = append(t.Artists, Artist{ID: string(a.ID), Name: a.Name})
	}
	if ft.Album.Name != "" {
		t.Album = &Album{ID: string(ft.Album.ID), Name: ft.Album.Name}
	}
	return t
}
