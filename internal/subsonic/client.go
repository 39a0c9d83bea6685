package subsonic

import (
	"context"
	"crypto/md5" //nolint:gosec // md5 token auth is mandated by the Subsonic API
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	apiVersion = "1.16.1"
	clientName = "sonicsync"
)

var (
	// ErrOffline is returned when the server cannot be reached or ping fails.
	ErrOffline = errors.New("subsonic: server offline")
	// ErrNotFound is returned for Subsonic error code 70 (data not found).
	ErrNotFound = errors.New("subsonic: not found")
	// ErrAuth is returned for wrong credentials.
	ErrAuth = errors.New("subsonic: authentication failed")
)

// Client provides access to the Subsonic API.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
}

// NewClient creates a new Subsonic API client.
// baseURL is the server root, without the /rest suffix.
func NewClient(baseURL, user, password string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		user:       user,
		password:   password,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Ping checks that the server is reachable and the credentials are valid.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.call(ctx, "ping", nil); err != nil {
		if errors.Is(err, ErrOffline) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}
	return nil
}

// Search3 runs a song search. An empty query matches the whole library on
// servers that support it (Navidrome, Gonic), which is what the library
// cache relies on to page through every song.
func (c *Client) Search3(ctx context.Context, query string, songCount, songOffset int) ([]Song, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("songCount", strconv.Itoa(songCount))
	params.Set("songOffset", strconv.Itoa(songOffset))
	params.Set("artistCount", "0")
	params.Set("albumCount", "0")

	resp, err := c.call(ctx, "search3", params)
	if err != nil {
		return nil, err
	}
	if resp.SearchResult3 == nil {
		return nil, nil
	}
	return resp.SearchResult3.Song, nil
}

// GetPlaylists returns all playlists visible to the user.
func (c *Client) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	resp, err := c.call(ctx, "getPlaylists", nil)
	if err != nil {
		return nil, err
	}
	if resp.Playlists == nil {
		return nil, nil
	}
	return resp.Playlists.Playlist, nil
}

// GetPlaylist returns a playlist with its entries.
// Returns ErrNotFound when the playlist does not exist.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*PlaylistDetails, error) {
	params := url.Values{}
	params.Set("id", id)

	resp, err := c.call(ctx, "getPlaylist", params)
	if err != nil {
		return nil, err
	}
	if resp.Playlist == nil {
		return nil, fmt.Errorf("%w: playlist %s", ErrNotFound, id)
	}
	return resp.Playlist, nil
}

// CreatePlaylist creates a new playlist with the given songs.
func (c *Client) CreatePlaylist(ctx context.Context, name string, songIDs []string) error {
	params := url.Values{}
	params.Set("name", name)
	for _, id := range songIDs {
		params.Add("songId", id)
	}
	_, err := c.call(ctx, "createPlaylist", params)
	return err
}

// ReplacePlaylist replaces the whole membership of an existing playlist.
func (c *Client) ReplacePlaylist(ctx context.Context, id string, songIDs []string) error {
	params := url.Values{}
	params.Set("playlistId", id)
	for _, songID := range songIDs {
		params.Add("songId", songID)
	}
	_, err := c.call(ctx, "createPlaylist", params)
	return err
}

// DeletePlaylist deletes a playlist.
// Returns ErrNotFound when the playlist does not exist.
func (c *Client) DeletePlaylist(ctx context.Context, id string) error {
	params := url.Values{}
	params.Set("id", id)
	_, err := c.call(ctx, "deletePlaylist", params)
	return err
}

// call executes a Subsonic method and returns the unwrapped response.
// Large parameter sets (playlist writes) are sent as a form POST.
func (c *Client) call(ctx context.Context, method string, params url.Values) (*response, error) {
	if params == nil {
		params = url.Values{}
	}
	c.setAuth(params)

	reqURL := c.baseURL + "/rest/" + method

	var req *http.Request
	var err error
	if len(params["songId"]) > 0 {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, reqURL+"?"+params.Encode(), http.NoBody)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOffline, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: API returned status %d", ErrOffline, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	r := &env.Response
	if r.Status != "ok" {
		return nil, r.Error.err(method)
	}
	return r, nil
}

// setAuth adds token authentication parameters (t = md5(password + salt)).
func (c *Client) setAuth(params url.Values) {
	salt := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	sum := md5.Sum([]byte(c.password + salt)) //nolint:gosec // see import
	params.Set("u", c.user)
	params.Set("t", hex.EncodeToString(sum[:]))
	params.Set("s", salt)
	params.Set("v", apiVersion)
	params.Set("c", clientName)
	params.Set("f", "json")
}

func (e *apiError) err(method string) error {
	if e == nil {
		return fmt.Errorf("%s: request failed", method)
	}
	switch e.Code {
	case codeNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, e.Message)
	case codeWrongAuth:
		return fmt.Errorf("%w: %s", ErrAuth, e.Message)
	default:
		return fmt.Errorf("%s: error %d: %s", method, e.Code, e.Message)
	}
}
