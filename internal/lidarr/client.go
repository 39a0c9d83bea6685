// Package lidarr checks whether Lidarr monitors an artist.
package lidarr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/llehouerou/sonicsync/internal/match"
)

// Artist is the subset of Lidarr's artist resource we read.
type Artist struct {
	ID         int    `json:"id"`
	ArtistName string `json:"artistName"`
	Monitored  bool   `json:"monitored"`
}

// Client provides access to the Lidarr v1 API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Lidarr client. baseURL includes any base path.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Artists returns every artist in the Lidarr database.
func (c *Client) Artists(ctx context.Context) ([]Artist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/artist", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var artists []Artist
	if err := json.NewDecoder(resp.Body).Decode(&artists); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return artists, nil
}

// IsMonitored reports whether an artist with this name (compared case and
// accent insensitively) exists in Lidarr and is monitored.
func (c *Client) IsMonitored(ctx context.Context, name string) (bool, error) {
	artists, err := c.Artists(ctx)
	if err != nil {
		return false, err
	}
	want := match.Fold(strings.TrimSpace(name))
	for _, a := range artists {
		if a.Monitored && match.Fold(strings.TrimSpace(a.ArtistName)) == want {
			return true, nil
		}
	}
	return false, nil
}
