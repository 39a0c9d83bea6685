package slskd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Client provides access to the slskd API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new slskd API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Search initiates a new search on the Soulseek network.
// Returns the search ID that can be used to poll for results.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	body := map[string]string{"searchText": query}

	var result SearchRequest
	if err := c.do(ctx, http.MethodPost, "/api/v0/searches", body, &result, http.StatusOK, http.StatusCreated); err != nil {
		return "", err
	}
	return result.ID, nil
}

// GetSearchStatus returns the current status of a search.
func (c *Client) GetSearchStatus(ctx context.Context, searchID string) (*SearchRequest, error) {
	var result SearchRequest
	if err := c.do(ctx, http.MethodGet, "/api/v0/searches/"+url.PathEscape(searchID), nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSearchResponses returns all responses for a search.
func (c *Client) GetSearchResponses(ctx context.Context, searchID string) ([]SearchResponse, error) {
	var result []SearchResponse
	path := "/api/v0/searches/" + url.PathEscape(searchID) + "/responses"
	if err := c.do(ctx, http.MethodGet, path, nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return result, nil
}

// Download queues files for download from a specific user.
func (c *Client) Download(ctx context.Context, username string, files []File) error {
	// slskd expects an array of file objects
	path := "/api/v0/transfers/downloads/" + url.PathEscape(username)
	return c.do(ctx, http.MethodPost, path, files, nil, http.StatusOK, http.StatusCreated)
}

// GetDownloads returns every transfer across peers and directories.
func (c *Client) GetDownloads(ctx context.Context) ([]Download, error) {
	var users []userDownloads
	if err := c.do(ctx, http.MethodGet, "/api/v0/transfers/downloads", nil, &users, http.StatusOK); err != nil {
		return nil, err
	}

	var downloads []Download
	for _, u := range users {
		for _, dir := range u.Directories {
			downloads = append(downloads, dir.Files...)
		}
	}
	return downloads, nil
}

// DeleteSearch deletes a completed search.
func (c *Client) DeleteSearch(ctx context.Context, searchID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v0/searches/"+url.PathEscape(searchID), nil, nil,
		http.StatusOK, http.StatusNoContent)
}

// do executes a request, encoding in as JSON when non-nil and decoding the
// response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any, okStatus ...int) error {
	var body io.Reader = http.NoBody
	if in != nil {
		jsonBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if !slices.Contains(okStatus, resp.StatusCode) {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// setHeaders sets common headers for API requests.
func (c *Client) setHeaders(req *http.Request) {
	// Only set Content-Type for requests with a body (POST, PUT, PATCH)
	if req.Method == http.MethodPost || req.Method == http.MethodPut || req.Method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
}
