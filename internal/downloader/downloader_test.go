package downloader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/sonicsync/internal/slskd"
	"github.com/llehouerou/sonicsync/internal/source"
	"github.com/llehouerou/sonicsync/internal/worker"
)

type fakeAPI struct {
	mu         sync.Mutex
	queries    []string
	statuses   []slskd.SearchRequest // returned in order, last one repeats
	polls      int
	responses  []slskd.SearchResponse
	downloaded []slskd.File
	user       string
	deleted    []string
	searchErr  error
}

func (f *fakeAPI) Search(_ context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return "search-1", f.searchErr
}

func (f *fakeAPI) GetSearchStatus(context.Context, string) (*slskd.SearchRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := min(f.polls, len(f.statuses)-1)
	f.polls++
	s := f.statuses[idx]
	return &s, nil
}

func (f *fakeAPI) GetSearchResponses(context.Context, string) ([]slskd.SearchResponse, error) {
	return f.responses, nil
}

func (f *fakeAPI) Download(_ context.Context, username string, files []slskd.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = username
	f.downloaded = append(f.downloaded, files...)
	return nil
}

func (f *fakeAPI) DeleteSearch(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func goodResponses() []slskd.SearchResponse {
	return []slskd.SearchResponse{{
		Username:    "alice",
		HasFreeSlot: true,
		Files:       []slskd.File{{Filename: `The Beatles\1\17 Hey Jude.flac`, Size: 42}},
	}}
}

func TestSlskd_Fetch_WaitsForStableResults(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{
			statuses: []slskd.SearchRequest{
				{State: "InProgress", ResponseCount: 1},
				{State: "Completed", ResponseCount: 2},
				{State: "Completed", ResponseCount: 3},
			},
			responses: goodResponses(),
		}
		d := NewSlskd(api, nil, "", nil)

		start := time.Now()
		c, err := d.Fetch(context.Background(), heyJude)
		require.NoError(t, err)

		assert.Equal(t, "alice", c.Username)
		assert.Equal(t, []string{"The Beatles Hey Jude"}, api.queries)
		assert.Equal(t, "alice", api.user)
		require.Len(t, api.downloaded, 1)
		assert.Equal(t, []string{"search-1"}, api.deleted)
		// 3 changing polls, then stablePollsRequired equal ones.
		assert.Equal(t, 3+stablePollsRequired, api.polls)
		assert.GreaterOrEqual(t, time.Since(start), time.Duration(2+stablePollsRequired)*defaultPollInterval)
	})
}

func TestSlskd_Fetch_TimesOutAndUsesPartialResults(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{
			statuses:  []slskd.SearchRequest{{State: "InProgress"}},
			responses: goodResponses(),
		}
		d := NewSlskd(api, nil, "", nil)

		start := time.Now()
		_, err := d.Fetch(context.Background(), heyJude)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), defaultSearchTimeout)
		assert.Len(t, api.downloaded, 1)
	})
}

func TestSlskd_Fetch_NoCandidate(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{
			statuses: []slskd.SearchRequest{{State: "Completed"}},
			responses: []slskd.SearchResponse{{
				Username: "bob",
				Files:    []slskd.File{{Filename: `Other\Song.mp3`}},
			}},
		}
		d := NewSlskd(api, nil, "", nil)

		_, err := d.Fetch(context.Background(), heyJude)
		assert.ErrorIs(t, err, ErrNoCandidate)
		assert.Empty(t, api.downloaded)
		assert.Equal(t, []string{"search-1"}, api.deleted)
	})
}

func TestSlskd_Fetch_SearchError(t *testing.T) {
	api := &fakeAPI{searchErr: errors.New("boom")}
	d := NewSlskd(api, nil, "", nil)

	_, err := d.Fetch(context.Background(), heyJude)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSlskd_Submit_RunsOnQueue(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{
			statuses:  []slskd.SearchRequest{{State: "Completed", ResponseCount: 1}},
			responses: goodResponses(),
		}
		q := worker.NewQueue("downloads", 4, nil)
		q.Start(context.Background())
		d := NewSlskd(api, q, "lossless", nil)

		assert.True(t, d.Submit(heyJude))
		q.Stop()

		assert.Len(t, api.downloaded, 1)
	})
}

func TestSearchQuery(t *testing.T) {
	assert.Equal(t, "The Beatles Hey Jude", searchQuery(heyJude))
	assert.Equal(t, "Hey Jude", searchQuery(source.Track{Name: "Hey Jude"}))
}
