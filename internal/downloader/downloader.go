// Package downloader fetches unmatched tracks through slskd.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/llehouerou/sonicsync/internal/slskd"
	"github.com/llehouerou/sonicsync/internal/source"
	"github.com/llehouerou/sonicsync/internal/worker"
)

const (
	defaultPollInterval  = 500 * time.Millisecond
	defaultSearchTimeout = 60 * time.Second
	// Responses keep streaming in after slskd marks a search complete.
	stablePollsRequired = 6
)

// ErrNoCandidate is returned when no search result matches the track.
var ErrNoCandidate = errors.New("downloader: no matching file")

// API is the subset of the slskd client the downloader uses.
type API interface {
	Search(ctx context.Context, query string) (string, error)
	GetSearchStatus(ctx context.Context, searchID string) (*slskd.SearchRequest, error)
	GetSearchResponses(ctx context.Context, searchID string) ([]slskd.SearchResponse, error)
	Download(ctx context.Context, username string, files []slskd.File) error
	DeleteSearch(ctx context.Context, searchID string) error
}

// Slskd searches Soulseek for a track and queues the best file.
type Slskd struct {
	api    API
	queue  *worker.Queue
	opts   FilterOptions
	logger *zap.Logger

	pollInterval  time.Duration
	searchTimeout time.Duration
}

// NewSlskd creates a downloader. Submit runs fetches on queue.
func NewSlskd(api API, queue *worker.Queue, format string, logger *zap.Logger) *Slskd {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Slskd{
		api:           api,
		queue:         queue,
		opts:          FilterOptions{Format: ParseFormat(format)},
		logger:        logger,
		pollInterval:  defaultPollInterval,
		searchTimeout: defaultSearchTimeout,
	}
}

// Submit queues a background fetch of track. It reports false when the
// queue dropped the request.
func (s *Slskd) Submit(track source.Track) bool {
	return s.queue.Submit(func(ctx context.Context) {
		log := s.logger.With(zap.String("track", track.Name), zap.String("uri", track.URI))
		c, err := s.Fetch(ctx, track)
		if err != nil {
			log.Warn("download failed", zap.Error(err))
			return
		}
		log.Info("download queued",
			zap.String("user", c.Username),
			zap.String("file", c.File.Filename),
			zap.String("format", c.Format))
	})
}

// Fetch searches for track, waits for results and queues the best file.
func (s *Slskd) Fetch(ctx context.Context, track source.Track) (Candidate, error) {
	query := searchQuery(track)
	if query == "" {
		return Candidate{}, fmt.Errorf("%w: empty query", ErrNoCandidate)
	}

	searchID, err := s.api.Search(ctx, query)
	if err != nil {
		return Candidate{}, fmt.Errorf("start search: %w", err)
	}
	defer func() {
		// Search cleanup must outlive a cancelled fetch.
		if err := s.api.DeleteSearch(context.WithoutCancel(ctx), searchID); err != nil {
			s.logger.Debug("delete search failed", zap.String("search", searchID), zap.Error(err))
		}
	}()

	responses, err := s.waitForResponses(ctx, searchID)
	if err != nil {
		return Candidate{}, err
	}

	candidates, stats := FilterAndScoreResults(responses, track, s.opts)
	s.logger.Debug("search results",
		zap.String("query", query),
		zap.Int("responses", stats.TotalResults),
		zap.Int("files", stats.TotalFiles),
		zap.Int("candidates", len(candidates)),
		zap.Int("wrong_format", stats.WrongFormat),
		zap.Int("wrong_track", stats.WrongTrack))
	if len(candidates) == 0 {
		return Candidate{}, fmt.Errorf("%w: %q", ErrNoCandidate, query)
	}

	best := candidates[0]
	if err := s.api.Download(ctx, best.Username, []slskd.File{best.File}); err != nil {
		return Candidate{}, fmt.Errorf("queue download: %w", err)
	}
	return best, nil
}

// waitForResponses polls the search until it is complete and its response
// count has been stable for a few polls, or the search timeout elapses.
func (s *Slskd) waitForResponses(ctx context.Context, searchID string) ([]slskd.SearchResponse, error) {
	pollCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	lastCount, stable := -1, 0
	for {
		status, err := s.api.GetSearchStatus(pollCtx, searchID)
		if err != nil {
			if pollCtx.Err() != nil {
				break
			}
			return nil, fmt.Errorf("search status: %w", err)
		}

		if slskd.SearchState(status.State).IsComplete() {
			if status.ResponseCount == lastCount {
				stable++
			} else {
				stable = 0
			}
			if stable >= stablePollsRequired {
				break
			}
		}
		lastCount = status.ResponseCount

		if !wait(pollCtx, s.pollInterval) {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	responses, err := s.api.GetSearchResponses(ctx, searchID)
	if err != nil {
		return nil, fmt.Errorf("search responses: %w", err)
	}
	return responses, nil
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func searchQuery(track source.Track) string {
	if len(track.Artists) == 0 {
		return track.Name
	}
	if track.Name == "" {
		return ""
	}
	return track.Artists[0].Name + " " + track.Name
}
