// Package fingerprint turns embedded recording codes (ISRC) into
// MusicBrainz recording ids.
package fingerprint

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/llehouerou/sonicsync/internal/musicbrainz"
)

// lookupDelay is the pause after each successful lookup.
const lookupDelay = 250 * time.Millisecond

// ISRCLookup resolves an ISRC to recording ids.
type ISRCLookup interface {
	LookupISRC(ctx context.Context, isrc string) ([]string, error)
}

// RecordingLookup resolves artist/title to a single recording id.
type RecordingLookup interface {
	RecordingID(ctx context.Context, artist, title string) (string, error)
}

// Resolver converts track codes to recording ids. Lookup failures never
// propagate: they are logged and yield an empty result.
type Resolver struct {
	lookup   ISRCLookup
	fallback RecordingLookup
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration)
}

// NewResolver creates a resolver backed by lookup.
func NewResolver(lookup ISRCLookup, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		lookup: lookup,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// SetFallback sets the artist/title lookup used when the code yields nothing.
func (r *Resolver) SetFallback(fb RecordingLookup) {
	r.fallback = fb
}

// Resolve returns the recording ids for code, in lookup order.
func (r *Resolver) Resolve(ctx context.Context, code string) []string {
	isrc := Normalize(code)
	if isrc == "" {
		return nil
	}

	ids, err := r.lookup.LookupISRC(ctx, isrc)
	switch {
	case errors.Is(err, musicbrainz.ErrNotFound):
		r.logger.Warn("isrc not found", zap.String("isrc", isrc))
		return nil
	case errors.Is(err, musicbrainz.ErrBadRequest):
		r.logger.Error("malformed isrc lookup", zap.String("isrc", isrc), zap.Error(err))
		return nil
	case err != nil:
		r.logger.Error("isrc lookup failed", zap.String("isrc", isrc), zap.Error(err))
		return nil
	}

	r.sleep(ctx, lookupDelay)
	return ids
}

// ResolveTrack resolves code and, when nothing is found, asks the fallback
// lookup for artist/title.
func (r *Resolver) ResolveTrack(ctx context.Context, code, artist, title string) []string {
	if ids := r.Resolve(ctx, code); len(ids) > 0 {
		return ids
	}
	if r.fallback == nil || artist == "" || title == "" {
		return nil
	}

	id, err := r.fallback.RecordingID(ctx, artist, title)
	if err != nil {
		r.logger.Debug("fallback recording lookup failed",
			zap.String("artist", artist),
			zap.String("title", title),
			zap.Error(err))
		return nil
	}
	return []string{id}
}

// Normalize strips separators from an ISRC and upper-cases it.
func Normalize(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range code {
		switch r {
		case ' ', '-', '.', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
