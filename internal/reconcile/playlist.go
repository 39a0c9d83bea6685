package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/llehouerou/sonicsync/internal/source"
	"github.com/llehouerou/sonicsync/internal/subsonic"
)

// ErrNoDownloader is returned by DownloadSong when no downloader is configured.
var ErrNoDownloader = errors.New("reconcile: downloader not configured")

// preparePlaylist resolves the target playlist id by exact name, creating
// an empty playlist when absent. It returns the prior membership with
// ignored songs filtered out.
func (e *Engine) preparePlaylist(ctx context.Context, name string) (string, []string, error) {
	id, err := e.findPlaylistID(ctx, name)
	if err != nil {
		return "", nil, err
	}

	if id == "" {
		if err := e.library.CreatePlaylist(ctx, name, nil); err != nil {
			return "", nil, libraryErr("create playlist", err)
		}
		e.logger.Info("playlist created", zap.String("playlist", name))

		id, err = e.findPlaylistID(ctx, name)
		if err != nil {
			return "", nil, err
		}
		if id == "" {
			return "", nil, fmt.Errorf("playlist %q not found after creation", name)
		}
		// A new id means relations recorded under it are stale.
		if err := e.store.DeletePlaylistRelation(ctx, id); err != nil {
			return "", nil, err
		}
		return id, nil, nil
	}

	prior, err := e.existingMembers(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return id, prior, nil
}

func (e *Engine) findPlaylistID(ctx context.Context, name string) (string, error) {
	playlists, err := e.library.GetPlaylists(ctx)
	if err != nil {
		return "", libraryErr("list playlists", err)
	}
	want := strings.TrimSpace(name)
	for _, p := range playlists {
		if strings.TrimSpace(p.Name) == want {
			return p.ID, nil
		}
	}
	return "", nil
}

// existingMembers returns the playlist's song ids, dropping songs the store
// marks ignored. A playlist that vanished has its relations removed.
func (e *Engine) existingMembers(ctx context.Context, playlistID string) ([]string, error) {
	details, err := e.library.GetPlaylist(ctx, playlistID)
	if errors.Is(err, subsonic.ErrNotFound) {
		return nil, e.store.DeletePlaylistRelation(ctx, playlistID)
	}
	if err != nil {
		return nil, libraryErr("get playlist", err)
	}

	ids := make([]string, 0, len(details.Entries))
	for _, entry := range details.Entries {
		flags, err := e.store.QueryIgnoreFlags(ctx, entry.ID, playlistID)
		if err != nil {
			return nil, err
		}
		if flags.Any() {
			continue
		}
		ids = append(ids, entry.ID)
	}
	return ids, nil
}

// PlaylistName returns the name of a target playlist, cached for a few
// minutes. When the library no longer has the playlist, the store forgets
// its relations and ok is false.
func (e *Engine) PlaylistName(ctx context.Context, playlistID string) (string, bool) {
	return e.playlistNames.Get(ctx, playlistID, true)
}

func (e *Engine) fetchPlaylistName(ctx context.Context, playlistID string) (string, error) {
	details, err := e.library.GetPlaylist(ctx, playlistID)
	if errors.Is(err, subsonic.ErrNotFound) {
		if derr := e.store.DeletePlaylistRelation(ctx, playlistID); derr != nil {
			e.logger.Error("delete playlist relation",
				zap.String("playlist_id", playlistID),
				zap.Error(derr))
		}
		return "", err
	}
	if err != nil {
		return "", err
	}
	return details.Name, nil
}

// PruneDeletedPlaylists removes store relations for every target playlist
// that no longer exists. It returns the pruned ids.
func (e *Engine) PruneDeletedPlaylists(ctx context.Context) ([]string, error) {
	if err := e.library.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLibraryOffline, err)
	}

	ids, err := e.store.SubsonicPlaylistIDs(ctx)
	if err != nil {
		return nil, err
	}

	var pruned []string
	for _, id := range ids {
		_, err := e.library.GetPlaylist(ctx, id)
		switch {
		case errors.Is(err, subsonic.ErrNotFound):
			if err := e.store.DeletePlaylistRelation(ctx, id); err != nil {
				return pruned, err
			}
			e.playlistNames.Remove(id)
			pruned = append(pruned, id)
			e.logger.Info("pruned deleted playlist", zap.String("playlist_id", id))
		case err != nil:
			return pruned, libraryErr("get playlist", err)
		}
	}
	return pruned, nil
}

// DownloadSong fetches the track behind uri (bypassing a cache miss) and
// submits it to the downloader.
func (e *Engine) DownloadSong(ctx context.Context, uri string) (source.Track, error) {
	if e.downloader == nil {
		return source.Track{}, ErrNoDownloader
	}
	if e.objects == nil {
		return source.Track{}, errors.New("reconcile: object cache not configured")
	}

	obj, ok := e.objects.Get(ctx, uri, true)
	if !ok || obj.Track == nil {
		return source.Track{}, fmt.Errorf("track %s not found", uri)
	}
	track := *obj.Track
	if track.URL == "" {
		return track, fmt.Errorf("track %s has no external url", uri)
	}
	if !e.downloader.Submit(track) {
		return track, errors.New("download queue full")
	}
	return track, nil
}
